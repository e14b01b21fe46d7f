package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CaptureConfig controls how capture devices are opened and rebound.
type CaptureConfig struct {
	SnapLen      int      `yaml:"snap_len"`
	ReadTimeout  string   `yaml:"read_timeout"`
	Promiscuous  bool     `yaml:"promiscuous"`
	BPFFilter    string   `yaml:"bpf_filter"`
	Include      []string `yaml:"include"`
	Exclude      []string `yaml:"exclude"`
	RefreshDelay string   `yaml:"refresh_delay"`
	PollInterval string   `yaml:"poll_interval"`
}

// StoreConfig holds the configuration for the aggregate flow store.
type StoreConfig struct {
	NumShards     uint32 `yaml:"num_shards"`
	IdleTimeout   string `yaml:"idle_timeout"`
	EvictInterval string `yaml:"evict_interval"`
}

// GobConfig configures the on-disk gob writer.
type GobConfig struct {
	RootPath string `yaml:"root_path"`
}

// ClickHouseConfig holds connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NATSConfig holds the NATS connection used to publish flow snapshots.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// WriterDef defines a single snapshot writer.
type WriterDef struct {
	Type             string           `yaml:"type"`
	Enabled          bool             `yaml:"enabled"`
	SnapshotInterval string           `yaml:"snapshot_interval"`
	Gob              GobConfig        `yaml:"gob"`
	ClickHouse       ClickHouseConfig `yaml:"clickhouse"`
	NATS             NATSConfig       `yaml:"nats"`
}

// ExporterConfig lists the writers fed with periodic flow snapshots.
type ExporterConfig struct {
	Writers []WriterDef `yaml:"writers"`
}

// RecorderConfig controls the optional raw-frame pcap recorder.
type RecorderConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Path              string `yaml:"path"`
	ChannelBufferSize int    `yaml:"channel_buffer_size"`
}

// APIConfig holds the HTTP API listen address.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// GRPCConfig holds the gRPC health service listen address.
type GRPCConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Capture  CaptureConfig  `yaml:"capture"`
	Store    StoreConfig    `yaml:"store"`
	Exporter ExporterConfig `yaml:"exporter"`
	Recorder RecorderConfig `yaml:"recorder"`
	API      APIConfig      `yaml:"api"`
	GRPC     GRPCConfig     `yaml:"grpc"`
}

// Default returns a configuration that captures on every device with no
// exporters enabled.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Capture.SnapLen <= 0 {
		c.Capture.SnapLen = 256
	}
	if c.Capture.ReadTimeout == "" {
		c.Capture.ReadTimeout = "500ms"
	}
	if c.Capture.RefreshDelay == "" {
		c.Capture.RefreshDelay = "5s"
	}
	if c.Capture.PollInterval == "" {
		c.Capture.PollInterval = "10s"
	}
	if c.Store.NumShards == 0 {
		c.Store.NumShards = 64
	}
	if c.Store.IdleTimeout == "" {
		c.Store.IdleTimeout = "0s"
	}
	if c.Store.EvictInterval == "" {
		c.Store.EvictInterval = "30s"
	}
	if c.Recorder.Path == "" {
		c.Recorder.Path = "recordings"
	}
	if c.Recorder.ChannelBufferSize <= 0 {
		c.Recorder.ChannelBufferSize = 10000
	}
}

// Validate checks that every duration field parses.
func (c *Config) Validate() error {
	durations := map[string]string{
		"capture.read_timeout":  c.Capture.ReadTimeout,
		"capture.refresh_delay": c.Capture.RefreshDelay,
		"capture.poll_interval": c.Capture.PollInterval,
		"store.idle_timeout":    c.Store.IdleTimeout,
		"store.evict_interval":  c.Store.EvictInterval,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}
	for i, w := range c.Exporter.Writers {
		if !w.Enabled {
			continue
		}
		if _, err := time.ParseDuration(w.SnapshotInterval); err != nil {
			return fmt.Errorf("invalid snapshot_interval for writer %d (%s): %w", i, w.Type, err)
		}
	}
	return nil
}

// Duration parses a duration field that Validate has already checked.
func Duration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}
