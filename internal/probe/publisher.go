// Package probe ships flow snapshots over NATS and reads them back.
package probe

import (
	"fmt"
	"log"
	"time"

	"NetSpeedMonitor/internal/config"
	"NetSpeedMonitor/internal/factory"
	"NetSpeedMonitor/internal/model"

	"github.com/nats-io/nats.go"
)

func init() {
	factory.RegisterWriter("nats", func(def config.WriterDef) (model.Writer, error) {
		return NewPublisher(def.NATS, config.Duration(def.SnapshotInterval))
	})
}

// Publisher publishes flow snapshots to a NATS subject. It implements the
// model.Writer interface.
type Publisher struct {
	nc       *nats.Conn
	subject  string
	interval time.Duration
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.NATSConfig, interval time.Duration) (*Publisher, error) {
	if cfg.Subject == "" {
		return nil, fmt.Errorf("nats writer requires nats.subject")
	}
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name("netspeed-publisher"))
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", url)
	return &Publisher{nc: nc, subject: cfg.Subject, interval: interval}, nil
}

// GetInterval returns the configured snapshot interval for this writer.
func (p *Publisher) GetInterval() time.Duration {
	return p.interval
}

// Write serializes the snapshot and publishes it. Empty snapshots are still
// published so subscribers see the exporter is alive.
func (p *Publisher) Write(snapshot *model.Snapshot, _ string) error {
	data, err := EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		return err
	}
	log.Println("NATS connection drained and closed.")
	return nil
}
