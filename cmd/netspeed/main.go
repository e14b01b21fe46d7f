package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"NetSpeedMonitor/internal/api"
	"NetSpeedMonitor/internal/capture"
	"NetSpeedMonitor/internal/config"
	"NetSpeedMonitor/internal/debounce"
	"NetSpeedMonitor/internal/engine/manager"
	"NetSpeedMonitor/internal/health"
	"NetSpeedMonitor/internal/intake"
	"NetSpeedMonitor/internal/metrics"
	"NetSpeedMonitor/internal/model"
	"NetSpeedMonitor/internal/netwatch"
	"NetSpeedMonitor/internal/probe"
	"NetSpeedMonitor/internal/recorder"
	"NetSpeedMonitor/internal/store"
	"NetSpeedMonitor/internal/topology"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// --- Command-Line Flag Parsing ---
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	mode := flag.String("mode", "run", "Operating mode: 'run' to capture and export, 'sub' to print snapshots published over NATS.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	// --- Mode Dispatch ---
	switch *mode {
	case "run":
		run(cfg)
	case "sub":
		runSubscriber(cfg)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

func run(cfg *config.Config) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	flows := store.New(cfg.Store.NumShards)
	topo := &topology.Current{}

	var frameRecorder intake.FrameRecorder
	if cfg.Recorder.Enabled {
		rec, err := recorder.New(cfg.Recorder.Path, uint32(cfg.Capture.SnapLen), cfg.Recorder.ChannelBufferSize)
		if err != nil {
			log.Fatalf("Failed to create recorder: %v", err)
		}
		frameRecorder = rec
		defer rec.Stop()
	}

	exporter, err := manager.NewManager(cfg, flows)
	if err != nil {
		log.Fatalf("Failed to create exporter: %v", err)
	}
	exporter.Start()

	scheduler := debounce.NewScheduler()
	mode := capture.ModeNormal
	if cfg.Capture.Promiscuous {
		mode = capture.ModePromiscuous
	}
	captureManager := capture.NewManager(capture.Dependencies{
		Lister: capture.NewPcapLister(capture.PcapOptions{
			SnapLen:     cfg.Capture.SnapLen,
			ReadTimeout: config.Duration(cfg.Capture.ReadTimeout),
			BPFFilter:   cfg.Capture.BPFFilter,
			Include:     cfg.Capture.Include,
			Exclude:     cfg.Capture.Exclude,
		}),
		Watcher:        netwatch.Default(config.Duration(cfg.Capture.PollInterval)),
		HostInterfaces: topology.HostInterfaces,
		Handlers:       intake.NewPipeline(flows, topo, m, frameRecorder),
		Topology:       topo,
		Scheduler:      scheduler,
		Metrics:        m,
	}, capture.Options{
		Mode:         mode,
		RefreshDelay: config.Duration(cfg.Capture.RefreshDelay),
	})

	healthServer := health.NewServer()
	if cfg.GRPC.ListenAddr != "" {
		if err := healthServer.Listen(cfg.GRPC.ListenAddr); err != nil {
			log.Printf("gRPC health server disabled: %v", err)
		}
	}

	var apiServer *api.Server
	if cfg.API.ListenAddr != "" {
		apiServer = api.NewServer(cfg.API.ListenAddr, api.NewRouter(flows, captureManager, reg))
		apiServer.Start()
	}

	// Capture failures are reported but do not stop the process; the API and
	// exporters keep serving whatever has been aggregated.
	start := time.Now()
	if err := captureManager.InitAndStart(); err != nil {
		log.Printf("Failed to start capture (%s): %v", capture.KindOf(err), err)
	} else {
		log.Printf("Capture started in %s.", time.Since(start))
		healthServer.SetServing(true)
	}

	// Set up a channel to handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")

	healthServer.SetServing(false)
	captureManager.Stop()
	scheduler.Stop()
	exporter.Stop()

	if apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			log.Printf("API server forced to shutdown: %v", err)
		}
	}
	healthServer.Stop()
	log.Println("Shutdown complete.")
}

// runSubscriber prints every snapshot published by a 'nats' writer.
func runSubscriber(cfg *config.Config) {
	log.Println("Starting netspeed in SUBSCRIBER mode...")

	var natsCfg *config.NATSConfig
	for _, def := range cfg.Exporter.Writers {
		if def.Type == "nats" {
			natsCfg = &def.NATS
			break
		}
	}
	if natsCfg == nil {
		log.Fatalf("No nats writer found in config. Subscriber cannot start.")
	}

	sub, err := probe.NewSubscriber(*natsCfg)
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Close()

	handler := func(s *model.Snapshot) {
		up, down := s.Totals()
		log.Printf("Snapshot at %s: %d flows, %d bytes up, %d bytes down",
			s.TakenAt.Format(time.RFC3339), len(s.Flows), up, down)
		for i, f := range s.Flows {
			if i == 10 {
				break
			}
			log.Printf("  %-50s %s up=%d down=%d", f.Key, f.Protocol, f.UploadBytes, f.DownloadBytes)
		}
	}

	if err := sub.Start(handler); err != nil {
		log.Fatalf("Subscriber failed to start: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
}
