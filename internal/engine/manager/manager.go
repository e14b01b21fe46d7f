// Package manager runs the periodic work around the aggregate store: one
// snapshotter per writer and the idle-flow evictor.
package manager

import (
	"io"
	"log"
	"sync"
	"time"

	"NetSpeedMonitor/internal/config"
	_ "NetSpeedMonitor/internal/exporter" // Registers gob and clickhouse writers
	"NetSpeedMonitor/internal/factory"
	"NetSpeedMonitor/internal/model"
	_ "NetSpeedMonitor/internal/probe" // Registers the nats writer
)

// Source is the store the manager snapshots and evicts from.
type Source interface {
	Snapshot() *model.Snapshot
	Evict(idle time.Duration) int
}

// Manager orchestrates the writers fed from the store.
type Manager struct {
	source  Source
	writers []model.Writer

	idleTimeout   time.Duration
	evictInterval time.Duration

	done          chan struct{}
	stopOnce      sync.Once
	snapshotterWg sync.WaitGroup
	evictorWg     sync.WaitGroup
}

// NewManager builds the configured writers.
func NewManager(cfg *config.Config, source Source) (*Manager, error) {
	writers, err := factory.Create(&cfg.Exporter)
	if err != nil {
		return nil, err
	}
	return New(source, writers, config.Duration(cfg.Store.IdleTimeout), config.Duration(cfg.Store.EvictInterval)), nil
}

// New creates a manager over explicit writers. A zero idleTimeout disables
// eviction.
func New(source Source, writers []model.Writer, idleTimeout, evictInterval time.Duration) *Manager {
	return &Manager{
		source:        source,
		writers:       writers,
		idleTimeout:   idleTimeout,
		evictInterval: evictInterval,
		done:          make(chan struct{}),
	}
}

// Start launches the snapshotters and the evictor.
func (m *Manager) Start() {
	for _, writer := range m.writers {
		m.snapshotterWg.Add(1)
		go m.runSnapshotter(writer)
		log.Printf("Started snapshotter for a writer with interval %s", writer.GetInterval())
	}

	if m.idleTimeout > 0 && m.evictInterval > 0 {
		m.evictorWg.Add(1)
		go m.runEvictor()
		log.Printf("Started evictor: idle timeout %s, interval %s", m.idleTimeout, m.evictInterval)
	}
}

// runSnapshotter runs a dedicated snapshot loop for a single writer. A final
// snapshot is written on shutdown.
func (m *Manager) runSnapshotter(writer model.Writer) {
	defer m.snapshotterWg.Done()
	interval := writer.GetInterval()
	if interval <= 0 {
		log.Printf("Invalid interval %s for writer, snapshotter will not run.", interval)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.takeSnapshotForWriter(writer)
		case <-m.done:
			m.takeSnapshotForWriter(writer)
			return
		}
	}
}

func (m *Manager) takeSnapshotForWriter(writer model.Writer) {
	snapshot := m.source.Snapshot()
	timestamp := snapshot.TakenAt.Format("2006-01-02_15-04-05")
	if err := writer.Write(snapshot, timestamp); err != nil {
		log.Printf("Error writing snapshot at %s: %v", timestamp, err)
	}
}

func (m *Manager) runEvictor() {
	defer m.evictorWg.Done()
	ticker := time.NewTicker(m.evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.source.Evict(m.idleTimeout); n > 0 {
				log.Printf("Evicted %d idle flows", n)
			}
		case <-m.done:
			log.Println("Evictor shutting down.")
			return
		}
	}
}

// Stop writes a final snapshot to every writer, waits for the goroutines
// and closes writers that hold connections.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		log.Println("Manager stopping...")
		close(m.done)
		m.snapshotterWg.Wait()
		m.evictorWg.Wait()

		for _, w := range m.writers {
			if c, ok := w.(io.Closer); ok {
				if err := c.Close(); err != nil {
					log.Printf("Error closing writer: %v", err)
				}
			}
		}
		log.Println("Manager stopped.")
	})
}
