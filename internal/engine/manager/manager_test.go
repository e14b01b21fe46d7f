package manager

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"NetSpeedMonitor/internal/config"
	"NetSpeedMonitor/internal/model"
	"NetSpeedMonitor/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	interval time.Duration

	mu        sync.Mutex
	snapshots []*model.Snapshot
	closed    bool
}

func (w *recordingWriter) Write(s *model.Snapshot, _ string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snapshots = append(w.snapshots, s)
	return nil
}

func (w *recordingWriter) GetInterval() time.Duration { return w.interval }

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.snapshots)
}

func seed(st *store.Store, port uint16, bytes int) {
	f := st.LookupOrCreate(model.FlowKey{
		LocalIP:    netip.MustParseAddr("10.0.0.5"),
		LocalPort:  port,
		RemoteIP:   netip.MustParseAddr("1.1.1.1"),
		RemotePort: 443,
		Protocol:   model.ProtocolTCP,
	})
	st.Increment(f, model.DirectionUpload, bytes)
}

func TestManager_PeriodicAndFinalSnapshots(t *testing.T) {
	st := store.New(4)
	seed(st, 1000, 100)

	w := &recordingWriter{interval: 20 * time.Millisecond}
	m := New(st, []model.Writer{w}, 0, 0)
	m.Start()

	require.Eventually(t, func() bool { return w.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	before := w.count()
	m.Stop()
	m.Stop()

	assert.Greater(t, w.count(), before, "Stop must write a final snapshot")
	assert.True(t, w.closed)
	w.mu.Lock()
	last := w.snapshots[len(w.snapshots)-1]
	w.mu.Unlock()
	require.Len(t, last.Flows, 1)
	assert.Equal(t, uint64(100), last.Flows[0].UploadBytes)
}

func TestManager_InvalidIntervalSkipsWriter(t *testing.T) {
	st := store.New(4)
	w := &recordingWriter{interval: 0}
	m := New(st, []model.Writer{w}, 0, 0)
	m.Start()
	m.Stop()
	assert.Zero(t, w.count())
}

type evictCounter struct {
	*store.Store
	mu    sync.Mutex
	calls int
	idle  time.Duration
}

func (e *evictCounter) Evict(idle time.Duration) int {
	e.mu.Lock()
	e.calls++
	e.idle = idle
	e.mu.Unlock()
	return e.Store.Evict(idle)
}

func TestManager_Evictor(t *testing.T) {
	src := &evictCounter{Store: store.New(4)}
	m := New(src, nil, time.Minute, 10*time.Millisecond)
	m.Start()
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls >= 2
	}, 2*time.Second, 5*time.Millisecond)
	m.Stop()

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, time.Minute, src.idle)
}

func TestNewManager_BuildsConfiguredWriters(t *testing.T) {
	cfg := config.Default()
	cfg.Exporter.Writers = []config.WriterDef{
		{Type: "gob", Enabled: true, SnapshotInterval: "1h", Gob: config.GobConfig{RootPath: t.TempDir()}},
		{Type: "clickhouse", Enabled: false},
	}
	m, err := NewManager(cfg, store.New(4))
	require.NoError(t, err)
	require.Len(t, m.writers, 1)
	assert.Equal(t, time.Hour, m.writers[0].GetInterval())

	cfg.Exporter.Writers = []config.WriterDef{{Type: "carrier-pigeon", Enabled: true, SnapshotInterval: "1s"}}
	_, err = NewManager(cfg, store.New(4))
	assert.ErrorContains(t, err, "unknown writer type")
}
