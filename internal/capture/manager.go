package capture

import (
	"fmt"
	"log"
	"sync"
	"time"

	"NetSpeedMonitor/internal/debounce"
	"NetSpeedMonitor/internal/metrics"
	"NetSpeedMonitor/internal/model"
	"NetSpeedMonitor/internal/netwatch"
	"NetSpeedMonitor/internal/topology"
)

// refreshTaskID names the debounced device refresh.
const refreshTaskID = "refresh-devices"

// DefaultRefreshDelay is the quiet period after the last network-change
// notification before devices are rebound.
const DefaultRefreshDelay = 5 * time.Second

// Dependencies are the collaborators the manager drives.
type Dependencies struct {
	Lister         Lister
	Watcher        netwatch.Watcher
	HostInterfaces func() ([]topology.Interface, error)
	Handlers       model.HandlerFactory
	// Topology receives every rebuilt topology. Created if nil.
	Topology *topology.Current
	// Scheduler debounces network-change notifications. Created if nil.
	Scheduler *debounce.Scheduler
	Metrics   *metrics.Metrics
}

// Options tunes the manager.
type Options struct {
	Mode         Mode
	RefreshDelay time.Duration
}

// Manager owns the capture devices. A single mutex serializes InitAndStart,
// Stop and refreshes so device bindings and the topology always move
// together.
type Manager struct {
	deps Dependencies
	opts Options

	mu      sync.Mutex
	started bool
	devices []Device
}

// NewManager creates a stopped manager.
func NewManager(deps Dependencies, opts Options) *Manager {
	if deps.Topology == nil {
		deps.Topology = &topology.Current{}
	}
	if deps.Scheduler == nil {
		deps.Scheduler = debounce.NewScheduler()
	}
	if opts.RefreshDelay <= 0 {
		opts.RefreshDelay = DefaultRefreshDelay
	}
	return &Manager{deps: deps, opts: opts}
}

// InitAndStart enumerates devices, subscribes to network changes and binds
// every device. It may take a long time on hosts with many adapters. Calling
// it while already started does nothing.
func (m *Manager) InitAndStart() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	devices, err := m.deps.Lister.List()
	if err != nil {
		return &Error{Kind: KindEnumeration, Err: err}
	}
	if err := m.deps.Watcher.Subscribe(m.onNetworkChange); err != nil {
		return &Error{Kind: KindEnumeration, Err: fmt.Errorf("failed to subscribe to network changes: %w", err)}
	}

	m.devices = devices
	m.restartDevicesLocked()
	m.started = true
	log.Printf("CaptureManager: started with %d devices", len(devices))
	return nil
}

// Stop detaches and closes every device and cancels any pending refresh.
// Calling it while stopped does nothing.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}
	for _, d := range m.devices {
		m.stopDevice(d)
	}
	m.deps.Watcher.Unsubscribe()
	m.deps.Scheduler.Cancel(refreshTaskID)
	m.deps.Metrics.SetDevicesCapturing(0)
	m.started = false
	log.Println("CaptureManager: stopped")
}

// Started reports whether InitAndStart has succeeded without a later Stop.
func (m *Manager) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Topology returns the current subnet topology.
func (m *Manager) Topology() *topology.Topology {
	return m.deps.Topology.Load()
}

// Devices returns the status of every managed device.
func (m *Manager) Devices() []model.DeviceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.DeviceStatus, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, model.DeviceStatus{
			Name:        d.Name(),
			Description: d.Description(),
			LinkType:    d.LinkType().String(),
			Capturing:   d.Started(),
		})
	}
	return out
}

func (m *Manager) onNetworkChange() {
	log.Printf("CaptureManager: network change at %s, refreshing in %s",
		time.Now().Format(time.TimeOnly), m.opts.RefreshDelay)
	m.deps.Scheduler.RunAfter(refreshTaskID, m.opts.RefreshDelay, m.refresh)
}

// refresh re-enumerates devices, rebinds them and rebuilds the topology. On
// enumeration failure the previous bindings are kept.
func (m *Manager) refresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}

	start := time.Now()
	devices, err := m.deps.Lister.List()
	if err != nil {
		m.deps.Metrics.RefreshDone(false)
		return &Error{Kind: KindRefresh, Err: err}
	}
	log.Printf("CaptureManager: device list refreshed in %s", time.Since(start))

	for _, d := range m.devices {
		m.stopDevice(d)
	}
	m.devices = devices
	m.restartDevicesLocked()
	m.deps.Metrics.RefreshDone(true)
	log.Printf("CaptureManager: refresh completed in %s", time.Since(start))
	return nil
}

func (m *Manager) restartDevicesLocked() {
	capturing := 0
	for _, d := range m.devices {
		if err := m.startDevice(d); err != nil {
			m.deps.Metrics.DeviceOpenFailed()
			log.Printf("CaptureManager: skipping device: %v", err)
			continue
		}
		capturing++
	}
	m.deps.Metrics.SetDevicesCapturing(capturing)
	m.rebuildTopologyLocked()
}

// startDevice opens d, attaches a fresh handler and starts capturing. A
// device that is already capturing is stopped first so it never carries two
// handlers.
func (m *Manager) startDevice(d Device) error {
	if d.Started() {
		m.stopDevice(d)
	}
	if err := d.Open(m.opts.Mode); err != nil {
		return &Error{Kind: KindDeviceOpen, Device: d.Name(), Err: err}
	}
	d.SetHandler(m.deps.Handlers.NewHandler(d.Name(), d.LinkType()))
	if err := d.StartCapture(); err != nil {
		d.SetHandler(nil)
		if cerr := d.Close(); cerr != nil {
			log.Printf("CaptureManager: failed to close %s after start failure: %v", d.Name(), cerr)
		}
		return &Error{Kind: KindDeviceOpen, Device: d.Name(), Err: err}
	}
	return nil
}

// stopDevice detaches the handler before stopping so no frame reaches a
// handler the manager is about to drop. Failures are logged only.
func (m *Manager) stopDevice(d Device) {
	d.SetHandler(nil)
	if err := d.StopCapture(); err != nil {
		log.Printf("CaptureManager: failed to stop capture on %s: %v", d.Name(), err)
	}
	if err := d.Close(); err != nil {
		log.Printf("CaptureManager: failed to close %s: %v", d.Name(), err)
	}
}

func (m *Manager) rebuildTopologyLocked() {
	ifaces, err := m.deps.HostInterfaces()
	if err != nil {
		log.Printf("CaptureManager: failed to enumerate host interfaces, keeping previous topology: %v", err)
		return
	}
	topo := topology.Rebuild(ifaces)
	m.deps.Topology.Store(topo)
	m.deps.Metrics.SetSubnets(topo.Len())
	for _, s := range topo.Subnets() {
		log.Printf("CaptureManager: local subnet %s", s)
	}
}
