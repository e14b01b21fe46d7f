package capture

import (
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"NetSpeedMonitor/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// pseudoDevices are libpcap capture sources that are not network adapters.
// "any" in particular would deliver every frame a second time.
var pseudoDevices = []string{"any", "nflog", "nfqueue", "bluetooth-monitor"}

// pseudoDevicePrefixes match families of non-adapter sources.
var pseudoDevicePrefixes = []string{"dbus-", "usbmon", "bluetooth"}

// PcapOptions configures devices opened through libpcap.
type PcapOptions struct {
	SnapLen     int
	ReadTimeout time.Duration
	BPFFilter   string
	// Include, when non-empty, restricts capture to the named devices.
	Include []string
	Exclude []string
}

// PcapLister enumerates libpcap devices.
type PcapLister struct {
	opts        PcapOptions
	findAllDevs func() ([]pcap.Interface, error)
}

// NewPcapLister creates a lister using pcap.FindAllDevs.
func NewPcapLister(opts PcapOptions) *PcapLister {
	if opts.SnapLen <= 0 {
		opts.SnapLen = 256
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 500 * time.Millisecond
	}
	return &PcapLister{opts: opts, findAllDevs: pcap.FindAllDevs}
}

// List returns a fresh, closed Device for every capturable interface.
func (l *PcapLister) List() ([]Device, error) {
	ifaces, err := l.findAllDevs()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate pcap devices: %w", err)
	}

	devices := make([]Device, 0, len(ifaces))
	for _, iface := range ifaces {
		if !l.wanted(iface.Name) {
			continue
		}
		devices = append(devices, &pcapDevice{
			name: iface.Name,
			desc: iface.Description,
			opts: l.opts,
		})
	}
	return devices, nil
}

func (l *PcapLister) wanted(name string) bool {
	if name == "" || isPseudoDevice(name) {
		return false
	}
	if len(l.opts.Include) > 0 && !slices.Contains(l.opts.Include, name) {
		return false
	}
	return !slices.Contains(l.opts.Exclude, name)
}

func isPseudoDevice(name string) bool {
	if slices.Contains(pseudoDevices, name) {
		return true
	}
	for _, prefix := range pseudoDevicePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// frameSource is the part of *pcap.Handle the read loop uses.
type frameSource interface {
	ZeroCopyReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// pcapDevice is a live libpcap capture on one interface.
type pcapDevice struct {
	name string
	desc string
	opts PcapOptions

	mu       sync.Mutex
	handle   *pcap.Handle
	handler  atomic.Pointer[model.FrameHandler]
	started  atomic.Bool
	stopping atomic.Bool
	wg       sync.WaitGroup
}

func (d *pcapDevice) Name() string        { return d.name }
func (d *pcapDevice) Description() string { return d.desc }

// Open activates the device. The read timeout bounds how long StopCapture
// waits for the read loop to notice it should exit.
func (d *pcapDevice) Open(mode Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle != nil {
		return fmt.Errorf("device %s already open", d.name)
	}

	inactive, err := pcap.NewInactiveHandle(d.name)
	if err != nil {
		return fmt.Errorf("failed to create inactive handle on %s: %w", d.name, err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(d.opts.SnapLen); err != nil {
		return fmt.Errorf("failed to set snap length: %w", err)
	}
	if err := inactive.SetPromisc(mode == ModePromiscuous); err != nil {
		return fmt.Errorf("failed to set promiscuous mode: %w", err)
	}
	if err := inactive.SetTimeout(d.opts.ReadTimeout); err != nil {
		return fmt.Errorf("failed to set timeout: %w", err)
	}
	if err := inactive.SetImmediateMode(true); err != nil {
		return fmt.Errorf("failed to set immediate mode: %w", err)
	}

	handle, err := inactive.Activate()
	if err != nil {
		return fmt.Errorf("failed to activate pcap handle: %w", err)
	}
	if d.opts.BPFFilter != "" {
		if err := handle.SetBPFFilter(d.opts.BPFFilter); err != nil {
			handle.Close()
			return fmt.Errorf("failed to set BPF filter %q: %w", d.opts.BPFFilter, err)
		}
	}
	d.handle = handle
	return nil
}

func (d *pcapDevice) LinkType() layers.LinkType {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil {
		return layers.LinkTypeEthernet
	}
	return d.handle.LinkType()
}

func (d *pcapDevice) SetHandler(h model.FrameHandler) {
	if h == nil {
		d.handler.Store(nil)
		return
	}
	d.handler.Store(&h)
}

func (d *pcapDevice) StartCapture() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil {
		return fmt.Errorf("device %s is not open", d.name)
	}
	if d.started.Load() {
		return nil
	}
	d.stopping.Store(false)
	d.started.Store(true)
	d.wg.Add(1)
	go d.readLoop(d.handle)
	return nil
}

// readLoop delivers frames until StopCapture or a read failure. Started
// reports false once the loop has exited on its own.
func (d *pcapDevice) readLoop(src frameSource) {
	defer d.wg.Done()
	defer d.started.Store(false)
	for !d.stopping.Load() {
		data, ci, err := src.ZeroCopyReadPacketData()
		if err != nil {
			if errors.Is(err, pcap.NextErrorTimeoutExpired) {
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, pcap.NextErrorNoMorePackets) {
				return
			}
			// The adapter went away; the next refresh rebinds it.
			log.Printf("CaptureManager: read loop on %s ended: %v", d.name, err)
			return
		}
		if h := d.handler.Load(); h != nil {
			(*h)(data, ci)
		}
	}
}

// StopCapture stops the read loop and waits for it to exit.
func (d *pcapDevice) StopCapture() error {
	d.stopping.Store(true)
	d.wg.Wait()
	d.started.Store(false)
	return nil
}

func (d *pcapDevice) Close() error {
	if err := d.StopCapture(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle != nil {
		d.handle.Close()
		d.handle = nil
	}
	return nil
}

func (d *pcapDevice) Started() bool {
	return d.started.Load()
}

var _ Device = (*pcapDevice)(nil)
var _ Lister = (*PcapLister)(nil)
