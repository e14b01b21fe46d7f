// Package capture owns the set of capture devices and keeps their bindings
// and the local subnet topology consistent across network changes.
package capture

import (
	"NetSpeedMonitor/internal/model"

	"github.com/google/gopacket/layers"
)

// Mode selects how a device is opened.
type Mode int

const (
	// ModeNormal captures only traffic addressed to the host.
	ModeNormal Mode = iota
	ModePromiscuous
)

// Device is one capturable network interface.
type Device interface {
	Name() string
	Description() string

	Open(mode Mode) error
	// LinkType is valid after Open.
	LinkType() layers.LinkType

	// SetHandler attaches h, replacing any previous handler. nil detaches.
	SetHandler(h model.FrameHandler)

	StartCapture() error
	StopCapture() error
	Close() error

	// Started reports whether the capture loop is running.
	Started() bool
}

// Lister enumerates the devices currently available for capture.
type Lister interface {
	List() ([]Device, error)
}
