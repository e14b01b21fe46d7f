package capture

import (
	"errors"
	"fmt"
)

// Kind defines the category of a capture error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindEnumeration covers an unavailable capture library or driver and a
	// failed network-change subscription. Returned from InitAndStart.
	KindEnumeration
	// KindDeviceOpen is a single device that could not be opened or started.
	KindDeviceOpen
	// KindRefresh is a failed re-enumeration; previous bindings stay in effect.
	KindRefresh
)

func (k Kind) String() string {
	switch k {
	case KindEnumeration:
		return "enumeration"
	case KindDeviceOpen:
		return "device_open"
	case KindRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Error is a categorized capture error.
type Error struct {
	Kind   Kind
	Device string
	Err    error
}

func (e *Error) Error() string {
	if e.Device != "" {
		return fmt.Sprintf("capture %s on %s: %v", e.Kind, e.Device, e.Err)
	}
	return fmt.Sprintf("capture %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindUnknown if it is not a capture error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
