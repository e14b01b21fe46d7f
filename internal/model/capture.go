package model

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// FrameHandler receives every frame captured on a device. data is only valid
// for the duration of the call.
type FrameHandler func(data []byte, ci gopacket.CaptureInfo)

// HandlerFactory builds the frame handler attached to a device when it
// starts. Each device gets its own handler.
type HandlerFactory interface {
	NewHandler(device string, link layers.LinkType) FrameHandler
}

// DeviceStatus is a read-only view of a bound capture device.
type DeviceStatus struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	LinkType    string `json:"link_type"`
	Capturing   bool   `json:"capturing"`
}
