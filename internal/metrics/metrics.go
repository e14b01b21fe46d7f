// Package metrics exposes capture and attribution counters to Prometheus.
package metrics

import (
	"NetSpeedMonitor/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

// FrameResult is the outcome of processing one captured frame.
type FrameResult int

const (
	FrameAttributed   FrameResult = iota // counted into a flow
	FrameUnparsed                        // not IPv4 TCP/UDP, or zero length
	FrameUndetermined                    // both or neither side local
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	frames             *prometheus.CounterVec
	framesAttributed   prometheus.Counter
	framesUnparsed     prometheus.Counter
	framesUndetermined prometheus.Counter

	bytes         *prometheus.CounterVec
	uploadBytes   prometheus.Counter
	downloadBytes prometheus.Counter

	devicesCapturing   prometheus.Gauge
	deviceOpenFailures prometheus.Counter
	refreshes          *prometheus.CounterVec
	subnets            prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netspeed",
			Name:      "frames_total",
			Help:      "Captured frames by processing result.",
		}, []string{"result"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netspeed",
			Name:      "bytes_total",
			Help:      "IP bytes attributed to flows by direction.",
		}, []string{"direction"}),
		devicesCapturing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netspeed",
			Name:      "devices_capturing",
			Help:      "Number of capture devices currently bound.",
		}),
		deviceOpenFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netspeed",
			Name:      "device_open_failures_total",
			Help:      "Capture devices that failed to open or start.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netspeed",
			Name:      "refreshes_total",
			Help:      "Device and topology refreshes by result.",
		}, []string{"result"}),
		subnets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netspeed",
			Name:      "local_subnets",
			Help:      "Number of local IPv4 subnets in the current topology.",
		}),
	}
	m.framesAttributed = m.frames.WithLabelValues("attributed")
	m.framesUnparsed = m.frames.WithLabelValues("unparsed")
	m.framesUndetermined = m.frames.WithLabelValues("undetermined")
	m.uploadBytes = m.bytes.WithLabelValues(model.DirectionUpload.String())
	m.downloadBytes = m.bytes.WithLabelValues(model.DirectionDownload.String())

	if reg != nil {
		reg.MustRegister(m.frames, m.bytes, m.devicesCapturing, m.deviceOpenFailures, m.refreshes, m.subnets)
	}
	return m
}

// ObserveFrame counts one processed frame.
func (m *Metrics) ObserveFrame(result FrameResult) {
	if m == nil {
		return
	}
	switch result {
	case FrameAttributed:
		m.framesAttributed.Inc()
	case FrameUnparsed:
		m.framesUnparsed.Inc()
	case FrameUndetermined:
		m.framesUndetermined.Inc()
	}
}

// ObserveBytes counts attributed bytes.
func (m *Metrics) ObserveBytes(dir model.Direction, n int) {
	if m == nil {
		return
	}
	switch dir {
	case model.DirectionUpload:
		m.uploadBytes.Add(float64(n))
	case model.DirectionDownload:
		m.downloadBytes.Add(float64(n))
	}
}

// SetDevicesCapturing records the number of bound devices.
func (m *Metrics) SetDevicesCapturing(n int) {
	if m == nil {
		return
	}
	m.devicesCapturing.Set(float64(n))
}

// DeviceOpenFailed counts a device that could not be bound.
func (m *Metrics) DeviceOpenFailed() {
	if m == nil {
		return
	}
	m.deviceOpenFailures.Inc()
}

// RefreshDone counts a refresh attempt.
func (m *Metrics) RefreshDone(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.refreshes.WithLabelValues("ok").Inc()
	} else {
		m.refreshes.WithLabelValues("failed").Inc()
	}
}

// SetSubnets records the size of the current topology.
func (m *Metrics) SetSubnets(n int) {
	if m == nil {
		return
	}
	m.subnets.Set(float64(n))
}
