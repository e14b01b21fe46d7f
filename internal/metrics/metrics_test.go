package metrics

import (
	"testing"

	"NetSpeedMonitor/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFrame(FrameAttributed)
	m.ObserveFrame(FrameAttributed)
	m.ObserveFrame(FrameUnparsed)
	m.ObserveBytes(model.DirectionUpload, 600)
	m.ObserveBytes(model.DirectionDownload, 40)
	m.ObserveBytes(model.DirectionUnknown, 1)
	m.SetDevicesCapturing(3)
	m.RefreshDone(true)
	m.RefreshDone(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.framesAttributed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesUnparsed))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.framesUndetermined))
	assert.Equal(t, 600.0, testutil.ToFloat64(m.uploadBytes))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.downloadBytes))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.devicesCapturing))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues("failed")))

	n, err := testutil.GatherAndCount(reg, "netspeed_frames_total")
	assert.NoError(t, err)
	assert.Equal(t, 3, n, "all result series are pre-created")
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveFrame(FrameAttributed)
	m.ObserveBytes(model.DirectionUpload, 1)
	m.SetDevicesCapturing(1)
	m.DeviceOpenFailed()
	m.RefreshDone(true)
	m.SetSubnets(2)
}
