// Package intake turns captured frames into flow byte counts.
package intake

import (
	"NetSpeedMonitor/internal/engine/protocol"
	"NetSpeedMonitor/internal/flow"
	"NetSpeedMonitor/internal/metrics"
	"NetSpeedMonitor/internal/model"
	"NetSpeedMonitor/internal/topology"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// FrameRecorder receives a copy of every captured frame.
type FrameRecorder interface {
	Enqueue(device string, link layers.LinkType, ci gopacket.CaptureInfo, data []byte)
}

// Pipeline builds per-device frame handlers that parse, attribute and
// account packets.
type Pipeline struct {
	resolver *flow.Resolver
	store    model.Store
	topo     *topology.Current
	metrics  *metrics.Metrics
	recorder FrameRecorder
}

// NewPipeline creates a pipeline producing into store. m and rec may be nil.
func NewPipeline(store model.Store, topo *topology.Current, m *metrics.Metrics, rec FrameRecorder) *Pipeline {
	return &Pipeline{
		resolver: flow.NewResolver(store),
		store:    store,
		topo:     topo,
		metrics:  m,
		recorder: rec,
	}
}

// NewHandler returns a handler for one device. The handler owns its parser
// and must only be called from that device's capture goroutine.
func (p *Pipeline) NewHandler(device string, link layers.LinkType) model.FrameHandler {
	parser := protocol.NewParser(link)
	return func(data []byte, ci gopacket.CaptureInfo) {
		if p.recorder != nil {
			p.recorder.Enqueue(device, link, ci, data)
		}
		p.handle(parser, data)
	}
}

func (p *Pipeline) handle(parser *protocol.Parser, data []byte) {
	info, ok := parser.Decode(data)
	if !ok || info.Length <= 0 {
		p.metrics.ObserveFrame(metrics.FrameUnparsed)
		return
	}

	ft := info.FiveTuple
	f, dir, ok := p.resolver.Resolve(ft.SrcIP, ft.DstIP, ft.SrcPort, ft.DstPort, ft.Protocol, p.topo.Load())
	if !ok {
		p.metrics.ObserveFrame(metrics.FrameUndetermined)
		return
	}
	p.store.Increment(f, dir, info.Length)
	p.metrics.ObserveFrame(metrics.FrameAttributed)
	p.metrics.ObserveBytes(dir, info.Length)
}

var _ model.HandlerFactory = (*Pipeline)(nil)
