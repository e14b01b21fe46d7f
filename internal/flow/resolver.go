// Package flow attributes packets to flows using the host's subnet topology.
package flow

import (
	"net/netip"

	"NetSpeedMonitor/internal/model"
	"NetSpeedMonitor/internal/topology"
)

// Classify decides which side of a packet is local and builds its flow key.
//
// Exactly one side must belong to a local subnet. Packets where both or
// neither side is local get DirectionUnknown and a zero key: the direction
// cannot be decided and attributing them to a flow would be a guess.
func Classify(src, dst netip.Addr, srcPort, dstPort uint16, proto model.Protocol, topo *topology.Topology) (model.FlowKey, model.Direction) {
	_, srcLocal := topo.Classify(src)
	_, dstLocal := topo.Classify(dst)

	switch {
	case srcLocal && !dstLocal:
		return model.FlowKey{
			LocalIP:    src.Unmap(),
			LocalPort:  srcPort,
			RemoteIP:   dst.Unmap(),
			RemotePort: dstPort,
			Protocol:   proto,
		}, model.DirectionUpload
	case dstLocal && !srcLocal:
		return model.FlowKey{
			LocalIP:    dst.Unmap(),
			LocalPort:  dstPort,
			RemoteIP:   src.Unmap(),
			RemotePort: srcPort,
			Protocol:   proto,
		}, model.DirectionDownload
	default:
		return model.FlowKey{}, model.DirectionUnknown
	}
}

// Resolver maps packets onto flows registered in an aggregate store.
type Resolver struct {
	store model.Store
}

// NewResolver creates a resolver producing into store.
func NewResolver(store model.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the flow and direction of a packet. ok is false when the
// direction cannot be determined, in which case nothing is registered.
func (r *Resolver) Resolve(src, dst netip.Addr, srcPort, dstPort uint16, proto model.Protocol, topo *topology.Topology) (flow *model.PacketFlow, dir model.Direction, ok bool) {
	key, dir := Classify(src, dst, srcPort, dstPort, proto, topo)
	if dir == model.DirectionUnknown {
		return nil, dir, false
	}
	flow = r.store.LookupOrCreate(key)
	flow.SetProtocol(proto)
	return flow, dir, true
}
