package model

import (
	"fmt"
	"net/netip"
	"sync/atomic"
	"time"
)

// Protocol is the IP protocol number of a packet's transport layer.
type Protocol uint8

const (
	ProtocolTCP Protocol = 6
	ProtocolUDP Protocol = 17
)

func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "TCP"
	case ProtocolUDP:
		return "UDP"
	default:
		return fmt.Sprintf("proto-%d", uint8(p))
	}
}

// Direction classifies a single packet relative to the host.
type Direction uint8

const (
	DirectionUnknown Direction = iota
	DirectionUpload            // host -> remote
	DirectionDownload          // remote -> host
)

func (d Direction) String() string {
	switch d {
	case DirectionUpload:
		return "upload"
	case DirectionDownload:
		return "download"
	default:
		return "unknown"
	}
}

// FiveTuple represents the 5-tuple of a network packet.
type FiveTuple struct {
	SrcIP    netip.Addr
	DstIP    netip.Addr
	SrcPort  uint16
	DstPort  uint16
	Protocol Protocol
}

// PacketInfo holds the metadata extracted from a single packet.
type PacketInfo struct {
	FiveTuple FiveTuple
	// Length is the IPv4 total length, independent of the capture snap length.
	Length int
}

// FlowKey identifies a flow from the host's point of view. Both directions of
// a conversation map onto the same key because the sides are normalized to
// local and remote before the key is built.
type FlowKey struct {
	LocalIP    netip.Addr
	RemoteIP   netip.Addr
	LocalPort  uint16
	RemotePort uint16
	Protocol   Protocol
}

func (k FlowKey) String() string {
	return fmt.Sprintf("%s %s <-> %s",
		k.Protocol,
		netip.AddrPortFrom(k.LocalIP, k.LocalPort),
		netip.AddrPortFrom(k.RemoteIP, k.RemotePort))
}

// PacketFlow is the aggregation unit for one FlowKey. Counters are updated
// with atomics so the capture goroutines never take a lock to account bytes.
type PacketFlow struct {
	Key FlowKey

	protocol        atomic.Uint32
	uploadBytes     atomic.Uint64
	downloadBytes   atomic.Uint64
	uploadPackets   atomic.Uint64
	downloadPackets atomic.Uint64
	firstSeen       atomic.Int64
	lastSeen        atomic.Int64
}

// NewPacketFlow creates an empty flow for key.
func NewPacketFlow(key FlowKey, now time.Time) *PacketFlow {
	f := &PacketFlow{Key: key}
	f.protocol.Store(uint32(key.Protocol))
	f.firstSeen.Store(now.UnixNano())
	f.lastSeen.Store(now.UnixNano())
	return f
}

// SetProtocol records the transport protocol of the latest packet classified
// into this flow.
func (f *PacketFlow) SetProtocol(p Protocol) {
	f.protocol.Store(uint32(p))
}

// Protocol returns the most recently recorded transport protocol.
func (f *PacketFlow) Protocol() Protocol {
	return Protocol(f.protocol.Load())
}

// Add accounts one packet of n bytes in direction dir.
func (f *PacketFlow) Add(dir Direction, n int, now time.Time) {
	switch dir {
	case DirectionUpload:
		f.uploadBytes.Add(uint64(n))
		f.uploadPackets.Add(1)
	case DirectionDownload:
		f.downloadBytes.Add(uint64(n))
		f.downloadPackets.Add(1)
	default:
		return
	}
	f.lastSeen.Store(now.UnixNano())
}

// LastSeen returns the time of the most recent packet.
func (f *PacketFlow) LastSeen() time.Time {
	return time.Unix(0, f.lastSeen.Load())
}

// Record returns a point-in-time copy of the flow's counters.
func (f *PacketFlow) Record() FlowRecord {
	return FlowRecord{
		Key:             f.Key,
		Protocol:        f.Protocol(),
		UploadBytes:     f.uploadBytes.Load(),
		DownloadBytes:   f.downloadBytes.Load(),
		UploadPackets:   f.uploadPackets.Load(),
		DownloadPackets: f.downloadPackets.Load(),
		FirstSeen:       time.Unix(0, f.firstSeen.Load()),
		LastSeen:        time.Unix(0, f.lastSeen.Load()),
	}
}

// FlowRecord is a plain, serializable copy of a PacketFlow.
type FlowRecord struct {
	Key             FlowKey
	Protocol        Protocol
	UploadBytes     uint64
	DownloadBytes   uint64
	UploadPackets   uint64
	DownloadPackets uint64
	FirstSeen       time.Time
	LastSeen        time.Time
}

// TotalBytes is the sum of both directions.
func (r FlowRecord) TotalBytes() uint64 {
	return r.UploadBytes + r.DownloadBytes
}

// Store is the aggregate traffic store the flow resolver produces into.
type Store interface {
	// LookupOrCreate returns the single live PacketFlow for key, creating and
	// registering it on first use.
	LookupOrCreate(key FlowKey) *PacketFlow

	// Increment accounts bytes for one packet of flow in direction dir.
	Increment(flow *PacketFlow, dir Direction, bytes int)
}
