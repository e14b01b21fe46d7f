package protocol

import (
	"encoding/binary"
	"net/netip"

	"NetSpeedMonitor/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Parser extracts the 5-tuple and IP length from raw frames. It reuses its
// layer structs between calls, so one Parser must not be shared between
// goroutines; create one per capture device.
type Parser struct {
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType

	eth      layers.Ethernet
	loopback layers.Loopback
	sll      layers.LinuxSLL
	dot1q    layers.Dot1Q
	ip4      layers.IPv4
	ip6      layers.IPv6
	tcp      layers.TCP
	udp      layers.UDP

	// fragments remembers the ports carried by first fragments so the
	// rest of the datagram is attributed to the same flow.
	fragments map[fragmentKey]fragmentPorts
}

// maxPendingFragments bounds the fragment table. Datagrams whose last
// fragment never arrives would otherwise pin entries forever.
const maxPendingFragments = 256

type fragmentKey struct {
	src, dst netip.Addr
	id       uint16
	proto    layers.IPProtocol
}

type fragmentPorts struct {
	src, dst uint16
}

// FirstLayer maps a capture link type to the layer its frames start with.
func FirstLayer(link layers.LinkType) gopacket.LayerType {
	switch link {
	case layers.LinkTypeNull, layers.LinkTypeLoop:
		return layers.LayerTypeLoopback
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		return layers.LayerTypeIPv4
	case layers.LinkTypeLinuxSLL:
		return layers.LayerTypeLinuxSLL
	default:
		return layers.LayerTypeEthernet
	}
}

// NewParser creates a parser for frames of the given link type.
func NewParser(link layers.LinkType) *Parser {
	p := &Parser{
		decoded:   make([]gopacket.LayerType, 0, 8),
		fragments: make(map[fragmentKey]fragmentPorts),
	}
	p.parser = gopacket.NewDecodingLayerParser(FirstLayer(link),
		&p.eth, &p.loopback, &p.sll, &p.dot1q, &p.ip4, &p.ip6, &p.tcp, &p.udp)
	p.parser.IgnoreUnsupported = true
	return p
}

// Decode parses one frame. It returns false for frames that are not IPv4
// TCP or UDP, which is expected for ARP, IPv6, ICMP and similar traffic.
//
// Fragmented datagrams are attributed per fragment, each with its own IP
// total length. The first fragment supplies the ports; later fragments
// reuse them. A later fragment seen without its first fragment is dropped.
func (p *Parser) Decode(data []byte) (model.PacketInfo, bool) {
	var info model.PacketInfo

	// With IgnoreUnsupported set, a decode error only means a layer was
	// malformed; whatever decoded before it is still inspected.
	_ = p.parser.DecodeLayers(data, &p.decoded)

	var haveIP, haveTransport bool
	for _, typ := range p.decoded {
		switch typ {
		case layers.LayerTypeIPv4:
			src, ok1 := netip.AddrFromSlice(p.ip4.SrcIP)
			dst, ok2 := netip.AddrFromSlice(p.ip4.DstIP)
			if !ok1 || !ok2 {
				return info, false
			}
			info.FiveTuple.SrcIP = src.Unmap()
			info.FiveTuple.DstIP = dst.Unmap()
			info.FiveTuple.Protocol = model.Protocol(p.ip4.Protocol)
			info.Length = int(p.ip4.Length)
			haveIP = true
			if p.isFragment() {
				return info, p.decodeFragment(&info)
			}
		case layers.LayerTypeTCP:
			info.FiveTuple.SrcPort = uint16(p.tcp.SrcPort)
			info.FiveTuple.DstPort = uint16(p.tcp.DstPort)
			haveTransport = true
		case layers.LayerTypeUDP:
			info.FiveTuple.SrcPort = uint16(p.udp.SrcPort)
			info.FiveTuple.DstPort = uint16(p.udp.DstPort)
			haveTransport = true
		}
	}
	if !haveIP || !haveTransport {
		return info, false
	}
	return info, true
}

func (p *Parser) isFragment() bool {
	return p.ip4.Flags&layers.IPv4MoreFragments != 0 || p.ip4.FragOffset != 0
}

// decodeFragment fills the ports of a fragmented TCP or UDP datagram.
func (p *Parser) decodeFragment(info *model.PacketInfo) bool {
	proto := p.ip4.Protocol
	if proto != layers.IPProtocolTCP && proto != layers.IPProtocolUDP {
		return false
	}
	key := fragmentKey{
		src:   info.FiveTuple.SrcIP,
		dst:   info.FiveTuple.DstIP,
		id:    p.ip4.Id,
		proto: proto,
	}
	last := p.ip4.Flags&layers.IPv4MoreFragments == 0

	var ports fragmentPorts
	if p.ip4.FragOffset == 0 {
		// TCP and UDP both start with source and destination port.
		if len(p.ip4.Payload) < 4 {
			return false
		}
		ports.src = binary.BigEndian.Uint16(p.ip4.Payload[0:2])
		ports.dst = binary.BigEndian.Uint16(p.ip4.Payload[2:4])
		if !last {
			if len(p.fragments) >= maxPendingFragments {
				clear(p.fragments)
			}
			p.fragments[key] = ports
		}
	} else {
		var ok bool
		if ports, ok = p.fragments[key]; !ok {
			return false
		}
		if last {
			delete(p.fragments, key)
		}
	}
	info.FiveTuple.SrcPort = ports.src
	info.FiveTuple.DstPort = ports.dst
	return true
}
