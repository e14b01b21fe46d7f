package protocol

import (
	"net"
	"net/netip"
	"testing"

	"NetSpeedMonitor/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("Failed to serialize layers: %v", err)
	}
	return buf.Bytes()
}

func ethernet(typ layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: typ,
	}
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.IPv4(192, 168, 1, 10),
		DstIP:    net.IPv4(8, 8, 8, 8),
	}
}

func TestParser_TCP(t *testing.T) {
	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 51000, DstPort: 443, SYN: true}
	tcp.SetNetworkLayerForChecksum(ip)
	payload := gopacket.Payload(make([]byte, 100))
	frame := serialize(t, ethernet(layers.EthernetTypeIPv4), ip, tcp, payload)

	info, ok := NewParser(layers.LinkTypeEthernet).Decode(frame)
	if !ok {
		t.Fatalf("Expected TCP frame to parse")
	}
	ft := info.FiveTuple
	if ft.SrcIP != netip.MustParseAddr("192.168.1.10") || ft.DstIP != netip.MustParseAddr("8.8.8.8") {
		t.Errorf("Unexpected addresses: %v -> %v", ft.SrcIP, ft.DstIP)
	}
	if ft.SrcPort != 51000 || ft.DstPort != 443 {
		t.Errorf("Unexpected ports: %d -> %d", ft.SrcPort, ft.DstPort)
	}
	if ft.Protocol != model.ProtocolTCP {
		t.Errorf("Expected TCP, got %v", ft.Protocol)
	}
	if want := 20 + 20 + 100; info.Length != want {
		t.Errorf("Expected IP length %d, got %d", want, info.Length)
	}
}

func TestParser_UDP(t *testing.T) {
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	udp.SetNetworkLayerForChecksum(ip)
	frame := serialize(t, ethernet(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload([]byte("query")))

	info, ok := NewParser(layers.LinkTypeEthernet).Decode(frame)
	if !ok {
		t.Fatalf("Expected UDP frame to parse")
	}
	if info.FiveTuple.Protocol != model.ProtocolUDP || info.FiveTuple.DstPort != 53 {
		t.Errorf("Unexpected tuple: %+v", info.FiveTuple)
	}
	if want := 20 + 8 + 5; info.Length != want {
		t.Errorf("Expected IP length %d, got %d", want, info.Length)
	}
}

func TestParser_TruncatedFrameKeepsWireLength(t *testing.T) {
	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 1, DstPort: 2, ACK: true}
	tcp.SetNetworkLayerForChecksum(ip)
	frame := serialize(t, ethernet(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload(make([]byte, 1400)))

	// Simulate a 96-byte snap length.
	info, ok := NewParser(layers.LinkTypeEthernet).Decode(frame[:96])
	if !ok {
		t.Fatalf("Expected truncated frame to parse")
	}
	if want := 20 + 20 + 1400; info.Length != want {
		t.Errorf("Expected IP length %d, got %d", want, info.Length)
	}
}

func TestParser_RawIPLinkType(t *testing.T) {
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 1000, DstPort: 2000}
	udp.SetNetworkLayerForChecksum(ip)
	frame := serialize(t, ip, udp)

	info, ok := NewParser(layers.LinkTypeRaw).Decode(frame)
	if !ok {
		t.Fatalf("Expected raw IPv4 frame to parse")
	}
	if info.FiveTuple.SrcPort != 1000 {
		t.Errorf("Unexpected source port %d", info.FiveTuple.SrcPort)
	}
}

func TestParser_RejectsNonIPv4Transport(t *testing.T) {
	p := NewParser(layers.LinkTypeEthernet)

	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{0, 1, 2, 3, 4, 5},
		SourceProtAddress: []byte{192, 168, 1, 10},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{192, 168, 1, 1},
	}
	if _, ok := p.Decode(serialize(t, ethernet(layers.EthernetTypeARP), arp)); ok {
		t.Errorf("ARP frame should not parse")
	}

	icmpIP := ipv4(layers.IPProtocolICMPv4)
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}
	if _, ok := p.Decode(serialize(t, ethernet(layers.EthernetTypeIPv4), icmpIP, icmp)); ok {
		t.Errorf("ICMP frame should not parse")
	}

	ip6 := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolUDP,
		SrcIP:      net.ParseIP("2001:db8::1"),
		DstIP:      net.ParseIP("2001:db8::2"),
	}
	udp := &layers.UDP{SrcPort: 1, DstPort: 2}
	udp.SetNetworkLayerForChecksum(ip6)
	if _, ok := p.Decode(serialize(t, ethernet(layers.EthernetTypeIPv6), ip6, udp)); ok {
		t.Errorf("IPv6 frame should not parse")
	}

	if _, ok := p.Decode([]byte{0x01, 0x02}); ok {
		t.Errorf("Garbage should not parse")
	}
}

func TestParser_Reuse(t *testing.T) {
	p := NewParser(layers.LinkTypeEthernet)

	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 1, DstPort: 2}
	udp.SetNetworkLayerForChecksum(ip)
	good := serialize(t, ethernet(layers.EthernetTypeIPv4), ip, udp)

	if _, ok := p.Decode(good); !ok {
		t.Fatalf("Expected first decode to succeed")
	}
	if _, ok := p.Decode(good[:10]); ok {
		t.Errorf("Short frame after a good one should not reuse stale layers")
	}
}

func fragment(id, offset uint16, more bool) *layers.IPv4 {
	ip := ipv4(layers.IPProtocolUDP)
	ip.Id = id
	ip.FragOffset = offset
	if more {
		ip.Flags = layers.IPv4MoreFragments
	}
	return ip
}

func TestParser_Fragments(t *testing.T) {
	p := NewParser(layers.LinkTypeEthernet)

	// UDP header 40000 -> 5000 followed by 16 bytes of data.
	first := []byte{0x9c, 0x40, 0x13, 0x88, 0x00, 0x22, 0x00, 0x00}
	first = append(first, make([]byte, 16)...)
	rest := make([]byte, 10)

	frame1 := serialize(t, ethernet(layers.EthernetTypeIPv4), fragment(77, 0, true), gopacket.Payload(first))
	frame2 := serialize(t, ethernet(layers.EthernetTypeIPv4), fragment(77, 3, false), gopacket.Payload(rest))

	info, ok := p.Decode(frame1)
	if !ok {
		t.Fatalf("Expected first fragment to parse")
	}
	if info.FiveTuple.SrcPort != 40000 || info.FiveTuple.DstPort != 5000 {
		t.Errorf("Unexpected ports on first fragment: %d -> %d", info.FiveTuple.SrcPort, info.FiveTuple.DstPort)
	}
	if want := 20 + len(first); info.Length != want {
		t.Errorf("Expected first fragment length %d, got %d", want, info.Length)
	}

	info, ok = p.Decode(frame2)
	if !ok {
		t.Fatalf("Expected trailing fragment to parse after the first one")
	}
	if info.FiveTuple.SrcPort != 40000 || info.FiveTuple.DstPort != 5000 {
		t.Errorf("Unexpected ports on trailing fragment: %d -> %d", info.FiveTuple.SrcPort, info.FiveTuple.DstPort)
	}
	if info.FiveTuple.Protocol != model.ProtocolUDP {
		t.Errorf("Expected UDP, got %v", info.FiveTuple.Protocol)
	}
	if want := 20 + len(rest); info.Length != want {
		t.Errorf("Expected trailing fragment length %d, got %d", want, info.Length)
	}
	if len(p.fragments) != 0 {
		t.Errorf("Expected fragment table to be empty after the last fragment, got %d", len(p.fragments))
	}

	// The datagram is complete, so a repeated trailing fragment is an orphan.
	if _, ok := p.Decode(frame2); ok {
		t.Errorf("Orphan trailing fragment should not parse")
	}
}

func TestParser_FragmentTableBounded(t *testing.T) {
	p := NewParser(layers.LinkTypeEthernet)
	head := []byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x10, 0x00, 0x00}

	for id := 0; id < maxPendingFragments+10; id++ {
		frame := serialize(t, ethernet(layers.EthernetTypeIPv4), fragment(uint16(id), 0, true), gopacket.Payload(head))
		if _, ok := p.Decode(frame); !ok {
			t.Fatalf("Expected first fragment %d to parse", id)
		}
	}
	if len(p.fragments) > maxPendingFragments {
		t.Errorf("Fragment table grew to %d entries", len(p.fragments))
	}
}
