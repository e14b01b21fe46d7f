package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// flow is one synthetic conversation between a local host and a remote peer.
type flow struct {
	local, remote         net.IP
	localPort, remotePort uint16
	udp                   bool
}

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	packetCount := flag.Int("c", 1000, "Number of packets to generate")
	flowCount := flag.Int("flows", 50, "Number of distinct flows")
	subnet := flag.String("local", "192.168.1.0/24", "Local subnet the generated hosts live in")
	flag.Parse()

	_, localNet, err := net.ParseCIDR(*subnet)
	if err != nil || localNet.IP.To4() == nil {
		log.Fatalf("Invalid local subnet %q", *subnet)
	}

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	flows := make([]flow, *flowCount)
	for i := range flows {
		flows[i] = flow{
			local:      hostIn(localNet, rng),
			remote:     net.IP{byte(rng.Intn(223) + 1), byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(254) + 1)},
			localPort:  uint16(rng.Intn(65535-1024) + 1024),
			remotePort: []uint16{443, 80, 53, 22, 8080}[rng.Intn(5)],
			udp:        rng.Intn(4) == 0,
		}
	}

	log.Printf("Generating %d packets over %d flows into %s...", *packetCount, len(flows), *outputFile)

	ts := time.Now()
	for i := 0; i < *packetCount; i++ {
		if (i+1)%100000 == 0 {
			log.Printf("Generated %d packets...", i+1)
		}
		fl := flows[rng.Intn(len(flows))]
		upload := rng.Intn(3) == 0 // downloads dominate, as on a typical client

		data, err := serialize(fl, upload, rng.Intn(1400)+50, rng)
		if err != nil {
			log.Fatalf("Failed to serialize layers: %v", err)
		}

		ts = ts.Add(time.Duration(rng.Intn(2000)) * time.Microsecond)
		ci := gopacket.CaptureInfo{
			Timestamp:     ts,
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := pcapWriter.WritePacket(ci, data); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
	}

	log.Printf("Successfully generated %d packets into %s.", *packetCount, *outputFile)
}

func hostIn(n *net.IPNet, rng *rand.Rand) net.IP {
	base := n.IP.To4()
	ones, bits := n.Mask.Size()
	size := 1 << (bits - ones)
	ip := make(net.IP, 4)
	copy(ip, base)
	off := 1
	if size > 2 {
		off = rng.Intn(size-2) + 1
	}
	for i := 3; i >= 0 && off > 0; i-- {
		sum := int(ip[i]) + off
		ip[i] = byte(sum)
		off = sum >> 8
	}
	return ip
}

func serialize(fl flow, upload bool, payloadSize int, rng *rand.Rand) ([]byte, error) {
	src, dst := fl.local, fl.remote
	sport, dport := fl.localPort, fl.remotePort
	if !upload {
		src, dst = dst, src
		sport, dport = dport, sport
	}

	ethLayer := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ipLayer := &layers.IPv4{
		SrcIP:   src,
		DstIP:   dst,
		Version: 4,
		TTL:     64,
	}

	payload := make([]byte, payloadSize)
	rng.Read(payload)

	var transport gopacket.SerializableLayer
	if fl.udp {
		ipLayer.Protocol = layers.IPProtocolUDP
		udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
		udp.SetNetworkLayerForChecksum(ipLayer)
		transport = udp
	} else {
		ipLayer.Protocol = layers.IPProtocolTCP
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(sport),
			DstPort: layers.TCPPort(dport),
			Seq:     rng.Uint32(),
			Ack:     rng.Uint32(),
			ACK:     true,
			Window:  14600,
		}
		tcp.SetNetworkLayerForChecksum(ipLayer)
		transport = tcp
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}
	if err := gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, transport, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
