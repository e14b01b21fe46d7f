// Package topology keeps the host's local IPv4 subnets and answers whether an
// address belongs to one of them.
package topology

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"net"
	"net/netip"
	"sync/atomic"
)

// Subnet is one IPv4 address of the host together with its prefix mask.
type Subnet struct {
	Interface string
	Host      netip.Addr
	Bits      int

	host uint32
	mask uint32
}

// NewSubnet builds a Subnet from an interface address. The mask must be a
// contiguous IPv4 prefix mask.
func NewSubnet(iface string, host net.IP, mask net.IPMask) (Subnet, error) {
	h := host.To4()
	if h == nil {
		return Subnet{}, fmt.Errorf("not an IPv4 address: %v", host)
	}
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		return Subnet{}, fmt.Errorf("not an IPv4 mask: %v", mask)
	}
	m := binary.BigEndian.Uint32(mask)
	ones := bits.LeadingZeros32(^m)
	if ones < 32 && m<<ones != 0 {
		return Subnet{}, fmt.Errorf("non-contiguous mask %v", net.IP(mask))
	}
	return Subnet{
		Interface: iface,
		Host:      netip.AddrFrom4([4]byte(h)),
		Bits:      ones,
		host:      binary.BigEndian.Uint32(h),
		mask:      m,
	}, nil
}

// Contains reports whether ip is on the same network as the subnet's host.
func (s Subnet) Contains(ip netip.Addr) bool {
	ip = ip.Unmap()
	if !ip.Is4() {
		return false
	}
	a := ip.As4()
	return binary.BigEndian.Uint32(a[:])&s.mask == s.host&s.mask
}

// Prefix returns the subnet's network prefix.
func (s Subnet) Prefix() netip.Prefix {
	return netip.PrefixFrom(s.Host, s.Bits).Masked()
}

func (s Subnet) String() string {
	return fmt.Sprintf("%s/%d (%s)", s.Host, s.Bits, s.Interface)
}

// Interface describes one host network interface as reported by the OS.
type Interface struct {
	Name  string
	IPv4  bool
	Addrs []net.IPNet
}

// Topology is an immutable, ordered list of local subnets.
type Topology struct {
	subnets []Subnet
}

// Empty is the topology used before the first refresh.
var Empty = &Topology{}

// New returns a topology over subnets, preserving their order.
func New(subnets ...Subnet) *Topology {
	return &Topology{subnets: append([]Subnet(nil), subnets...)}
}

// Rebuild builds a topology from the host's interfaces. Interfaces without
// IPv4 or without usable unicast IPv4 addresses are skipped.
func Rebuild(ifaces []Interface) *Topology {
	var subnets []Subnet
	for _, iface := range ifaces {
		if !iface.IPv4 {
			continue
		}
		for _, addr := range iface.Addrs {
			if addr.IP.To4() == nil || addr.Mask == nil {
				continue
			}
			if addr.IP.IsMulticast() || addr.IP.IsUnspecified() {
				continue
			}
			s, err := NewSubnet(iface.Name, addr.IP, addr.Mask)
			if err != nil {
				continue
			}
			subnets = append(subnets, s)
		}
	}
	return &Topology{subnets: subnets}
}

// Classify returns the host's own address on the first subnet containing ip.
// When overlapping subnets match, the first in enumeration order wins.
func (t *Topology) Classify(ip netip.Addr) (netip.Addr, bool) {
	for i := range t.subnets {
		if t.subnets[i].Contains(ip) {
			return t.subnets[i].Host, true
		}
	}
	return netip.Addr{}, false
}

// Subnets returns a copy of the subnets in enumeration order.
func (t *Topology) Subnets() []Subnet {
	return append([]Subnet(nil), t.subnets...)
}

// Len returns the number of subnets.
func (t *Topology) Len() int {
	return len(t.subnets)
}

// Current publishes the latest topology to packet goroutines without locking.
type Current struct {
	p atomic.Pointer[Topology]
}

// Load returns the current topology, or Empty before the first Store.
func (c *Current) Load() *Topology {
	if t := c.p.Load(); t != nil {
		return t
	}
	return Empty
}

// Store replaces the current topology.
func (c *Current) Store(t *Topology) {
	c.p.Store(t)
}
