package topology

import (
	"net"
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ipnet(t *testing.T, cidrWithHost string) net.IPNet {
	t.Helper()
	ip, n, err := net.ParseCIDR(cidrWithHost)
	require.NoError(t, err)
	return net.IPNet{IP: ip, Mask: n.Mask}
}

func mustSubnet(t *testing.T, iface, cidrWithHost string) Subnet {
	t.Helper()
	n := ipnet(t, cidrWithHost)
	s, err := NewSubnet(iface, n.IP, n.Mask)
	require.NoError(t, err)
	return s
}

func TestNewSubnet(t *testing.T) {
	s := mustSubnet(t, "eth0", "192.168.1.10/24")
	assert.Equal(t, netip.MustParseAddr("192.168.1.10"), s.Host)
	assert.Equal(t, 24, s.Bits)
	assert.Equal(t, netip.MustParsePrefix("192.168.1.0/24"), s.Prefix())

	_, err := NewSubnet("eth0", net.ParseIP("10.0.0.1"), net.IPv4Mask(255, 0, 255, 0))
	assert.Error(t, err, "non-contiguous mask must be rejected")

	_, err = NewSubnet("eth0", net.ParseIP("fe80::1"), net.CIDRMask(64, 128))
	assert.Error(t, err)

	full, err := NewSubnet("eth0", net.ParseIP("10.0.0.1"), net.CIDRMask(32, 32))
	require.NoError(t, err)
	assert.Equal(t, 32, full.Bits)
}

func TestClassify_Match(t *testing.T) {
	topo := New(mustSubnet(t, "eth0", "192.168.1.10/24"))

	for _, ip := range []string{"192.168.1.1", "192.168.1.10", "192.168.1.255"} {
		local, ok := topo.Classify(netip.MustParseAddr(ip))
		assert.True(t, ok, ip)
		assert.Equal(t, netip.MustParseAddr("192.168.1.10"), local, ip)
	}

	// IPv4-mapped IPv6 is treated as its IPv4 form.
	local, ok := topo.Classify(netip.MustParseAddr("::ffff:192.168.1.77"))
	assert.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("192.168.1.10"), local)
}

func TestClassify_NoMatch(t *testing.T) {
	topo := New(mustSubnet(t, "eth0", "192.168.1.10/24"))

	for _, ip := range []string{"192.168.2.1", "8.8.8.8", "2001:db8::1"} {
		_, ok := topo.Classify(netip.MustParseAddr(ip))
		assert.False(t, ok, ip)
	}

	_, ok := Empty.Classify(netip.MustParseAddr("192.168.1.1"))
	assert.False(t, ok)

	_, ok = topo.Classify(netip.Addr{})
	assert.False(t, ok)
}

func TestClassify_FirstMatchWins(t *testing.T) {
	topo := New(
		mustSubnet(t, "vpn0", "10.8.0.2/16"),
		mustSubnet(t, "eth0", "10.8.1.5/24"),
	)

	local, ok := topo.Classify(netip.MustParseAddr("10.8.1.9"))
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("10.8.0.2"), local)
}

func TestRebuild_SkipsUnqualifiedInterfaces(t *testing.T) {
	ifaces := []Interface{
		{Name: "lo", IPv4: true, Addrs: []net.IPNet{ipnet(t, "127.0.0.1/8")}},
		{Name: "eth0", IPv4: true, Addrs: []net.IPNet{
			ipnet(t, "192.168.1.10/24"),
			ipnet(t, "fe80::1/64"),
		}},
		{Name: "v6only", IPv4: false, Addrs: []net.IPNet{ipnet(t, "2001:db8::1/64")}},
		{Name: "down", IPv4: true},
		{Name: "nomask", IPv4: true, Addrs: []net.IPNet{{IP: net.ParseIP("172.16.0.1")}}},
	}

	topo := Rebuild(ifaces)
	subnets := topo.Subnets()
	require.Len(t, subnets, 2)
	assert.Equal(t, "lo", subnets[0].Interface)
	assert.Equal(t, "eth0", subnets[1].Interface)
	assert.Equal(t, 2, topo.Len())
}

func TestRebuild_Empty(t *testing.T) {
	topo := Rebuild(nil)
	assert.Equal(t, 0, topo.Len())
	_, ok := topo.Classify(netip.MustParseAddr("10.0.0.1"))
	assert.False(t, ok)
}

func TestCurrent_LoadStore(t *testing.T) {
	var cur Current
	assert.Same(t, Empty, cur.Load())

	first := New(mustSubnet(t, "eth0", "10.0.0.5/24"))
	second := New(mustSubnet(t, "wlan0", "192.168.0.3/24"))
	cur.Store(first)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				topo := cur.Load()
				assert.True(t, topo == first || topo == second)
			}
		}()
	}
	cur.Store(second)
	wg.Wait()
	assert.Same(t, second, cur.Load())
}
