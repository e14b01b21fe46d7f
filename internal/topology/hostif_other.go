//go:build !linux

package topology

import (
	"fmt"
	"net"
)

// HostInterfaces enumerates the host's interfaces and their IPv4 addresses.
func HostInterfaces() ([]Interface, error) {
	netIfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	ifaces := make([]Interface, 0, len(netIfaces))
	for _, ni := range netIfaces {
		addrs, err := ni.Addrs()
		if err != nil {
			continue
		}
		iface := Interface{Name: ni.Name}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			iface.IPv4 = true
			iface.Addrs = append(iface.Addrs, *ipnet)
		}
		ifaces = append(ifaces, iface)
	}
	return ifaces, nil
}
