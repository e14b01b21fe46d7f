//go:build linux

package topology

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// HostInterfaces enumerates the host's interfaces and their IPv4 addresses
// through netlink.
func HostInterfaces() ([]Interface, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	ifaces := make([]Interface, 0, len(links))
	for _, link := range links {
		attrs := link.Attrs()
		iface := Interface{Name: attrs.Name}

		addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
		if err != nil {
			// The link may have vanished between LinkList and AddrList.
			continue
		}
		iface.IPv4 = len(addrs) > 0
		for _, addr := range addrs {
			if addr.IPNet == nil {
				continue
			}
			iface.Addrs = append(iface.Addrs, *addr.IPNet)
		}
		ifaces = append(ifaces, iface)
	}
	return ifaces, nil
}
