package identity

import (
	"context"
	"net"
	"strings"

	gonet "github.com/shirou/gopsutil/v4/net"
)

// UnknownHostIP is reported when no usable interface address is found
const UnknownHostIP = "unknown"

var netInterfaces = gonet.InterfacesWithContext

// PrimaryIP returns the first IPv4 address of an up, non-loopback interface.
// An IPv6 address is used only when no IPv4 address exists.
func PrimaryIP(ctx context.Context) string {
	ifaces, err := netInterfaces(ctx)
	if err != nil {
		return UnknownHostIP
	}

	var fallback string
	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") {
			continue
		}
		for _, addr := range iface.Addrs {
			ip := parseAddr(addr.Addr)
			if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
				continue
			}
			if ip.To4() != nil {
				return ip.String()
			}
			if fallback == "" {
				fallback = ip.String()
			}
		}
	}

	if fallback != "" {
		return fallback
	}
	return UnknownHostIP
}

// parseAddr accepts both CIDR ("10.0.0.5/24") and bare addresses
func parseAddr(addr string) net.IP {
	if addr == "" {
		return nil
	}
	if ip, _, err := net.ParseCIDR(addr); err == nil {
		return ip
	}
	return net.ParseIP(addr)
}

func hasFlag(flags []string, want string) bool {
	for _, flag := range flags {
		if strings.EqualFold(flag, want) {
			return true
		}
	}
	return false
}
