package util

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// ParseBindAddr turns a listen host and port into a numeric address.
// An empty host binds every IPv4 interface and "localhost" means the
// IPv4 loopback; anything else must already be an IP literal, since the
// listener never resolves names.
func ParseBindAddr(host string, port int) (netip.AddrPort, error) {
	if port < 0 || port > 65535 {
		return netip.AddrPort{}, fmt.Errorf("port %d out of range 0-65535", port)
	}
	var ip netip.Addr
	switch host {
	case "", "0.0.0.0", "*":
		ip = netip.IPv4Unspecified()
	case "localhost":
		ip = netip.AddrFrom4([4]byte{127, 0, 0, 1})
	default:
		var err error
		ip, err = netip.ParseAddr(host)
		if err != nil {
			return netip.AddrPort{}, fmt.Errorf("cannot bind to %q: not an IP address", host)
		}
	}
	return netip.AddrPortFrom(ip.Unmap(), uint16(port)), nil
}

// FindFreePort returns an available TCP port on 127.0.0.1.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
