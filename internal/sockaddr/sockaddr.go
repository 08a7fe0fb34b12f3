//go:build linux

// Package sockaddr converts between host:port addresses and raw socket
// addresses.
package sockaddr

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Resolve resolves a TCP host:port address and returns the socket domain
// together with the matching unix.Sockaddr. An empty host binds every IPv4
// interface.
func Resolve(addr string) (int, unix.Sockaddr, error) {
	tcp, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return 0, nil, fmt.Errorf("resolve %q: %w", addr, err)
	}

	if tcp.IP == nil || tcp.IP.To4() != nil {
		sa := &unix.SockaddrInet4{Port: tcp.Port}
		copy(sa.Addr[:], tcp.IP.To4())

		return unix.AF_INET, sa, nil
	}

	sa := &unix.SockaddrInet6{Port: tcp.Port}
	copy(sa.Addr[:], tcp.IP.To16())

	if tcp.Zone != "" {
		ifi, err := net.InterfaceByName(tcp.Zone)
		if err != nil {
			return 0, nil, fmt.Errorf("resolve zone %q: %w", tcp.Zone, err)
		}

		sa.ZoneId = uint32(ifi.Index)
	}

	return unix.AF_INET6, sa, nil
}

// TCPAddr converts sa back to a *net.TCPAddr. Other address families yield
// nil.
func TCPAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append(net.IP(nil), sa.Addr[:]...), Port: sa.Port}
	case *unix.SockaddrInet6:
		addr := &net.TCPAddr{IP: append(net.IP(nil), sa.Addr[:]...), Port: sa.Port}
		if sa.ZoneId != 0 {
			if ifi, err := net.InterfaceByIndex(int(sa.ZoneId)); err == nil {
				addr.Zone = ifi.Name
			}
		}

		return addr
	default:
		return nil
	}
}
