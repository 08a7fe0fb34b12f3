//go:build linux

package sockaddr

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		addr   string
		domain int
		want   *net.TCPAddr
	}{
		{addr: "127.0.0.1:8080", domain: unix.AF_INET, want: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1).To4(), Port: 8080}},
		{addr: ":9000", domain: unix.AF_INET, want: &net.TCPAddr{IP: net.IPv4zero.To4(), Port: 9000}},
		{addr: "[::1]:443", domain: unix.AF_INET6, want: &net.TCPAddr{IP: net.IPv6loopback, Port: 443}},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			domain, sa, err := Resolve(tt.addr)
			require.NoError(t, err)
			assert.Equal(t, tt.domain, domain)
			assert.Equal(t, tt.want, TCPAddr(sa))
		})
	}
}

func TestResolveBadAddress(t *testing.T) {
	_, _, err := Resolve("no-port")
	assert.Error(t, err)
}

func TestTCPAddrUnknownFamily(t *testing.T) {
	assert.Nil(t, TCPAddr(&unix.SockaddrUnix{Name: "/tmp/sock"}))
}
