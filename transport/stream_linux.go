package transport

import (
	"errors"
	"fmt"
	"io"
	"net"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	websocket "github.com/Mort4lis/reactive-websocket"
	"github.com/Mort4lis/reactive-websocket/internal/sockaddr"
	"github.com/Mort4lis/reactive-websocket/reactor"
)

var _ websocket.Connection = (*Stream)(nil)

// Stream is a non-blocking TCP socket registered with a Poller.
type Stream struct {
	fd     int
	tok    reactor.Token
	poller *Poller
	closed bool
}

func newStream(p *Poller, fd int) (*Stream, error) {
	tok, err := p.register(fd, streamEvents)
	if err != nil {
		return nil, err
	}

	return &Stream{fd: fd, tok: tok, poller: p}, nil
}

// Dial starts a non-blocking connect to addr and registers the socket. The
// connection is usually still in progress when Dial returns: writes report
// ErrWouldBlock until a writable event arrives, and a refused connection
// shows up as an error on the first read or write after that.
func Dial(p *Poller, addr string) (*Stream, error) {
	domain, sa, err := sockaddr.Resolve(addr)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if err = unix.Connect(fd, sa); err != nil && !errors.Is(err, unix.EINPROGRESS) {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	if err = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("set TCP_NODELAY: %w", err)
	}

	s, err := newStream(p, fd)
	if err != nil {
		_ = unix.Close(fd)

		return nil, err
	}

	return s, nil
}

// Token implements websocket.Connection.
func (s *Stream) Token() reactor.Token {
	return s.tok
}

// Read reads what the socket has. It returns reactor.ErrWouldBlock when the
// receive buffer is empty and io.EOF once the peer has closed its side.
func (s *Stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, net.ErrClosed
	}

	for {
		n, err := unix.Read(s.fd, p)

		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, reactor.ErrWouldBlock
		case err != nil:
			return 0, fmt.Errorf("read: %w", err)
		case n == 0 && len(p) > 0:
			return 0, io.EOF
		default:
			return n, nil
		}
	}
}

// Write writes as much of p as the send buffer takes. A short write comes
// with reactor.ErrWouldBlock.
func (s *Stream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, net.ErrClosed
	}

	var written int

	for written < len(p) {
		n, err := unix.Write(s.fd, p[written:])
		if n > 0 {
			written += n
		}

		switch {
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			return written, reactor.ErrWouldBlock
		case err != nil:
			return written, fmt.Errorf("write: %w", err)
		}
	}

	return written, nil
}

// RemoteAddr returns the peer address, or nil when it is unknown.
func (s *Stream) RemoteAddr() net.Addr {
	sa, err := unix.Getpeername(s.fd)
	if err != nil {
		return nil
	}

	if addr := sockaddr.TCPAddr(sa); addr != nil {
		return addr
	}

	return nil
}

// Close deregisters and closes the socket.
func (s *Stream) Close() error {
	if s.closed {
		return net.ErrClosed
	}

	s.closed = true

	return multierr.Append(s.poller.deregister(s.fd), unix.Close(s.fd))
}
