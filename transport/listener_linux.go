package transport

import (
	"errors"
	"fmt"
	"net"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	websocket "github.com/Mort4lis/reactive-websocket"
	"github.com/Mort4lis/reactive-websocket/internal/sockaddr"
	"github.com/Mort4lis/reactive-websocket/reactor"
)

const listenBacklog = unix.SOMAXCONN

// Listener is a non-blocking TCP listener. As a reactor it accepts one
// connection per event for its own token and passes other events on.
type Listener struct {
	fd     int
	tok    reactor.Token
	poller *Poller
	logger *zap.Logger
}

// Listen binds addr and registers the socket with p. A nil logger discards
// accept errors.
func Listen(p *Poller, addr string, logger *zap.Logger) (*Listener, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	domain, sa, err := sockaddr.Resolve(addr)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if err = listen(fd, sa); err != nil {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	tok, err := p.register(fd, listenerEvents)
	if err != nil {
		_ = unix.Close(fd)

		return nil, err
	}

	return &Listener{fd: fd, tok: tok, poller: p, logger: logger}, nil
}

func listen(fd int, sa unix.Sockaddr) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("set SO_REUSEADDR: %w", err)
	}

	if err := unix.Bind(fd, sa); err != nil {
		return fmt.Errorf("bind: %w", err)
	}

	return unix.Listen(fd, listenBacklog)
}

// Token returns the token of the listening socket.
func (l *Listener) Token() reactor.Token {
	return l.tok
}

// Addr returns the bound address, with the actual port when ":0" was asked
// for.
func (l *Listener) Addr() net.Addr {
	sa, err := unix.Getsockname(l.fd)
	if err != nil {
		return nil
	}

	if addr := sockaddr.TCPAddr(sa); addr != nil {
		return addr
	}

	return nil
}

// Accept takes one pending connection. It returns reactor.ErrWouldBlock when
// there is none.
func (l *Listener) Accept() (*Stream, error) {
	for {
		fd, _, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)

		switch {
		case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
			continue
		case errors.Is(err, unix.EAGAIN):
			return nil, reactor.ErrWouldBlock
		case err != nil:
			return nil, fmt.Errorf("accept: %w", err)
		}

		if err = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			_ = unix.Close(fd)

			return nil, fmt.Errorf("set TCP_NODELAY: %w", err)
		}

		s, err := newStream(l.poller, fd)
		if err != nil {
			_ = unix.Close(fd)

			return nil, err
		}

		return s, nil
	}
}

// React implements reactor.Reactor. The listener only reacts to events, so
// its input type carries nothing.
func (l *Listener) React(r reactor.Reaction[struct{}]) reactor.Reaction[websocket.Connection] {
	ev, ok := r.Event()
	if !ok {
		return reactor.Continue[websocket.Connection]()
	}

	if ev.Token != l.tok {
		return reactor.EventOf[websocket.Connection](ev)
	}

	s, err := l.Accept()
	if err != nil {
		if !reactor.IsWouldBlock(err) {
			l.logger.Warn("accept connection", zap.Error(err))
		}

		return reactor.Continue[websocket.Connection]()
	}

	l.logger.Debug("connection accepted", zap.Stringer("token", s.Token()), zap.Stringer("remote", s.RemoteAddr()))

	return reactor.Value[websocket.Connection](s)
}

// Close deregisters and closes the listening socket.
func (l *Listener) Close() error {
	return multierr.Append(l.poller.deregister(l.fd), unix.Close(l.fd))
}
