package transport

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Mort4lis/reactive-websocket/reactor"
)

const (
	streamEvents   = unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLET
	listenerEvents = unix.EPOLLIN

	maxEvents = 128
)

// Poller wraps an epoll instance and hands out the tokens of the sockets it
// watches. Tokens grow monotonically and are never reused.
//
// A Poller is owned by the loop goroutine.
type Poller struct {
	fd     int
	next   reactor.Token
	tokens map[int32]reactor.Token
	events []unix.EpollEvent
}

// NewPoller creates an epoll instance.
func NewPoller() (*Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}

	return &Poller{
		fd:     fd,
		tokens: make(map[int32]reactor.Token),
		events: make([]unix.EpollEvent, maxEvents),
	}, nil
}

func (p *Poller) register(fd int, events uint32) (reactor.Token, error) {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return 0, fmt.Errorf("epoll add: %w", err)
	}

	p.next++
	p.tokens[int32(fd)] = p.next

	return p.next, nil
}

func (p *Poller) deregister(fd int) error {
	delete(p.tokens, int32(fd))

	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll del: %w", err)
	}

	return nil
}

// Watched returns the number of registered sockets.
func (p *Poller) Watched() int {
	return len(p.tokens)
}

// Wait implements Waiter. An interrupted wait returns no events.
func (p *Poller) Wait(timeout time.Duration) ([]reactor.Event, error) {
	n, err := unix.EpollWait(p.fd, p.events, int(timeout.Milliseconds()))
	if errors.Is(err, unix.EINTR) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("epoll wait: %w", err)
	}

	events := make([]reactor.Event, 0, n)

	for _, e := range p.events[:n] {
		tok, ok := p.tokens[e.Fd]
		if !ok {
			continue
		}

		hangup := e.Events&(unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0

		events = append(events, reactor.Event{
			Token:    tok,
			Readable: e.Events&unix.EPOLLIN != 0 || hangup,
			Writable: e.Events&unix.EPOLLOUT != 0,
			Hangup:   hangup,
		})
	}

	return events, nil
}

// Close closes the epoll instance. Registered sockets stay open.
func (p *Poller) Close() error {
	return unix.Close(p.fd)
}
