package reactor

import (
	"errors"
	"net"
	"syscall"
)

// ErrWouldBlock is returned by non-blocking reads and writes that cannot make
// progress now. The caller returns to the event loop and retries on the next
// readiness notification.
var ErrWouldBlock = errors.New("reactor: operation would block")

// IsWouldBlock reports whether err means "no progress without waiting".
func IsWouldBlock(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrWouldBlock) || errors.Is(err, syscall.EAGAIN) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
