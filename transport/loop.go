package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Mort4lis/reactive-websocket/reactor"
)

// DefaultTick is how long Loop waits for events before it checks the context
// and runs OnTick.
const DefaultTick = 100 * time.Millisecond

// Waiter blocks for at most timeout and returns the readiness notifications
// collected meanwhile. *Poller is a Waiter.
type Waiter interface {
	Wait(timeout time.Duration) ([]reactor.Event, error)
}

// Loop is a single-threaded event loop. Everything dispatch touches is owned
// by the goroutine calling Run.
type Loop struct {
	Poller Waiter
	// Tick bounds a single wait. Zero means DefaultTick.
	Tick time.Duration
	// OnTick runs at most once per Tick on the loop goroutine, after the
	// events of a wait were dispatched. Handshake expiry goes here.
	OnTick func()
	Logger *zap.Logger
	Clock  clock.Clock
}

// Run dispatches events until ctx is done, then returns nil. A failing wait
// stops the loop with an error.
func (l *Loop) Run(ctx context.Context, dispatch func(reactor.Event)) error {
	tick := l.Tick
	if tick <= 0 {
		tick = DefaultTick
	}

	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clk := l.Clock
	if clk == nil {
		clk = clock.New()
	}

	logger.Debug("event loop started", zap.Duration("tick", tick))
	defer logger.Debug("event loop stopped")

	last := clk.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		events, err := l.Poller.Wait(tick)
		if err != nil {
			return fmt.Errorf("wait for events: %w", err)
		}

		for _, ev := range events {
			dispatch(ev)
		}

		if l.OnTick != nil && clk.Since(last) >= tick {
			last = clk.Now()
			l.OnTick()
		}
	}
}
