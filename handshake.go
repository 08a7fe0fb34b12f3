package websocket

import (
	"bytes"
	"errors"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Mort4lis/reactive-websocket/reactor"
)

// DefaultMaxHeaderBytes limits the size of an upgrade request or response
// head when MaxHeaderBytes is zero.
const DefaultMaxHeaderBytes = 8 << 10

// handshake is one side of a negotiation that can be retried until it is
// done. step must not block.
type handshake interface {
	connection() Connection
	step() (Outcome, error)
	// complete builds the Conn after step reported Ready.
	complete() *Conn
	// reject answers a failed negotiation where the role allows it and closes
	// the connection.
	reject(err error) error
}

// handshakeIO buffers the bytes a handshake reads and writes across attempts.
type handshakeIO struct {
	conn  Connection
	in    []byte
	out   []byte
	limit int
}

func newHandshakeIO(conn Connection, limit int) handshakeIO {
	if limit <= 0 {
		limit = DefaultMaxHeaderBytes
	}

	return handshakeIO{conn: conn, limit: limit}
}

// fill reads what the connection has until it would block, the head is
// complete or the limit is crossed.
func (b *handshakeIO) fill() error {
	var buf [2048]byte

	for len(b.in) <= b.limit {
		if _, ok := b.head(); ok {
			return nil
		}

		n, err := b.conn.Read(buf[:])
		b.in = append(b.in, buf[:n]...)

		switch {
		case err == nil && n == 0:
			return nil
		case err == nil:
		case reactor.IsWouldBlock(err):
			return nil
		case errors.Is(err, io.EOF):
			return io.ErrUnexpectedEOF
		default:
			return err
		}
	}

	return nil
}

// head returns the length of the head, terminator included, once the blank
// line has arrived.
func (b *handshakeIO) head() (int, bool) {
	i := bytes.Index(b.in, headTerminator)
	if i < 0 {
		return 0, false
	}

	return i + len(headTerminator), true
}

// readHead fills the buffer and returns the complete head, if any, leaving
// the bytes after it in b.in.
func (b *handshakeIO) readHead() ([]byte, error) {
	err := b.fill()

	n, ok := b.head()
	switch {
	case ok && n > b.limit:
		return nil, ErrHeaderTooLarge
	case ok:
		head := b.in[:n]
		b.in = b.in[n:]

		return head, nil
	case len(b.in) > b.limit:
		return nil, ErrHeaderTooLarge
	case err != nil:
		return nil, err
	default:
		return nil, nil
	}
}

// flush writes queued output until it is gone or the connection would block.
func (b *handshakeIO) flush() (bool, error) {
	for len(b.out) > 0 {
		n, err := b.conn.Write(b.out)
		b.out = b.out[n:]

		if err != nil {
			if reactor.IsWouldBlock(err) {
				return false, nil
			}

			return false, err
		}

		if n == 0 {
			return false, nil
		}
	}

	return true, nil
}

// leftover returns a copy of the bytes read past the head.
func (b *handshakeIO) leftover() []byte {
	if len(b.in) == 0 {
		return nil
	}

	return append([]byte(nil), b.in...)
}

// driver runs the retry discipline shared by both roles: attempt, keep the
// handshake on Incomplete, drop it on Ready or Failed.
type driver[H handshake] struct {
	role    string
	pending *pendingTable[H]
	logger  *zap.Logger
	metrics *Metrics
	clock   clock.Clock
}

func newDriver[H handshake](role string, maxPending int, logger *zap.Logger, metrics *Metrics, clk clock.Clock) *driver[H] {
	if logger == nil {
		logger = zap.NewNop()
	}

	if clk == nil {
		clk = clock.New()
	}

	d := &driver[H]{
		role:    role,
		logger:  logger.With(zap.String("role", role)),
		metrics: metrics,
		clock:   clk,
	}
	d.pending = newPendingTable[H](maxPending, d.evicted)

	return d
}

func (d *driver[H]) start(h H) Result {
	tok := h.connection().Token()

	if old, _, ok := d.pending.take(tok); ok {
		d.logger.Warn("token submitted twice, dropping the earlier handshake", zap.Stringer("token", tok))
		d.closeQuietly(tok, old)
	}

	return d.attempt(tok, h, d.clock.Now())
}

func (d *driver[H]) resume(ev reactor.Event) Result {
	h, started, ok := d.pending.take(ev.Token)
	if !ok {
		return Result{Outcome: PassThrough, Event: ev}
	}

	return d.attempt(ev.Token, h, started)
}

func (d *driver[H]) attempt(tok reactor.Token, h H, started time.Time) Result {
	outcome, err := h.step()
	d.metrics.observe(d.role, outcome)

	var res Result

	switch outcome {
	case Ready:
		conn := h.complete()
		res = Result{Outcome: Ready, Conn: conn, Response: conn.Response()}

		d.logger.Debug("handshake completed",
			zap.Stringer("token", tok),
			zap.Duration("elapsed", d.clock.Since(started)),
		)
	case Incomplete:
		d.pending.put(tok, h, started)
		res = Result{Outcome: Incomplete}
	default:
		if cerr := h.reject(err); cerr != nil {
			d.logger.Debug("close after failed handshake", zap.Stringer("token", tok), zap.Error(cerr))
		}

		res = Result{Outcome: Failed, Err: err}

		d.logger.Debug("handshake failed", zap.Stringer("token", tok), zap.Error(err))
	}

	d.metrics.setPending(d.role, d.pending.len())

	return res
}

func (d *driver[H]) purge(tok reactor.Token) bool {
	h, _, ok := d.pending.take(tok)
	if !ok {
		return false
	}

	d.closeQuietly(tok, h)
	d.metrics.evicted(d.role, "purged")
	d.metrics.setPending(d.role, d.pending.len())

	return true
}

func (d *driver[H]) expire(timeout time.Duration) []reactor.Token {
	if timeout <= 0 {
		return nil
	}

	stale := d.pending.startedBefore(d.clock.Now().Add(-timeout))
	for _, tok := range stale {
		h, _, _ := d.pending.take(tok)

		d.logger.Debug("pending handshake expired", zap.Stringer("token", tok), zap.Error(ErrHandshakeTimeout))
		d.closeQuietly(tok, h)
		d.metrics.evicted(d.role, "timeout")
	}

	if len(stale) > 0 {
		d.metrics.setPending(d.role, d.pending.len())
	}

	return stale
}

// evicted is called by the pending table when it drops the least recently
// used entry to make room.
func (d *driver[H]) evicted(tok reactor.Token, h H) {
	d.logger.Warn("pending handshake limit reached", zap.Stringer("token", tok), zap.Error(ErrPendingEvicted))
	d.closeQuietly(tok, h)
	d.metrics.evicted(d.role, "capacity")
}

func (d *driver[H]) closeQuietly(tok reactor.Token, h H) {
	if err := h.connection().Close(); err != nil {
		d.logger.Debug("close pending connection", zap.Stringer("token", tok), zap.Error(err))
	}
}
