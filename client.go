package websocket

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Mort4lis/reactive-websocket/reactor"
)

const roleClient = "client"

// Outbound is the input of Dialer.React: a raw connection to upgrade and the
// resource to request on it.
type Outbound struct {
	Target string
	Conn   Connection
}

// Dialer is the client side upgrade adapter. It sends an upgrade request over
// an already connected raw connection and parses the response without
// blocking.
//
// The zero value is ready to use. Fields must not change after the first
// call to Submit. A Dialer is owned by one event loop goroutine.
type Dialer struct {
	// Host is sent in the Host header when the target is a bare path.
	// Defaults to "localhost".
	Host string
	// Subprotocols are offered in Sec-WebSocket-Protocol.
	Subprotocols []string
	// Header is added to every upgrade request.
	Header http.Header
	// MaxHeaderBytes limits the response head. Zero means
	// DefaultMaxHeaderBytes.
	MaxHeaderBytes int
	// MaxPending bounds the pending handshakes. Zero means
	// DefaultMaxPending.
	MaxPending int
	// HandshakeTimeout is the age after which Expire drops a pending
	// handshake. Zero disables expiry.
	HandshakeTimeout time.Duration

	Logger  *zap.Logger
	Metrics *Metrics
	Clock   clock.Clock

	d *driver[*clientHandshake]
}

func (d *Dialer) driver() *driver[*clientHandshake] {
	if d.d == nil {
		d.d = newDriver[*clientHandshake](roleClient, d.MaxPending, d.Logger, d.Metrics, d.Clock)
	}

	return d.d
}

// Submit sends the upgrade request for target over conn and reads as much of
// the response as is available. target is either a path such as "/chat" or
// a ws, wss, http or https URL.
func (d *Dialer) Submit(target string, conn Connection) Result {
	h := &clientHandshake{d: d, io: newHandshakeIO(conn, d.MaxHeaderBytes)}

	h.req, h.key, h.err = d.prepareHandshakeRequest(target)
	if h.err == nil {
		var buf bytes.Buffer
		if err := h.req.Write(&buf); err != nil {
			h.err = fmt.Errorf("encode request: %w", err)
		}

		h.io.out = buf.Bytes()
	}

	return d.driver().start(h)
}

// Resume retries the pending handshake of ev.Token. An event for a token
// without a pending handshake is handed back as PassThrough.
func (d *Dialer) Resume(ev reactor.Event) Result {
	return d.driver().resume(ev)
}

// React implements reactor.Reactor.
func (d *Dialer) React(r reactor.Reaction[Outbound]) reactor.Reaction[*Conn] {
	if out, ok := r.Value(); ok {
		return d.Submit(out.Target, out.Conn).reaction()
	}

	if ev, ok := r.Event(); ok {
		return d.Resume(ev).reaction()
	}

	return reactor.Continue[*Conn]()
}

// Purge drops the pending handshake of tok and closes its connection. It
// reports whether anything was pending.
func (d *Dialer) Purge(tok reactor.Token) bool {
	return d.driver().purge(tok)
}

// Expire drops the pending handshakes older than HandshakeTimeout and
// returns their tokens.
func (d *Dialer) Expire() []reactor.Token {
	return d.driver().expire(d.HandshakeTimeout)
}

// Pending returns the number of pending handshakes.
func (d *Dialer) Pending() int {
	return d.driver().pending.len()
}

// IsPending reports whether tok has a pending handshake.
func (d *Dialer) IsPending(tok reactor.Token) bool {
	return d.driver().pending.contains(tok)
}

func (d *Dialer) prepareHandshakeRequest(target string) (*http.Request, string, error) {
	addr, err := url.Parse(target)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBadTarget, err)
	}

	switch addr.Scheme {
	case "ws":
		addr.Scheme = "http"
	case "wss":
		addr.Scheme = "https"
	case "http", "https":
	case "":
		if !strings.HasPrefix(addr.Path, "/") {
			return nil, "", ErrBadTarget
		}

		addr.Scheme = "http"
		addr.Host = d.Host

		if addr.Host == "" {
			addr.Host = "localhost"
		}
	default:
		return nil, "", ErrBadTarget
	}

	if addr.Host == "" {
		return nil, "", ErrBadTarget
	}

	wsKey, err := createClientSecret()
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequest(http.MethodGet, addr.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBadTarget, err)
	}

	for k, vs := range d.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Sec-WebSocket-Key", wsKey)
	req.Header.Set("Sec-WebSocket-Version", "13")

	if len(d.Subprotocols) > 0 {
		req.Header.Set("Sec-WebSocket-Protocol", strings.Join(d.Subprotocols, ", "))
	}

	return req, wsKey, nil
}

func (d *Dialer) handleHandshakeResponse(resp *http.Response, wsKey string) error {
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return &HandshakeError{Err: fmt.Errorf("%w, got %s", ErrBadStatus, resp.Status)}
	}

	if !headerContainsToken(resp.Header, "Upgrade", "WebSocket") {
		return &HandshakeError{Err: ErrMissingUpgrade}
	}

	if !headerContainsToken(resp.Header, "Connection", "Upgrade") {
		return &HandshakeError{Err: ErrMissingConnection}
	}

	if resp.Header.Get("Sec-WebSocket-Accept") != createSecret(wsKey) {
		return &HandshakeError{Err: ErrSecAcceptMismatch}
	}

	if p := resp.Header.Get("Sec-WebSocket-Protocol"); p != "" {
		offered := false

		for _, o := range d.Subprotocols {
			if o == p {
				offered = true

				break
			}
		}

		if !offered {
			return &HandshakeError{Err: ErrSubprotocol}
		}
	}

	return nil
}

type clientHandshake struct {
	d   *Dialer
	io  handshakeIO
	req *http.Request
	key string
	// err is a failure found before anything was sent.
	err error

	resp *http.Response
	sent bool
}

func (h *clientHandshake) connection() Connection {
	return h.io.conn
}

func (h *clientHandshake) step() (Outcome, error) {
	if h.err != nil {
		return Failed, h.err
	}

	if !h.sent {
		done, err := h.io.flush()
		if err != nil {
			return Failed, fmt.Errorf("write request: %w", err)
		}

		if !done {
			return Incomplete, nil
		}

		h.sent = true
	}

	head, err := h.io.readHead()
	if errors.Is(err, ErrHeaderTooLarge) {
		return Failed, &HandshakeError{Err: err}
	}

	if err != nil {
		return Failed, fmt.Errorf("read response: %w", err)
	}

	if head == nil {
		return Incomplete, nil
	}

	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(head)), h.req)
	if err != nil {
		return Failed, &HandshakeError{Err: fmt.Errorf("parse response: %w", err)}
	}

	_ = resp.Body.Close()

	if err = h.d.handleHandshakeResponse(resp, h.key); err != nil {
		return Failed, err
	}

	h.resp = resp

	return Ready, nil
}

func (h *clientHandshake) complete() *Conn {
	c := newConn(h.io.conn, false, h.io.leftover())
	c.subprotocol = h.resp.Header.Get("Sec-WebSocket-Protocol")
	c.response = h.resp

	return c
}

func (h *clientHandshake) reject(error) error {
	return h.io.conn.Close()
}
