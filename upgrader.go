package websocket

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Mort4lis/reactive-websocket/reactor"
)

const roleServer = "server"

var handshakeResponseTemplate = strings.Join([]string{
	"HTTP/1.1 101 Switching Protocols",
	"Server: go/ws-custom-server",
	"Upgrade: websocket",
	"Connection: Upgrade",
	"Sec-WebSocket-Accept: %s",
	"", // headers added by buildResponse
}, "\r\n")

// Upgrader is the server side upgrade adapter. It accepts raw connections,
// answers their upgrade request without blocking and emits a *Conn for every
// completed handshake.
//
// The zero value is ready to use. Fields must not change after the first
// call to Submit. An Upgrader is owned by one event loop goroutine.
type Upgrader struct {
	// Subprotocols lists the supported subprotocols in order of preference.
	Subprotocols []string
	// CheckOrigin rejects requests it returns false for. Nil allows any
	// origin.
	CheckOrigin func(req *http.Request) bool
	// Header is added to every 101 response.
	Header http.Header
	// MaxHeaderBytes limits the request head. Zero means
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

	d *driver[*serverHandshake]
}

func (u *Upgrader) driver() *driver[*serverHandshake] {
	if u.d == nil {
		u.d = newDriver[*serverHandshake](roleServer, u.MaxPending, u.Logger, u.Metrics, u.Clock)
	}

	return u.d
}

// Submit starts the handshake of a newly accepted connection.
func (u *Upgrader) Submit(conn Connection) Result {
	h := &serverHandshake{
		u:  u,
		io: newHandshakeIO(conn, u.MaxHeaderBytes),
	}

	return u.driver().start(h)
}

// Resume retries the pending handshake of ev.Token. An event for a token
// without a pending handshake is handed back as PassThrough.
func (u *Upgrader) Resume(ev reactor.Event) Result {
	return u.driver().resume(ev)
}

// React implements reactor.Reactor.
func (u *Upgrader) React(r reactor.Reaction[Connection]) reactor.Reaction[*Conn] {
	if conn, ok := r.Value(); ok {
		return u.Submit(conn).reaction()
	}

	if ev, ok := r.Event(); ok {
		return u.Resume(ev).reaction()
	}

	return reactor.Continue[*Conn]()
}

// Purge drops the pending handshake of tok and closes its connection. It
// reports whether anything was pending.
func (u *Upgrader) Purge(tok reactor.Token) bool {
	return u.driver().purge(tok)
}

// Expire drops the pending handshakes older than HandshakeTimeout and
// returns their tokens.
func (u *Upgrader) Expire() []reactor.Token {
	return u.driver().expire(u.HandshakeTimeout)
}

// Pending returns the number of pending handshakes.
func (u *Upgrader) Pending() int {
	return u.driver().pending.len()
}

// IsPending reports whether tok has a pending handshake.
func (u *Upgrader) IsPending(tok reactor.Token) bool {
	return u.driver().pending.contains(tok)
}

type serverHandshake struct {
	u   *Upgrader
	io  handshakeIO
	req *http.Request

	subprotocol string
	// responding is set once the 101 response is queued.
	responding bool
}

func (h *serverHandshake) connection() Connection {
	return h.io.conn
}

func (h *serverHandshake) step() (Outcome, error) {
	if !h.responding {
		head, err := h.io.readHead()
		if errors.Is(err, ErrHeaderTooLarge) {
			return Failed, newHandshakeError(http.StatusRequestHeaderFieldsTooLarge, err)
		}

		if err != nil {
			return Failed, fmt.Errorf("read request: %w", err)
		}

		if head == nil {
			return Incomplete, nil
		}

		req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(head)))
		if err != nil {
			return Failed, newHandshakeError(http.StatusBadRequest, fmt.Errorf("parse request: %w", err))
		}

		if err = h.u.validate(req); err != nil {
			return Failed, err
		}

		h.req = req
		h.subprotocol = h.u.selectSubprotocol(req)
		h.io.out = h.u.buildResponse(req.Header.Get("Sec-WebSocket-Key"), h.subprotocol)
		h.responding = true
	}

	done, err := h.io.flush()
	if err != nil {
		return Failed, fmt.Errorf("write response: %w", err)
	}

	if !done {
		return Incomplete, nil
	}

	return Ready, nil
}

func (h *serverHandshake) complete() *Conn {
	c := newConn(h.io.conn, true, h.io.leftover())
	c.subprotocol = h.subprotocol
	c.request = h.req

	return c
}

// reject sends a best-effort error response, the way http.Error would, and
// closes the connection. Nothing is retried.
func (h *serverHandshake) reject(err error) error {
	var hsErr *HandshakeError
	if errors.As(err, &hsErr) && !h.responding {
		h.io.out = buildErrorResponse(hsErr)
		_, _ = h.io.flush()
	}

	return h.io.conn.Close()
}

func (u *Upgrader) validate(req *http.Request) error {
	if req.Method != http.MethodGet {
		return newHandshakeError(http.StatusMethodNotAllowed, ErrBadMethod)
	}

	if !req.ProtoAtLeast(1, 1) {
		return newHandshakeError(http.StatusBadRequest, ErrBadProtocolVersion)
	}

	if !headerContainsToken(req.Header, "Connection", "Upgrade") {
		return newHandshakeError(http.StatusBadRequest, ErrMissingConnection)
	}

	if !headerContainsToken(req.Header, "Upgrade", "WebSocket") {
		return newHandshakeError(http.StatusBadRequest, ErrMissingUpgrade)
	}

	if req.Header.Get("Sec-WebSocket-Version") != "13" {
		return newHandshakeError(http.StatusUpgradeRequired, ErrBadVersion)
	}

	clientSecret := req.Header.Get("Sec-WebSocket-Key")
	if clientSecret == "" {
		return newHandshakeError(http.StatusBadRequest, ErrMissingSecKey)
	}

	if !isValidClientSecret(clientSecret) {
		return newHandshakeError(http.StatusBadRequest, ErrInvalidSecKey)
	}

	if u.CheckOrigin != nil && !u.CheckOrigin(req) {
		return newHandshakeError(http.StatusForbidden, ErrForbiddenOrigin)
	}

	return nil
}

// selectSubprotocol picks the first supported subprotocol the client offered.
func (u *Upgrader) selectSubprotocol(req *http.Request) string {
	offered := headerTokens(req.Header, "Sec-WebSocket-Protocol")

	for _, p := range u.Subprotocols {
		for _, o := range offered {
			if o == p {
				return p
			}
		}
	}

	return ""
}

func (u *Upgrader) buildResponse(clientSecret, subprotocol string) []byte {
	var b bytes.Buffer

	fmt.Fprintf(&b, handshakeResponseTemplate, createSecret(strings.TrimSpace(clientSecret)))

	if subprotocol != "" {
		b.WriteString("Sec-WebSocket-Protocol: " + subprotocol + "\r\n")
	}

	for k, vs := range u.Header {
		for _, v := range vs {
			b.WriteString(k + ": " + v + "\r\n")
		}
	}

	b.WriteString("\r\n")

	return b.Bytes()
}

func buildErrorResponse(err *HandshakeError) []byte {
	status := err.Status
	if status == 0 {
		status = http.StatusBadRequest
	}

	body := err.Err.Error() + "\n"

	var b bytes.Buffer

	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))

	if status == http.StatusUpgradeRequired {
		b.WriteString("Sec-WebSocket-Version: 13\r\n")
	}

	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("X-Content-Type-Options: nosniff\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("Connection: close\r\n\r\n")
	b.WriteString(body)

	return b.Bytes()
}
