package websocket

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/gobwas/ws"
	"go.uber.org/multierr"

	"github.com/Mort4lis/reactive-websocket/reactor"
)

// Close codes defined in RFC 6455.
const (
	CloseNormalClosure           = 1000
	CloseGoingAway               = 1001
	CloseProtocolError           = 1002
	CloseUnsupportedData         = 1003
	CloseNoStatusReceived        = 1005
	CloseAbnormalClosure         = 1006
	CloseInvalidFramePayloadData = 1007
	ClosePolicyViolation         = 1008
	CloseMessageTooBig           = 1009
	CloseMandatoryExtension      = 1010
	CloseInternalServerErr       = 1011
	CloseServiceRestart          = 1012
	CloseTryAgainLater           = 1013
	CloseTLSHandshake            = 1015
)

var validReceivedCloseCodes = map[int]bool{
	CloseNormalClosure:           true,
	CloseGoingAway:               true,
	CloseProtocolError:           true,
	CloseUnsupportedData:         true,
	CloseNoStatusReceived:        false,
	CloseAbnormalClosure:         false,
	CloseInvalidFramePayloadData: true,
	ClosePolicyViolation:         true,
	CloseMessageTooBig:           true,
	CloseMandatoryExtension:      true,
	CloseInternalServerErr:       true,
	CloseServiceRestart:          true,
	CloseTryAgainLater:           true,
	CloseTLSHandshake:            false,
}

func isValidReceivedCloseCode(code int) bool {
	return validReceivedCloseCodes[code] || (code >= 3000 && code <= 4999)
}

// Conn is a type which represents the WebSocket connection. It is produced by
// Upgrader and Dialer once the handshake is done and keeps the non-blocking
// behaviour of the underlying Connection: reads and writes that cannot make
// progress report ErrWouldBlock.
//
// A Conn is not safe for concurrent use.
type Conn struct {
	conn     Connection
	isServer bool

	rd  frameReader
	out []byte
	eof bool

	messageType ws.OpCode
	message     []byte

	closeErr  *CloseError
	closeSent bool

	subprotocol string
	request     *http.Request
	response    *http.Response
}

func newConn(conn Connection, isServer bool, leftover []byte) *Conn {
	state := ws.StateClientSide
	if isServer {
		state = ws.StateServerSide
	}

	return &Conn{
		conn:        conn,
		isServer:    isServer,
		messageType: noFrame,
		rd: frameReader{
			buf:   leftover,
			state: state,
			limit: DefaultReadLimit,
		},
	}
}

// Token returns the token of the underlying connection.
func (c *Conn) Token() reactor.Token {
	return c.conn.Token()
}

// Subprotocol returns the negotiated subprotocol, if any.
func (c *Conn) Subprotocol() string {
	return c.subprotocol
}

// Request returns the upgrade request on the server side.
func (c *Conn) Request() *http.Request {
	return c.request
}

// Response returns the upgrade response on the client side.
func (c *Conn) Response() *http.Response {
	return c.response
}

// SetReadLimit sets the largest message ReadMessage accepts. A peer sending
// more is closed with CloseMessageTooBig.
func (c *Conn) SetReadLimit(limit int64) {
	c.rd.limit = limit
}

// ReadMessage returns the next complete message (TextOpcode or BinaryOpcode).
//
// It never waits: when the bytes of a whole message have not arrived yet it
// returns ErrWouldBlock and keeps what it has read. Event loops should call
// it until it reports ErrWouldBlock, since one readiness notification may
// carry several messages. Pings are answered and a close frame is echoed
// before the *CloseError describing it is returned.
func (c *Conn) ReadMessage() (messageType ws.OpCode, payload []byte, err error) {
	for c.closeErr == nil {
		fr, err := c.rd.next()

		switch {
		case errors.Is(err, errIncomplete):
			if c.eof {
				if c.rd.buffered() == 0 && c.messageType == noFrame {
					return noFrame, nil, io.EOF
				}

				return noFrame, nil, io.ErrUnexpectedEOF
			}

			n, err := c.rd.fill(c.conn)
			if errors.Is(err, io.EOF) {
				c.eof = true

				continue
			}

			if err != nil {
				return noFrame, nil, err
			}

			if n == 0 {
				return noFrame, nil, ErrWouldBlock
			}

			continue
		case err != nil:
			var closeErr *CloseError
			if errors.As(err, &closeErr) {
				return noFrame, nil, c.fail(closeErr)
			}

			return noFrame, nil, err
		}

		typ, msg, done, err := c.processReceivedFrame(fr)
		if err != nil {
			return noFrame, nil, err
		}

		if done {
			return typ, msg, nil
		}
	}

	return noFrame, nil, c.closeErr
}

func (c *Conn) processReceivedFrame(fr frame) (ws.OpCode, []byte, bool, error) {
	switch fr.opcode() {
	case CloseOpcode:
		code, reason, closeErr := parseClosePayload(fr.payload)
		if closeErr != nil {
			return noFrame, nil, false, c.fail(closeErr)
		}

		c.closeErr = newCloseError(code, reason)

		if !c.closeSent {
			echo := code
			if echo == CloseNoStatusReceived {
				echo = CloseNormalClosure
			}

			c.queueClose(echo, "")
			_ = c.Flush()
		}

		return noFrame, nil, false, c.closeErr
	case PingOpcode:
		c.queue(PongOpcode, fr.payload)

		if err := c.Flush(); err != nil && !reactor.IsWouldBlock(err) {
			return noFrame, nil, false, err
		}
	case PongOpcode:
	default:
		if fr.isData() {
			c.messageType = fr.opcode()
			c.message = c.message[:0]
		}

		c.message = append(c.message, fr.payload...)
		if c.rd.limit > 0 && int64(len(c.message)) > c.rd.limit {
			return noFrame, nil, false, c.fail(errMessageTooBig)
		}

		if !fr.isFinal() {
			return noFrame, nil, false, nil
		}

		typ, msg := c.messageType, c.message
		c.messageType, c.message = noFrame, nil

		if typ == TextOpcode && !utf8.Valid(msg) {
			return noFrame, nil, false, c.fail(errInvalidUtf8Payload)
		}

		return typ, msg, true, nil
	}

	return noFrame, nil, false, nil
}

// parseClosePayload validates the body of a received close frame.
func parseClosePayload(payload []byte) (int, string, *CloseError) {
	if len(payload) == 0 {
		return CloseNoStatusReceived, "", nil
	}

	if len(payload) < 2 {
		return 0, "", errInvalidClosurePayload
	}

	code := int(binary.BigEndian.Uint16(payload[:2]))
	reason := payload[2:]

	if !isValidReceivedCloseCode(code) {
		return 0, "", errInvalidClosureCode
	}

	if !utf8.Valid(reason) {
		return 0, "", errInvalidUtf8Payload
	}

	return code, string(reason), nil
}

// fail records err, sends the matching close frame and returns err.
func (c *Conn) fail(err *CloseError) error {
	c.closeErr = err

	if !c.closeSent {
		c.queueClose(err.Code, "")
		_ = c.Flush()
	}

	return err
}

// WriteMessage queues payload as one frame and writes as much as the
// connection accepts. Bytes the connection could not take stay queued and go
// out with the next Flush, typically on a writable notification.
func (c *Conn) WriteMessage(messageType ws.OpCode, payload []byte) error {
	if c.closeErr != nil {
		return c.closeErr
	}

	if c.closeSent {
		return newCloseError(CloseNormalClosure, "close sent")
	}

	c.queue(messageType, payload)

	if err := c.Flush(); err != nil && !reactor.IsWouldBlock(err) {
		return err
	}

	return nil
}

// Flush writes queued bytes. It returns ErrWouldBlock when some remain.
func (c *Conn) Flush() error {
	for len(c.out) > 0 {
		n, err := c.conn.Write(c.out)
		c.out = c.out[n:]

		if err != nil {
			return err
		}

		if n == 0 {
			return ErrWouldBlock
		}
	}

	c.out = nil

	return nil
}

// Buffered returns the number of queued bytes not yet written.
func (c *Conn) Buffered() int {
	return len(c.out)
}

func (c *Conn) queue(opcode ws.OpCode, payload []byte) {
	h := ws.Header{
		Fin:    true,
		OpCode: opcode,
		Length: int64(len(payload)),
	}

	if !c.isServer {
		h.Masked = true
		h.Mask = ws.NewMask()

		payload = append([]byte(nil), payload...)
		ws.Cipher(payload, h.Mask, 0)
	}

	b := bytes.NewBuffer(c.out)
	// Writes to a bytes.Buffer do not fail.
	_ = ws.WriteHeader(b, h)
	b.Write(payload)

	c.out = b.Bytes()
}

func (c *Conn) queueClose(code int, reason string) {
	payload := make([]byte, 2, 2+len(reason))
	binary.BigEndian.PutUint16(payload, uint16(code))
	payload = append(payload, reason...)

	c.queue(CloseOpcode, payload)
	c.closeSent = true
}

// Close sends control normal close frame if wasn't any errors. After that
// the connection will be closed. Otherwise, it sends close frame
// with status code depending on happened error.
func (c *Conn) Close() error {
	if !c.closeSent {
		code := CloseNormalClosure
		if c.closeErr != nil && c.closeErr.Code != CloseNoStatusReceived {
			code = c.closeErr.Code
		}

		c.queueClose(code, "")
	}

	var err error
	if ferr := c.Flush(); ferr != nil && !reactor.IsWouldBlock(ferr) {
		err = ferr
	}

	return multierr.Append(err, c.conn.Close())
}
