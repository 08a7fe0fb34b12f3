package websocket

import (
	"errors"
	"fmt"
	"net/http"
)

// Handshake errors.
var (
	ErrBadMethod          = errors.New("request to upgrade is not GET")
	ErrBadProtocolVersion = errors.New("request to upgrade is not HTTP/1.1 or newer")
	ErrMissingConnection  = errors.New("upgrade not found in Connection header")
	ErrMissingUpgrade     = errors.New("websocket not found in Upgrade header")
	ErrBadVersion         = errors.New("unsupported version for upgrade to websocket")
	ErrMissingSecKey      = errors.New("Sec-WebSocket-Key header is missing or blank")
	ErrInvalidSecKey      = errors.New("Sec-WebSocket-Key header is not a base64 encoded 16-byte nonce")
	ErrForbiddenOrigin    = errors.New("request origin not allowed")
	ErrHeaderTooLarge     = errors.New("handshake head exceeds the size limit")
	ErrBadStatus          = errors.New("bad status code, expect status switching protocols (101)")
	ErrSecAcceptMismatch  = errors.New("bad calculated Sec-WebSocket-Accept header value")
	ErrSubprotocol        = errors.New("server selected a subprotocol the client did not offer")
	ErrBadTarget          = errors.New("bad target (must be a path or a ws, wss, http or https url)")
	ErrPendingEvicted     = errors.New("pending handshake evicted")
	ErrHandshakeTimeout   = errors.New("handshake timed out")
)

// HandshakeError is a type which represents an error occurs
// in process handshake to establish WebSocket connection.
type HandshakeError struct {
	Err error
	// Status is the HTTP status sent to a rejected client. Zero on the client
	// side.
	Status int
}

func newHandshakeError(status int, err error) *HandshakeError {
	return &HandshakeError{Err: err, Status: status}
}

func (e *HandshakeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("websocket: handshake: %s (%d %s)", e.Err, e.Status, http.StatusText(e.Status))
	}

	return "websocket: handshake: " + e.Err.Error()
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// CloseError is a type which represents closure WebSocket error.
type CloseError struct {
	Code int
	Text string
}

func newCloseError(code int, text string) *CloseError {
	return &CloseError{Code: code, Text: text}
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("websocket: close %d: %s", e.Code, e.Text)
}

var (
	errInvalidClosurePayload = newCloseError(
		CloseProtocolError,
		"invalid close payload",
	)
	errInvalidClosureCode = newCloseError(
		CloseProtocolError,
		"invalid closure code",
	)
	errInvalidUtf8Payload = newCloseError(
		CloseInvalidFramePayloadData,
		"invalid UTF-8 text payload",
	)
	errMessageTooBig = newCloseError(
		CloseMessageTooBig,
		"message exceeds the read limit",
	)
)
