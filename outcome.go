package websocket

import (
	"net/http"

	"github.com/Mort4lis/reactive-websocket/reactor"
)

// Outcome is the result of one negotiation attempt.
type Outcome uint8

const (
	// Incomplete means the handshake needs more bytes (or a writable socket).
	// A Pending Handshake is kept for the token.
	Incomplete Outcome = iota
	// Ready means the handshake finished and Result.Conn is set.
	Ready
	// Failed means the negotiation was malformed or rejected. The connection
	// was closed and Result.Err holds the cause.
	Failed
	// PassThrough is only returned by Resume: nothing was pending for the
	// event's token and Result.Event holds the notification, unchanged.
	PassThrough
)

func (o Outcome) String() string {
	switch o {
	case Incomplete:
		return "incomplete"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case PassThrough:
		return "pass-through"
	default:
		return "unknown"
	}
}

// Result is what Submit and Resume report back to the event loop.
type Result struct {
	Outcome Outcome

	// Conn is the completed connection when Outcome is Ready. Ownership
	// moves to the caller.
	Conn *Conn
	// Response holds the peer's upgrade response on the client side.
	Response *http.Response

	// Event is the untouched notification when Outcome is PassThrough.
	Event reactor.Event

	// Err is the cause when Outcome is Failed.
	Err error
}

func (r Result) reaction() reactor.Reaction[*Conn] {
	switch r.Outcome {
	case Ready:
		return reactor.Value(r.Conn)
	case PassThrough:
		return reactor.EventOf[*Conn](r.Event)
	default:
		return reactor.Continue[*Conn]()
	}
}
