package websocket

import (
	"io"

	"github.com/Mort4lis/reactive-websocket/reactor"
)

// ErrWouldBlock is reported by non-blocking I/O that cannot make progress now.
var ErrWouldBlock = reactor.ErrWouldBlock

// Connection is a raw, non-blocking byte stream bound to a Token.
//
// Read and Write must never wait: when no bytes can be transferred they
// return ErrWouldBlock (or an error IsWouldBlock recognises) and the caller
// retries after the next readiness notification for Token. Read returns
// io.EOF once the peer has closed its side.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer

	// Token identifies the connection. It is stable for the connection's
	// lifetime and known before the first read.
	Token() reactor.Token
}
