// Package wstest provides an in-memory, non-blocking connection and helpers
// for testing code built on the websocket package.
package wstest

import (
	"bytes"
	"io"
	"net"

	"github.com/Mort4lis/reactive-websocket/reactor"
)

// Conn is a scripted connection. Bytes passed to Feed become readable; once
// they are consumed Read reports reactor.ErrWouldBlock until more are fed,
// like a non-blocking socket with an empty receive buffer.
type Conn struct {
	tok reactor.Token

	in  bytes.Buffer
	eof bool

	// MaxRead caps the bytes returned by a single Read. Zero means no cap.
	MaxRead int

	out bytes.Buffer
	// writable is the number of bytes Write still accepts; negative means
	// no limit.
	writable int

	reads  int
	closed bool
}

// NewConn returns a connection with token tok and chunks already readable.
func NewConn(tok reactor.Token, chunks ...[]byte) *Conn {
	c := &Conn{tok: tok, writable: -1}
	c.Feed(chunks...)

	return c
}

// Token implements websocket.Connection.
func (c *Conn) Token() reactor.Token {
	return c.tok
}

// Feed makes chunks readable.
func (c *Conn) Feed(chunks ...[]byte) {
	for _, chunk := range chunks {
		c.in.Write(chunk)
	}
}

// FeedEOF makes Read return io.EOF once the fed bytes are consumed.
func (c *Conn) FeedEOF() {
	c.eof = true
}

// SetWritable limits how many more bytes Write accepts before it reports
// reactor.ErrWouldBlock. A negative n removes the limit.
func (c *Conn) SetWritable(n int) {
	c.writable = n
}

func (c *Conn) Read(p []byte) (int, error) {
	if c.closed {
		return 0, net.ErrClosed
	}

	c.reads++

	if c.in.Len() == 0 {
		if c.eof {
			return 0, io.EOF
		}

		return 0, reactor.ErrWouldBlock
	}

	if c.MaxRead > 0 && len(p) > c.MaxRead {
		p = p[:c.MaxRead]
	}

	return c.in.Read(p)
}

func (c *Conn) Write(p []byte) (int, error) {
	if c.closed {
		return 0, net.ErrClosed
	}

	n := len(p)
	if c.writable >= 0 && n > c.writable {
		n = c.writable
	}

	c.out.Write(p[:n])

	if c.writable >= 0 {
		c.writable -= n
	}

	if n < len(p) {
		return n, reactor.ErrWouldBlock
	}

	return n, nil
}

// Close implements io.Closer. Closing twice returns net.ErrClosed.
func (c *Conn) Close() error {
	if c.closed {
		return net.ErrClosed
	}

	c.closed = true

	return nil
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	return c.closed
}

// Reads returns the number of Read calls made so far.
func (c *Conn) Reads() int {
	return c.reads
}

// Unread returns the number of fed bytes not read yet.
func (c *Conn) Unread() int {
	return c.in.Len()
}

// Written returns everything written so far.
func (c *Conn) Written() []byte {
	return c.out.Bytes()
}

// TakeWritten returns everything written so far and forgets it.
func (c *Conn) TakeWritten() []byte {
	b := append([]byte(nil), c.out.Bytes()...)
	c.out.Reset()

	return b
}
