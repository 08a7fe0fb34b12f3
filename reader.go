package websocket

import (
	"bytes"
	"errors"
	"io"

	"github.com/gobwas/ws"

	"github.com/Mort4lis/reactive-websocket/reactor"
)

// DefaultReadLimit is the largest message a Conn accepts unless changed with
// SetReadLimit.
const DefaultReadLimit = 16 << 20

// errIncomplete means the buffer does not hold a whole frame yet.
var errIncomplete = errors.New("incomplete frame")

// frameReader decodes frames from the bytes read so far. Nothing is consumed
// until a whole frame is buffered.
type frameReader struct {
	buf   []byte
	state ws.State
	limit int64
}

// fill appends whatever the connection has until it would block and returns
// the number of bytes read. A closed peer yields io.EOF.
func (r *frameReader) fill(conn Connection) (int, error) {
	var (
		chunk [4096]byte
		total int
	)

	for {
		n, err := conn.Read(chunk[:])
		r.buf = append(r.buf, chunk[:n]...)
		total += n

		switch {
		case err == nil && n == 0:
			return total, nil
		case err == nil:
		case reactor.IsWouldBlock(err):
			return total, nil
		default:
			return total, err
		}
	}
}

func (r *frameReader) next() (frame, error) {
	src := bytes.NewReader(r.buf)

	h, err := ws.ReadHeader(src)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return frame{}, errIncomplete
	}

	if err != nil {
		return frame{}, newCloseError(CloseProtocolError, err.Error())
	}

	if err = ws.CheckHeader(h, r.state); err != nil {
		return frame{}, newCloseError(CloseProtocolError, err.Error())
	}

	if r.limit > 0 && h.Length > r.limit {
		return frame{}, errMessageTooBig
	}

	if int64(src.Len()) < h.Length {
		return frame{}, errIncomplete
	}

	start := len(r.buf) - src.Len()
	end := start + int(h.Length)

	payload := make([]byte, h.Length)
	copy(payload, r.buf[start:end])
	r.buf = r.buf[end:]

	if h.Masked {
		ws.Cipher(payload, h.Mask, 0)
	}

	if !h.OpCode.IsControl() {
		if h.Fin {
			r.state = r.state.Clear(ws.StateFragmented)
		} else {
			r.state = r.state.Set(ws.StateFragmented)
		}
	}

	return frame{header: h, payload: payload}, nil
}

// buffered reports the number of undecoded bytes.
func (r *frameReader) buffered() int {
	return len(r.buf)
}
