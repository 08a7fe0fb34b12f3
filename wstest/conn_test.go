package wstest

import (
	"io"
	"net"
	"testing"

	"github.com/gobwas/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mort4lis/reactive-websocket/reactor"
)

func TestConn_ReadWouldBlockUntilFed(t *testing.T) {
	c := NewConn(1, []byte("ab"))
	buf := make([]byte, 8)

	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(buf[:n]))

	_, err = c.Read(buf)
	assert.ErrorIs(t, err, reactor.ErrWouldBlock)

	c.Feed([]byte("c"))
	c.FeedEOF()

	n, err = c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "c", string(buf[:n]))

	_, err = c.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 4, c.Reads())
}

func TestConn_MaxRead(t *testing.T) {
	c := NewConn(1, []byte("abcdef"))
	c.MaxRead = 4

	buf := make([]byte, 8)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 2, c.Unread())
}

func TestConn_SetWritable(t *testing.T) {
	c := NewConn(1)
	c.SetWritable(3)

	n, err := c.Write([]byte("hello"))
	assert.Equal(t, 3, n)
	assert.ErrorIs(t, err, reactor.ErrWouldBlock)

	c.SetWritable(-1)
	n, err = c.Write([]byte("lo"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "hello", string(c.TakeWritten()))
	assert.Empty(t, c.Written())
}

func TestConn_Close(t *testing.T) {
	c := NewConn(1)
	require.NoError(t, c.Close())
	assert.True(t, c.Closed())
	assert.ErrorIs(t, c.Close(), net.ErrClosed)

	_, err := c.Write([]byte("x"))
	assert.ErrorIs(t, err, net.ErrClosed)
}

func TestFrames(t *testing.T) {
	h, payload, err := ReadFrame(ClientFrame(ws.OpText, true, []byte("hi")))
	require.NoError(t, err)
	assert.True(t, h.Masked)
	assert.Equal(t, "hi", string(payload))

	h, payload, err = ReadFrame(ServerFrame(ws.OpBinary, false, []byte{1, 2}))
	require.NoError(t, err)
	assert.False(t, h.Masked)
	assert.False(t, h.Fin)
	assert.Equal(t, []byte{1, 2}, payload)
}

func TestUpgradeHelpers(t *testing.T) {
	key, err := RequestKey(UpgradeRequest("/chat"))
	require.NoError(t, err)
	assert.Equal(t, Key, key)
	assert.Contains(t, string(UpgradeResponse(Key)), "Sec-WebSocket-Accept: "+Accept+"\r\n")
}
