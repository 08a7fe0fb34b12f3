package transport

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"

	websocket "github.com/Mort4lis/reactive-websocket"
	"github.com/Mort4lis/reactive-websocket/reactor"
)

// echoHandler writes every message back on the connection it came from.
type echoHandler struct {
	conns map[reactor.Token]*websocket.Conn
}

func (h *echoHandler) React(r reactor.Reaction[*websocket.Conn]) reactor.Reaction[struct{}] {
	if c, ok := r.Value(); ok {
		h.conns[c.Token()] = c
		h.drain(c)

		return reactor.Continue[struct{}]()
	}

	if ev, ok := r.Event(); ok {
		c, ok := h.conns[ev.Token]
		if !ok {
			return reactor.Continue[struct{}]()
		}

		if ev.Writable {
			_ = c.Flush()
		}

		h.drain(c)
	}

	return reactor.Continue[struct{}]()
}

func (h *echoHandler) drain(c *websocket.Conn) {
	for {
		typ, msg, err := c.ReadMessage()
		if reactor.IsWouldBlock(err) {
			return
		}

		if err != nil {
			delete(h.conns, c.Token())
			_ = c.Close()

			return
		}

		_ = c.WriteMessage(typ, msg)
	}
}

func startEchoServer(t *testing.T, up *websocket.Upgrader) string {
	t.Helper()

	poller, err := NewPoller()
	require.NoError(t, err)

	ln, err := Listen(poller, "127.0.0.1:0", zaptest.NewLogger(t))
	require.NoError(t, err)

	accept := reactor.Chain[struct{}, websocket.Connection, *websocket.Conn](ln, up)
	pipeline := reactor.Chain[struct{}, *websocket.Conn, struct{}](accept, &echoHandler{
		conns: make(map[reactor.Token]*websocket.Conn),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		loop := &Loop{Poller: poller, Tick: 10 * time.Millisecond, OnTick: func() { up.Expire() }}
		done <- loop.Run(ctx, reactor.Dispatcher(pipeline))
	}()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
		assert.NoError(t, ln.Close())
		assert.NoError(t, poller.Close())
	})

	return ln.Addr().String()
}

func TestServer_EchoWithGorillaClient(t *testing.T) {
	up := &websocket.Upgrader{Subprotocols: []string{"echo"}, Logger: zaptest.NewLogger(t)}
	addr := startEchoServer(t, up)

	dialer := gorilla.Dialer{Subprotocols: []string{"echo"}, HandshakeTimeout: 5 * time.Second}

	c, resp, err := dialer.Dial("ws://"+addr+"/echo", nil)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	assert.Equal(t, "echo", c.Subprotocol())

	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, c.WriteMessage(gorilla.TextMessage, []byte("hello")))

	typ, msg, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, gorilla.TextMessage, typ)
	assert.Equal(t, "hello", string(msg))

	big := bytes.Repeat([]byte{0xab}, 512<<10)
	require.NoError(t, c.WriteMessage(gorilla.BinaryMessage, big))

	typ, msg, err = c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, gorilla.BinaryMessage, typ)
	assert.Equal(t, big, msg)

	require.NoError(t, c.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")))

	_, _, err = c.ReadMessage()
	assert.True(t, gorilla.IsCloseError(err, gorilla.CloseNormalClosure), "got %v", err)
}

func TestServer_RejectsPlainHTTP(t *testing.T) {
	addr := startEchoServer(t, &websocket.Upgrader{})

	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://" + addr + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// await polls p and hands every event to fn until fn reports true.
func await(t *testing.T, p *Poller, fn func(ev reactor.Event) bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		events, err := p.Wait(20 * time.Millisecond)
		require.NoError(t, err)

		for _, ev := range events {
			if fn(ev) {
				return
			}
		}
	}

	t.Fatal("timed out waiting for events")
}

func gorillaEchoServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := gorilla.Upgrader{Subprotocols: []string{"chat"}}

		c, err := up.Upgrade(w, r, http.Header{"X-Served-By": []string{"gorilla"}})
		if err != nil {
			return
		}
		defer c.Close()

		for {
			typ, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			if err = c.WriteMessage(typ, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestClient_EchoWithGorillaServer(t *testing.T) {
	srv := gorillaEchoServer(t)

	poller, err := NewPoller()
	require.NoError(t, err)
	defer poller.Close()

	s, err := Dial(poller, srv.Listener.Addr().String())
	require.NoError(t, err)

	d := &websocket.Dialer{Subprotocols: []string{"chat"}, Logger: zaptest.NewLogger(t)}

	res := d.Submit(strings.Replace(srv.URL, "http", "ws", 1)+"/chat", s)
	if res.Outcome == websocket.Incomplete {
		await(t, poller, func(ev reactor.Event) bool {
			if r := d.Resume(ev); r.Outcome != websocket.PassThrough {
				res = r
			}

			return res.Outcome != websocket.Incomplete
		})
	}

	require.Equal(t, websocket.Ready, res.Outcome, "%v", res.Err)
	assert.Equal(t, "chat", res.Conn.Subprotocol())
	assert.Equal(t, "gorilla", res.Response.Header.Get("X-Served-By"))

	conn := res.Conn
	require.NoError(t, conn.WriteMessage(websocket.TextOpcode, []byte("round trip")))

	var got []byte

	read := func() bool {
		_, msg, err := conn.ReadMessage()
		if reactor.IsWouldBlock(err) {
			return false
		}

		require.NoError(t, err)
		got = msg

		return true
	}

	if !read() {
		await(t, poller, func(ev reactor.Event) bool {
			if ev.Writable {
				_ = conn.Flush()
			}

			return read()
		})
	}

	assert.Equal(t, "round trip", string(got))
	assert.NoError(t, conn.Close())
	assert.Zero(t, poller.Watched())
}

func TestClient_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	poller, err := NewPoller()
	require.NoError(t, err)
	defer poller.Close()

	s, err := Dial(poller, addr)
	if err != nil {
		assert.ErrorIs(t, err, unix.ECONNREFUSED)

		return
	}

	d := &websocket.Dialer{}

	res := d.Submit("/", s)
	if res.Outcome == websocket.Incomplete {
		await(t, poller, func(ev reactor.Event) bool {
			if r := d.Resume(ev); r.Outcome != websocket.PassThrough {
				res = r
			}

			return res.Outcome != websocket.Incomplete
		})
	}

	assert.Equal(t, websocket.Failed, res.Outcome)
	assert.ErrorIs(t, res.Err, unix.ECONNREFUSED)
	assert.Zero(t, d.Pending())
}
