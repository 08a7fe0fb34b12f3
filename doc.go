// Package websocket implements the WebSocket opening handshake defined in
// RFC 6455 for event loops that must never block.
//
// How to use
//
// The Upgrader type is the server side. Hand it every freshly accepted raw
// connection and every readiness notification; it answers with a Result:
//
//	up := &websocket.Upgrader{Subprotocols: []string{"chat"}}
//
//	res := up.Submit(conn)         // new connection
//	res = up.Resume(event)         // readiness notification
//	switch res.Outcome {
//	case websocket.Ready:          // res.Conn is the WebSocket connection
//	case websocket.Incomplete:     // waiting for more bytes, nothing to do
//	case websocket.Failed:         // connection dropped, res.Err says why
//	case websocket.PassThrough:    // not ours, route res.Event elsewhere
//	}
//
// Otherwise, if you are interesting to use websocket package as a client you
// should use Dialer.Submit with the resource to request and a connected raw
// connection. The Ready result also carries the server's response:
//
//	d := &websocket.Dialer{Host: "example.com"}
//	res := d.Submit("/chat", conn)
//
// Both adapters implement reactor.Reactor, so they can be chained between a
// listener and a handler and fed by a single event loop (see the transport
// package for an epoll based one):
//
//	upgrade := reactor.Chain[websocket.Connection, *websocket.Conn, struct{}](up, handler)
//	pipeline := reactor.Chain[struct{}, websocket.Connection, struct{}](listener, upgrade)
//
// Having Conn instance you can send and receive messages, calling
// Conn.WriteMessage and Conn.ReadMessage. Both return ErrWouldBlock instead
// of waiting.
//
//	for {
//	    typ, payload, err := conn.ReadMessage()
//	    if errors.Is(err, websocket.ErrWouldBlock) {
//	        break
//	    }
//	    if err != nil {
//	        log.Println(err)
//	        return
//	    }
//	    if err = conn.WriteMessage(typ, payload); err != nil {
//	        log.Println(err)
//	        return
//	    }
//	}
//
// Pending handshakes
//
// A handshake that cannot finish with the bytes at hand is kept by the
// adapter, keyed by the connection token, and retried on the next
// notification for that token. At most one handshake is pending per token.
// Nothing expires on its own: call Expire periodically when HandshakeTimeout
// is set, and Purge when the transport reports a closed connection.
package websocket
