// Package transport drives non-blocking TCP sockets with epoll and turns
// readiness into reactor.Event notifications.
//
// Streams are registered edge-triggered: a component that gets an event must
// read until ErrWouldBlock, or it will not be notified about the bytes it left
// in the socket. websocket.Conn.ReadMessage and the handshake adapters follow
// that rule when the caller keeps reading until ErrWouldBlock. Listeners are
// level-triggered and accept one connection per event.
//
// A typical server:
//
//	poller, _ := transport.NewPoller()
//	ln, _ := transport.Listen(poller, ":8080", logger)
//	up := &websocket.Upgrader{Logger: logger}
//
//	accept := reactor.Chain[struct{}, websocket.Connection, *websocket.Conn](ln, up)
//	pipeline := reactor.Chain[struct{}, *websocket.Conn, struct{}](accept, handler)
//	loop := &transport.Loop{Poller: poller, OnTick: func() { up.Expire() }}
//	err := loop.Run(ctx, reactor.Dispatcher(pipeline))
package transport
