package websocket

import "github.com/gobwas/ws"

// Type of frames which defines in RFC 6455.
const (
	ContinuationOpcode = ws.OpContinuation
	TextOpcode         = ws.OpText
	BinaryOpcode       = ws.OpBinary
	CloseOpcode        = ws.OpClose
	PingOpcode         = ws.OpPing
	PongOpcode         = ws.OpPong

	noFrame ws.OpCode = 0xff
)

type frame struct {
	header  ws.Header
	payload []byte
}

func (f frame) opcode() ws.OpCode {
	return f.header.OpCode
}

func (f frame) isFinal() bool {
	return f.header.Fin
}

func (f frame) isData() bool {
	return f.header.OpCode == TextOpcode || f.header.OpCode == BinaryOpcode
}
