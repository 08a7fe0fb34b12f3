package wstest

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gobwas/ws"
)

// Key and Accept are the sample nonce and accept value of RFC 6455 §1.3.
const (
	Key    = "dGhlIHNhbXBsZSBub25jZQ=="
	Accept = "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
)

// UpgradeRequest returns a valid upgrade request for path using Key. Extra
// header lines ("Name: value") are appended as given.
func UpgradeRequest(path string, extra ...string) []byte {
	lines := []string{
		"GET " + path + " HTTP/1.1",
		"Host: localhost",
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Key: " + Key,
		"Sec-WebSocket-Version: 13",
	}

	return head(append(lines, extra...))
}

// UpgradeResponse returns a 101 response for a request that sent key.
func UpgradeResponse(key string, extra ...string) []byte {
	lines := []string{
		"HTTP/1.1 101 Switching Protocols",
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Accept: " + acceptFor(key),
	}

	return head(append(lines, extra...))
}

func acceptFor(key string) string {
	sum := sha1.Sum([]byte(key + "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"))

	return base64.StdEncoding.EncodeToString(sum[:])
}

func head(lines []string) []byte {
	return []byte(strings.Join(lines, "\r\n") + "\r\n\r\n")
}

// RequestKey parses a written upgrade request and returns its
// Sec-WebSocket-Key.
func RequestKey(raw []byte) (string, error) {
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return "", fmt.Errorf("parse request: %w", err)
	}

	return req.Header.Get("Sec-WebSocket-Key"), nil
}

// ClientFrame encodes a single masked frame, as sent by a client.
func ClientFrame(op ws.OpCode, fin bool, payload []byte) []byte {
	f := ws.NewFrame(op, fin, append([]byte(nil), payload...))

	return ws.MustCompileFrame(ws.MaskFrameInPlace(f))
}

// ServerFrame encodes a single unmasked frame, as sent by a server.
func ServerFrame(op ws.OpCode, fin bool, payload []byte) []byte {
	return ws.MustCompileFrame(ws.NewFrame(op, fin, payload))
}

// ReadFrame decodes the first frame of raw and unmasks its payload.
func ReadFrame(raw []byte) (ws.Header, []byte, error) {
	r := bytes.NewReader(raw)

	h, err := ws.ReadHeader(r)
	if err != nil {
		return h, nil, err
	}

	payload := make([]byte, h.Length)
	if _, err = io.ReadFull(r, payload); err != nil {
		return h, nil, err
	}

	if h.Masked {
		ws.Cipher(payload, h.Mask, 0)
	}

	return h, payload, nil
}
