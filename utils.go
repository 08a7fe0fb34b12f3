package websocket

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gobwas/httphead"
)

// keyGUID (Globally Unique Identifier).
var keyGUID = []byte("258EAFA5-E914-47DA-95CA-C5AB0DC85B11")

var headTerminator = []byte("\r\n\r\n")

// headerContainsToken reports whether any value of the comma separated header
// key lists token, compared case-insensitively.
func headerContainsToken(header http.Header, key string, token string) bool {
	found := false

	for _, v := range header.Values(key) {
		ok := httphead.ScanTokens([]byte(v), func(t []byte) bool {
			if bytes.EqualFold(t, []byte(token)) {
				found = true

				return false
			}

			return true
		})
		if found {
			return true
		}

		if !ok {
			return false
		}
	}

	return found
}

// headerTokens returns every token of the comma separated header key.
func headerTokens(header http.Header, key string) []string {
	var tokens []string

	for _, v := range header.Values(key) {
		httphead.ScanTokens([]byte(v), func(t []byte) bool {
			tokens = append(tokens, string(t))

			return true
		})
	}

	return tokens
}

func createSecret(key string) string {
	hash := sha1.New()
	hash.Write([]byte(key))
	hash.Write(keyGUID)

	return base64.StdEncoding.EncodeToString(hash.Sum(nil))
}

func createClientSecret() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(buf), nil
}

func isValidClientSecret(key string) bool {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(key))

	return err == nil && len(decoded) == 16
}
