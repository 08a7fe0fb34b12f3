package websocket

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/Mort4lis/reactive-websocket/reactor"
)

// DefaultMaxPending bounds the number of pending handshakes per adapter when
// MaxPending is zero.
const DefaultMaxPending = 4096

type pendingEntry[H any] struct {
	handshake H
	started   time.Time
}

// pendingTable owns suspended handshakes by token. An entry is taken out
// before every retry and only put back when the retry is incomplete, so a
// token never has more than one entry and nothing else holds a reference.
//
// The table is not safe for concurrent use.
type pendingTable[H any] struct {
	entries *simplelru.LRU[reactor.Token, pendingEntry[H]]
	// quiet suppresses the eviction callback while an entry is taken on
	// purpose.
	quiet   bool
	onEvict func(reactor.Token, H)
}

func newPendingTable[H any](size int, onEvict func(reactor.Token, H)) *pendingTable[H] {
	if size <= 0 {
		size = DefaultMaxPending
	}

	t := &pendingTable[H]{onEvict: onEvict}

	// NewLRU only fails on a non-positive size.
	t.entries, _ = simplelru.NewLRU[reactor.Token, pendingEntry[H]](size, t.evict)

	return t
}

func (t *pendingTable[H]) evict(tok reactor.Token, e pendingEntry[H]) {
	if t.quiet || t.onEvict == nil {
		return
	}

	t.onEvict(tok, e.handshake)
}

// put stores h for tok. When the table is full the least recently touched
// entry is evicted first.
func (t *pendingTable[H]) put(tok reactor.Token, h H, started time.Time) {
	t.entries.Add(tok, pendingEntry[H]{handshake: h, started: started})
}

// take removes and returns the entry for tok.
func (t *pendingTable[H]) take(tok reactor.Token) (h H, started time.Time, ok bool) {
	e, ok := t.entries.Peek(tok)
	if !ok {
		return h, started, false
	}

	t.quiet = true
	t.entries.Remove(tok)
	t.quiet = false

	return e.handshake, e.started, true
}

func (t *pendingTable[H]) contains(tok reactor.Token) bool {
	return t.entries.Contains(tok)
}

func (t *pendingTable[H]) len() int {
	return t.entries.Len()
}

// startedBefore lists the tokens whose handshake started before cutoff.
func (t *pendingTable[H]) startedBefore(cutoff time.Time) []reactor.Token {
	var stale []reactor.Token

	for _, tok := range t.entries.Keys() {
		if e, ok := t.entries.Peek(tok); ok && e.started.Before(cutoff) {
			stale = append(stale, tok)
		}
	}

	return stale
}
