// Package reactor defines the contract between components driven by a
// single-threaded event loop.
//
// A Reactor is a synchronous function invoked once per stimulus. A stimulus is
// either a value produced by the previous component in a pipeline, or a
// readiness notification (Event) for a connection. The reactor answers with a
// value for the next component, with the event itself when it is not the
// component that should handle it, or with Continue when there is nothing to
// hand on.
//
// Reactors never block. An operation that cannot make progress reports
// ErrWouldBlock and the reactor keeps whatever state it needs until the next
// Event for the same Token arrives.
//
//	pipeline := reactor.Chain(listener, reactor.Chain(upgrader, handler))
//	loop.Run(ctx, reactor.Dispatcher(pipeline))
package reactor

import "fmt"

// Token identifies one connection for its whole lifetime. Tokens are never
// reused while the connection is live.
type Token uint64

func (t Token) String() string {
	return fmt.Sprintf("token(%d)", uint64(t))
}

// Event is a readiness notification for the connection identified by Token.
type Event struct {
	Token    Token
	Readable bool
	Writable bool
	// Hangup is set when the peer closed its side or the socket failed. A read
	// will report the condition.
	Hangup bool
}

// Kind is the variant held by a Reaction.
type Kind uint8

// Reaction variants.
const (
	KindContinue Kind = iota
	KindValue
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindEvent:
		return "event"
	default:
		return "continue"
	}
}

// Reaction is the stimulus handed to a Reactor and the effect it returns.
type Reaction[T any] struct {
	kind  Kind
	value T
	event Event
}

// Value wraps v as a value reaction.
func Value[T any](v T) Reaction[T] {
	return Reaction[T]{kind: KindValue, value: v}
}

// EventOf wraps ev as an event reaction.
func EventOf[T any](ev Event) Reaction[T] {
	return Reaction[T]{kind: KindEvent, event: ev}
}

// Continue returns the empty reaction: nothing to hand on.
func Continue[T any]() Reaction[T] {
	return Reaction[T]{}
}

// Kind reports which variant r holds.
func (r Reaction[T]) Kind() Kind {
	return r.kind
}

// Value returns the wrapped value and whether r is a value reaction.
func (r Reaction[T]) Value() (T, bool) {
	return r.value, r.kind == KindValue
}

// Event returns the wrapped event and whether r is an event reaction.
func (r Reaction[T]) Event() (Event, bool) {
	return r.event, r.kind == KindEvent
}

// IsContinue reports whether r carries nothing.
func (r Reaction[T]) IsContinue() bool {
	return r.kind == KindContinue
}

// Reactor is a component of an event-driven pipeline.
type Reactor[In, Out any] interface {
	React(r Reaction[In]) Reaction[Out]
}

// Func adapts an ordinary function to the Reactor interface.
type Func[In, Out any] func(r Reaction[In]) Reaction[Out]

// React calls f(r).
func (f Func[In, Out]) React(r Reaction[In]) Reaction[Out] {
	return f(r)
}

type chain[A, B, C any] struct {
	first  Reactor[A, B]
	second Reactor[B, C]
}

// Chain connects two reactors. Values emitted by first are the input of
// second, and events first passes through are offered to second.
func Chain[A, B, C any](first Reactor[A, B], second Reactor[B, C]) Reactor[A, C] {
	return &chain[A, B, C]{first: first, second: second}
}

func (c *chain[A, B, C]) React(r Reaction[A]) Reaction[C] {
	out := c.first.React(r)
	switch out.kind {
	case KindValue:
		return c.second.React(Value(out.value))
	case KindEvent:
		return c.second.React(EventOf[B](out.event))
	default:
		return Continue[C]()
	}
}

type mapped[In, Out, M any] struct {
	r  Reactor[In, Out]
	fn func(Out) M
}

// Map transforms every value emitted by r with fn.
func Map[In, Out, M any](r Reactor[In, Out], fn func(Out) M) Reactor[In, M] {
	return &mapped[In, Out, M]{r: r, fn: fn}
}

func (m *mapped[In, Out, M]) React(r Reaction[In]) Reaction[M] {
	out := m.r.React(r)
	switch out.kind {
	case KindValue:
		return Value(m.fn(out.value))
	case KindEvent:
		return EventOf[M](out.event)
	default:
		return Continue[M]()
	}
}

// Dispatcher returns a function feeding readiness notifications into r. The
// pipeline's own output is discarded.
func Dispatcher[In, Out any](r Reactor[In, Out]) func(Event) {
	return func(ev Event) {
		r.React(EventOf[In](ev))
	}
}
