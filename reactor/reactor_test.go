package reactor

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func double() Reactor[int, int] {
	return Func[int, int](func(r Reaction[int]) Reaction[int] {
		if v, ok := r.Value(); ok {
			return Value(v * 2)
		}

		if ev, ok := r.Event(); ok && ev.Token == 1 {
			return Continue[int]()
		}

		if ev, ok := r.Event(); ok {
			return EventOf[int](ev)
		}

		return Continue[int]()
	})
}

func TestReaction_Variants(t *testing.T) {
	v := Value("x")
	got, ok := v.Value()
	require.True(t, ok)
	assert.Equal(t, "x", got)
	assert.Equal(t, KindValue, v.Kind())

	ev := EventOf[string](Event{Token: 7, Readable: true})
	gotEv, ok := ev.Event()
	require.True(t, ok)
	assert.Equal(t, Token(7), gotEv.Token)
	_, ok = ev.Value()
	assert.False(t, ok)

	assert.True(t, Continue[string]().IsContinue())
	assert.Equal(t, "continue", KindContinue.String())
}

func TestChain_ValuesFlowThrough(t *testing.T) {
	c := Chain(double(), double())

	out := c.React(Value(3))
	v, ok := out.Value()
	require.True(t, ok)
	assert.Equal(t, 12, v)
}

func TestChain_EventsPassThrough(t *testing.T) {
	var seen []Token

	sink := Func[int, struct{}](func(r Reaction[int]) Reaction[struct{}] {
		if ev, ok := r.Event(); ok {
			seen = append(seen, ev.Token)
		}

		return Continue[struct{}]()
	})

	c := Chain(double(), sink)
	c.React(EventOf[int](Event{Token: 1}))
	c.React(EventOf[int](Event{Token: 2}))

	assert.Equal(t, []Token{2}, seen)
}

func TestMap(t *testing.T) {
	m := Map(double(), func(v int) string { return fmt.Sprint(v) })

	v, ok := m.React(Value(21)).Value()
	require.True(t, ok)
	assert.Equal(t, "42", v)

	ev, ok := m.React(EventOf[int](Event{Token: 5})).Event()
	require.True(t, ok)
	assert.Equal(t, Token(5), ev.Token)
}

func TestDispatcher(t *testing.T) {
	var got []Event

	d := Dispatcher[int, int](Func[int, int](func(r Reaction[int]) Reaction[int] {
		if ev, ok := r.Event(); ok {
			got = append(got, ev)
		}

		return Continue[int]()
	}))

	d(Event{Token: 9, Writable: true})
	require.Len(t, got, 1)
	assert.True(t, got[0].Writable)
}

func TestIsWouldBlock(t *testing.T) {
	assert.True(t, IsWouldBlock(ErrWouldBlock))
	assert.True(t, IsWouldBlock(fmt.Errorf("read: %w", ErrWouldBlock)))
	assert.True(t, IsWouldBlock(syscall.EAGAIN))
	assert.True(t, IsWouldBlock(os.ErrDeadlineExceeded))
	assert.False(t, IsWouldBlock(errors.New("boom")))
	assert.False(t, IsWouldBlock(nil))
}
