package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDropsWhenFull(t *testing.T) {
	b := NewBus(2)
	b.Publish(Event{Kind: Status, Message: "a"})
	b.Publish(Event{Kind: Status, Message: "b"})
	b.Publish(Event{Kind: Error, Err: errors.New("c")})
	assert.Equal(t, uint64(1), b.Dropped())

	ev := <-b.C()
	assert.Equal(t, "a", ev.Message)
	assert.False(t, ev.Time.IsZero())

	b.Close()
	b.Close()
	b.Publish(Event{})
	assert.Equal(t, uint64(2), b.Dropped())

	ev, ok := <-b.C()
	require.True(t, ok)
	assert.Equal(t, "b", ev.Message)
	_, ok = <-b.C()
	assert.False(t, ok)
}

func TestFanout(t *testing.T) {
	var n int
	s := Funcs{Discard, SinkFunc(func(Event) { n++ }), SinkFunc(func(Event) { n++ })}
	s.Publish(Event{Kind: Received})
	assert.Equal(t, 2, n)
	assert.Equal(t, "received", Received.String())
}
