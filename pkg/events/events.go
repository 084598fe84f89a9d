// Package events delivers receiver-side notifications to the host
// application without blocking the network handlers.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"lanhop/pkg/protocol"
)

type Kind int

const (
	// Received carries a completed inbound envelope.
	Received Kind = iota
	// Status reports lifecycle changes such as a bound port or a started stream.
	Status
	// Error reports a failure that did not abort the receiver.
	Error
)

func (k Kind) String() string {
	switch k {
	case Received:
		return "received"
	case Status:
		return "status"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind     Kind
	Envelope *protocol.Envelope
	Message  string
	Err      error
	Time     time.Time
}

// Sink accepts events. Publish must not block.
type Sink interface {
	Publish(Event)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// Bus is a buffered Sink read by a single consumer loop through C.
// When the buffer is full new events are dropped and counted.
type Bus struct {
	ch      chan Event
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{ch: make(chan Event, buffer)}
}

func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.dropped.Add(1)
		return
	}
	select {
	case b.ch <- ev:
	default:
		b.dropped.Add(1)
	}
}

// C returns the receive side. It is closed by Close.
func (b *Bus) C() <-chan Event { return b.ch }

// Dropped reports how many events were discarded.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}

// Funcs fans one event out to several sinks.
type Funcs []Sink

func (f Funcs) Publish(ev Event) {
	for _, s := range f {
		s.Publish(ev)
	}
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (fn SinkFunc) Publish(ev Event) { fn(ev) }
