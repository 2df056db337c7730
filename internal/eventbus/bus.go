// Package eventbus fans core service events out to subscribers (the render
// loop, the control socket). Slow subscribers drop events rather than block
// producers.
package eventbus

import (
	"context"
	"sync"

	"pkt.systems/boxmux/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventOutput carries appended output lines for a stream.
	EventOutput EventType = "output"
	// EventStream carries stream (tab) lifecycle updates.
	EventStream EventType = "stream"
	// EventControl carries PTY control responses.
	EventControl EventType = "control"
)

// Event represents a renderer-facing event emitted by the core service.
type Event struct {
	Type    EventType
	Output  schema.OutputEvent
	Stream  schema.StreamEvent
	Control schema.ControlEvent
}

// Bus fans events out to subscribers.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber and returns its channel plus a cancel
// function that closes it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	b.log.Debug("eventbus subscribe", "subs", count)
	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
		b.log.Debug("eventbus unsubscribe")
	}
}

// OnOutput publishes an output event.
func (b *Bus) OnOutput(event schema.OutputEvent) {
	b.publish(Event{Type: EventOutput, Output: event})
}

// OnStreamEvent publishes a stream lifecycle event.
func (b *Bus) OnStreamEvent(event schema.StreamEvent) {
	b.publish(Event{Type: EventStream, Stream: event})
}

// OnControl publishes a control response event.
func (b *Bus) OnControl(event schema.ControlEvent) {
	b.publish(Event{Type: EventControl, Control: event})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := make([]chan Event, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.log.Trace("eventbus dropped", "count", dropped)
	}
}
