package core

import "pkt.systems/boxmux/schema"

// EventSink receives stream and output events from the core service.
type EventSink interface {
	OnOutput(event schema.OutputEvent)
	OnStreamEvent(event schema.StreamEvent)
	OnControl(event schema.ControlEvent)
}
