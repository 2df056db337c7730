package boxmux

import (
	"pkt.systems/boxmux/core"
	"pkt.systems/boxmux/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnOutput(event schema.OutputEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnOutput(event)
	}
}

func (f eventFanout) OnStreamEvent(event schema.StreamEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnStreamEvent(event)
	}
}

func (f eventFanout) OnControl(event schema.ControlEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnControl(event)
	}
}
