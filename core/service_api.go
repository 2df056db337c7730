package core

import (
	"context"

	"pkt.systems/boxmux/schema"
)

// Service is the transport-agnostic API for managing boxes, streams, and
// command dispatches.
type Service interface {
	AddBox(ctx context.Context, spec schema.BoxSpec) error
	Dispatch(ctx context.Context, req schema.DispatchRequest) (schema.DispatchResponse, error)
	ActivateChoice(ctx context.Context, boxID schema.BoxID, actionID schema.ActionID) (schema.DispatchResponse, error)
	SelectStream(ctx context.Context, boxID schema.BoxID, streamID schema.StreamID) error
	RemoveStream(ctx context.Context, boxID schema.BoxID, streamID schema.StreamID) error
	BoxStreams(ctx context.Context, boxID schema.BoxID) (schema.BoxStreams, error)
	StreamSnapshot(ctx context.Context, boxID schema.BoxID, streamID schema.StreamID) (schema.StreamSnapshot, error)
	PushExternal(ctx context.Context, boxID schema.BoxID, streamID schema.StreamID, label string, lines []string, replace bool) error
	SendPtyInput(ctx context.Context, boxID schema.BoxID, data []byte) error
	ResizePty(ctx context.Context, boxID schema.BoxID, rows, cols uint16) error
	HandlePtyOutput(boxID schema.BoxID, streamID schema.StreamID, lines []string)
	HandlePtyExit(boxID schema.BoxID, streamID schema.StreamID, exitCode int)
	Close() error
}
