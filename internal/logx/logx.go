// Package logx provides context-aware logger enrichment helpers.
package logx

import (
	"context"

	"pkt.systems/boxmux/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	boxKey contextKey = iota
	streamKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithBox annotates the logger with the box id if present.
func WithBox(ctx context.Context, boxID schema.BoxID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if boxID != "" {
		if current, ok := ctx.Value(boxKey).(schema.BoxID); ok && current == boxID {
			return log
		}
		log = log.With("box", boxID)
	}
	return log
}

// WithBoxStream annotates the logger with box and stream identifiers.
func WithBoxStream(ctx context.Context, boxID schema.BoxID, streamID schema.StreamID) pslog.Logger {
	log := WithBox(ctx, boxID)
	if streamID != "" {
		if current, ok := ctx.Value(streamKey).(schema.StreamID); ok && current == streamID {
			return log
		}
		log = log.With("stream", streamID)
	}
	return log
}

// ContextWithBox stores the box marker on the context for log de-duplication.
func ContextWithBox(ctx context.Context, boxID schema.BoxID) context.Context {
	if ctx == nil || boxID == "" {
		return ctx
	}
	return context.WithValue(ctx, boxKey, boxID)
}

// ContextWithBoxStream stores box/stream markers on the context.
func ContextWithBoxStream(ctx context.Context, boxID schema.BoxID, streamID schema.StreamID) context.Context {
	ctx = ContextWithBox(ctx, boxID)
	if ctx == nil || streamID == "" {
		return ctx
	}
	return context.WithValue(ctx, streamKey, streamID)
}
