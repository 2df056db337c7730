// Package control implements the PTY control protocol: kill, restart, and
// status queries keyed by box id. Failures are values carried in the reply
// message, never panics.
package control

import (
	"context"
	"errors"
	"fmt"

	"pkt.systems/boxmux/schema"
	"pkt.systems/pslog"
)

// PtyController is the subset of the PTY manager the protocol drives.
type PtyController interface {
	Kill(boxID schema.BoxID) error
	Restart(ctx context.Context, boxID schema.BoxID) error
	Info(boxID schema.BoxID) (schema.PtyProcessInfo, error)
}

// EventSink publishes control replies onto the ordinary event stream so
// socket clients observe a single sequence of updates.
type EventSink interface {
	OnControl(event schema.ControlEvent)
}

// Handler answers control requests against a PTY controller.
type Handler struct {
	pty    PtyController
	sink   EventSink
	logger pslog.Logger
}

// NewHandler constructs a control handler. A nil controller is valid: every
// request then fails with an unavailable message.
func NewHandler(pty PtyController, sink EventSink, logger pslog.Logger) *Handler {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Handler{pty: pty, sink: sink, logger: logger}
}

// Handle answers one control request. The reply is also published as a
// control event.
func (h *Handler) Handle(ctx context.Context, req schema.ControlRequest) schema.ControlResponse {
	resp := h.dispatch(ctx, req)
	if h.sink != nil {
		h.sink.OnControl(schema.ControlEvent{
			BoxID:   resp.BoxID,
			Success: resp.Success,
			Message: resp.Message,
		})
	}
	if resp.Success {
		h.logger.Info("control request handled", "type", req.Type, "box", req.BoxID)
	} else {
		h.logger.Warn("control request failed", "type", req.Type, "box", req.BoxID, "message", resp.Message)
	}
	return resp
}

func (h *Handler) dispatch(ctx context.Context, req schema.ControlRequest) schema.ControlResponse {
	if h.pty == nil {
		return failure(req.BoxID, schema.ErrPtyManagerUnavailable.Error())
	}
	switch req.Type {
	case schema.ControlKillPty:
		if err := h.pty.Kill(req.BoxID); err != nil {
			return failure(req.BoxID, controlError(req.BoxID, err))
		}
		return success(req.BoxID, fmt.Sprintf("Killed PTY process for box %s", req.BoxID))
	case schema.ControlRestartPty:
		if err := h.pty.Restart(ctx, req.BoxID); err != nil {
			return failure(req.BoxID, controlError(req.BoxID, err))
		}
		return success(req.BoxID, fmt.Sprintf("Restarted PTY process for box %s", req.BoxID))
	case schema.ControlQueryPty:
		info, err := h.pty.Info(req.BoxID)
		if err != nil {
			return failure(req.BoxID, controlError(req.BoxID, err))
		}
		return success(req.BoxID, info.StatusLine())
	default:
		return failure(req.BoxID, fmt.Sprintf("unknown control request type: %s", req.Type))
	}
}

func controlError(boxID schema.BoxID, err error) string {
	switch {
	case errors.Is(err, schema.ErrPtyNotFound):
		return fmt.Sprintf("PTY not found for box %s", boxID)
	case errors.Is(err, schema.ErrNotKillable):
		return fmt.Sprintf("process for box %s cannot be killed", boxID)
	default:
		return err.Error()
	}
}

func success(boxID schema.BoxID, message string) schema.ControlResponse {
	return schema.ControlResponse{BoxID: boxID, Success: true, Message: message}
}

func failure(boxID schema.BoxID, message string) schema.ControlResponse {
	return schema.ControlResponse{BoxID: boxID, Success: false, Message: message}
}
