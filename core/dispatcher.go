package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"pkt.systems/boxmux/internal/logx"
	"pkt.systems/boxmux/schema"
	"pkt.systems/pslog"
)

const (
	// outputPollInterval bounds how long a pump goroutine waits for the
	// next line before flushing what it has.
	outputPollInterval = 50 * time.Millisecond
	// flushBatchMax caps how many pending lines accumulate before the
	// pump attempts a flush regardless of the poll timer.
	flushBatchMax = 64
)

func (s *service) Dispatch(ctx context.Context, req schema.DispatchRequest) (schema.DispatchResponse, error) {
	if ctx == nil {
		return schema.DispatchResponse{}, errors.New("missing context")
	}
	mode := req.Mode
	if mode == "" {
		mode = schema.DefaultExecutionMode
	}
	if !mode.Valid() {
		return schema.DispatchResponse{}, schema.ErrInvalidMode
	}
	if strings.TrimSpace(strings.Join(req.Commands, "\n")) == "" {
		return schema.DispatchResponse{}, schema.ErrEmptyCommand
	}
	target := req.BoxID
	if req.RedirectTo != "" {
		target = req.RedirectTo
	}
	log := logx.WithBox(ctx, req.BoxID).With("action", req.ActionID, "mode", mode)
	log.Info("service dispatch start", "target", target, "commands", len(req.Commands), "append", req.Append)

	if mode == schema.ModePty && s.pty == nil {
		log.Warn("service dispatch failed", "err", schema.ErrPtyManagerUnavailable)
		return schema.DispatchResponse{}, schema.ErrPtyManagerUnavailable
	}
	if mode != schema.ModePty && s.exec == nil {
		log.Warn("service dispatch failed", "err", schema.ErrExecutorUnavailable)
		return schema.DispatchResponse{}, schema.ErrExecutorUnavailable
	}

	s.mu.Lock()
	source := s.boxes[req.BoxID]
	targetBox := s.boxes[target]
	s.mu.Unlock()
	if source == nil || targetBox == nil {
		log.Warn("service dispatch failed", "err", schema.ErrBoxNotFound)
		return schema.DispatchResponse{}, schema.ErrBoxNotFound
	}
	workingDir := source.Spec.WorkingDir

	kind := schema.StreamChoiceExecution
	switch {
	case mode == schema.ModePty:
		kind = schema.StreamPtySession
	case target != req.BoxID:
		kind = schema.StreamRedirectedOutput
	}
	streamID := executionStreamID(req.ActionID, mode)
	label := req.Label
	if label == "" {
		label = string(req.ActionID)
	}

	switch mode {
	case schema.ModeImmediate:
		return s.runImmediate(ctx, log, req, target, streamID, kind, label, workingDir)
	case schema.ModeThread:
		handle, err := s.exec.Spawn(ctx, SpawnRequest{Commands: req.Commands, WorkingDir: workingDir})
		if err != nil {
			log.Warn("service dispatch spawn failed", "err", err)
			return schema.DispatchResponse{}, err
		}
		s.attachStream(req, target, streamID, kind, label, true)
		log.Info("service dispatch running", "stream", streamID, "pid", handle.PID())
		pumpCtx := logx.ContextWithBoxStream(ctx, target, streamID)
		go s.pumpStream(pumpCtx, log.With("stream", streamID), req, target, streamID, handle)
		return schema.DispatchResponse{BoxID: target, StreamID: streamID}, nil
	default:
		s.attachStream(req, target, streamID, kind, label, true)
		err := s.pty.Start(ctx, schema.PtySpawnRequest{
			BoxID:      target,
			StreamID:   streamID,
			Commands:   req.Commands,
			WorkingDir: workingDir,
		})
		if err != nil {
			log.Warn("service dispatch pty start failed", "err", err)
			s.clearWaiting(req.BoxID, req.ActionID)
			s.writeStream(target, streamID, []string{"pty start failed: " + err.Error()}, false)
			return schema.DispatchResponse{}, err
		}
		log.Info("service dispatch running", "stream", streamID)
		return schema.DispatchResponse{BoxID: target, StreamID: streamID}, nil
	}
}

// runImmediate executes the command synchronously, collecting all output in
// one pass before the stream is published.
func (s *service) runImmediate(ctx context.Context, log pslog.Logger, req schema.DispatchRequest, target schema.BoxID, streamID schema.StreamID, kind schema.StreamKind, label, workingDir string) (schema.DispatchResponse, error) {
	handle, err := s.exec.Spawn(ctx, SpawnRequest{Commands: req.Commands, WorkingDir: workingDir})
	if err != nil {
		log.Warn("service dispatch spawn failed", "err", err)
		return schema.DispatchResponse{}, err
	}
	var lines []string
	var lastStderr string
	for {
		line, nextErr := handle.Next(ctx, 0)
		if nextErr != nil {
			if errors.Is(nextErr, io.EOF) {
				break
			}
			_ = handle.Close()
			log.Warn("service dispatch aborted", "err", nextErr)
			return schema.DispatchResponse{}, nextErr
		}
		if line.IsStderr {
			lastStderr = line.Content
		}
		lines = append(lines, renderLine(line))
	}
	exit, ok := handle.ExitStatus()
	if !ok {
		exit, _ = handle.Wait(ctx)
	}
	complete := schema.StreamingComplete{
		ExitCode:      &exit,
		TotalLines:    len(lines),
		Command:       handle.Command(),
		StderrExcerpt: lastStderr,
		ContextNote:   req.ContextNote,
	}

	s.attachStream(req, target, streamID, kind, label, false)
	s.writeStream(target, streamID, lines, !req.Append)
	s.completeStream(target, streamID, complete)
	log.Info("service dispatch completed", "stream", streamID, "exit_code", exit, "lines", len(lines))
	return schema.DispatchResponse{BoxID: target, StreamID: streamID, Complete: &complete}, nil
}

// pumpStream drains a background execution into its stream, batching lines
// through the per-box rate limiter. The limiter holds no queue: pending
// lines stay with the pump until a batch is admitted.
func (s *service) pumpStream(ctx context.Context, log pslog.Logger, req schema.DispatchRequest, target schema.BoxID, streamID schema.StreamID, handle ExecHandle) {
	var pending []string
	var lastStderr string
	var total int

	flush := func(force bool) {
		if len(pending) == 0 {
			return
		}
		if !force && s.limiter != nil && !s.limiter.AllowBatchOutput(target, len(pending)) {
			return
		}
		batch := pending
		pending = nil
		total += len(batch)
		s.writeStream(target, streamID, batch, !req.Append)
	}

	for {
		line, err := handle.Next(ctx, outputPollInterval)
		switch {
		case err == nil:
			if line.IsStderr {
				lastStderr = line.Content
			}
			pending = append(pending, renderLine(line))
			if len(pending) >= flushBatchMax {
				flush(false)
			}
		case errors.Is(err, context.DeadlineExceeded):
			flush(false)
		case errors.Is(err, io.EOF):
			flush(true)
			exit, ok := handle.ExitStatus()
			if !ok {
				exit, _ = handle.Wait(ctx)
			}
			s.completeStream(target, streamID, schema.StreamingComplete{
				ExitCode:      &exit,
				TotalLines:    total,
				Command:       handle.Command(),
				StderrExcerpt: lastStderr,
				ContextNote:   req.ContextNote,
			})
			log.Info("service dispatch completed", "stream", streamID, "exit_code", exit, "lines", total)
			return
		default:
			_ = handle.Close()
			s.clearWaiting(req.BoxID, req.ActionID)
			log.Warn("service dispatch aborted", "err", err)
			return
		}
	}
}

// HandlePtyOutput routes lines read from a pseudo-terminal into its stream.
func (s *service) HandlePtyOutput(boxID schema.BoxID, streamID schema.StreamID, lines []string) {
	if len(lines) == 0 {
		return
	}
	s.mu.Lock()
	b := s.boxes[boxID]
	if b == nil {
		s.mu.Unlock()
		return
	}
	stream, created := b.registry.Ensure(streamID, schema.StreamPtySession, string(streamID))
	stream.Append(lines...)
	var createdEvent *schema.StreamEvent
	if created {
		createdEvent = &schema.StreamEvent{
			BoxID:    boxID,
			Type:     schema.StreamEventCreated,
			StreamID: streamID,
			Selected: streamID,
		}
	}
	s.mu.Unlock()

	if createdEvent != nil {
		s.emitStreamEvent(*createdEvent)
	}
	s.emitOutput(schema.OutputEvent{BoxID: boxID, StreamID: streamID, Lines: lines})
}

// HandlePtyExit records a pseudo-terminal exit on its stream.
func (s *service) HandlePtyExit(boxID schema.BoxID, streamID schema.StreamID, exitCode int) {
	s.mu.Lock()
	var command string
	var total int
	if b := s.boxes[boxID]; b != nil {
		if stream := b.registry.Get(streamID); stream != nil {
			command = stream.Source
			total = len(stream.lines)
		}
	}
	s.mu.Unlock()

	code := exitCode
	s.completeStream(boxID, streamID, schema.StreamingComplete{
		ExitCode:   &code,
		TotalLines: total,
		Command:    command,
	})
	s.logger.Info("service pty exited", "box", boxID, "stream", streamID, "exit_code", exitCode)
}

// attachStream creates or reuses the execution stream for a dispatch and,
// for background modes, flags the triggering choice as waiting.
func (s *service) attachStream(req schema.DispatchRequest, target schema.BoxID, streamID schema.StreamID, kind schema.StreamKind, label string, markWaiting bool) {
	s.mu.Lock()
	b := s.boxes[target]
	if b == nil {
		s.mu.Unlock()
		return
	}
	stream, created := b.registry.Ensure(streamID, kind, label)
	stream.Label = label
	stream.Source = strings.Join(req.Commands, "\n")
	stream.SourceBox = req.BoxID
	stream.Action = req.ActionID
	stream.complete = nil
	if !created && !req.Append {
		stream.Replace(nil)
	}
	events := []schema.StreamEvent{{
		BoxID:    target,
		Type:     schema.StreamEventSelected,
		StreamID: streamID,
		Selected: streamID,
	}}
	if created {
		events = append([]schema.StreamEvent{{
			BoxID:    target,
			Type:     schema.StreamEventCreated,
			StreamID: streamID,
			Selected: streamID,
		}}, events...)
	}
	var choicesEvent *schema.OutputEvent
	if markWaiting {
		if sb := s.boxes[req.BoxID]; sb != nil {
			if ch := sb.registry.Choices(); ch != nil && ch.SetChoiceWaiting(req.ActionID, true) {
				choicesEvent = &schema.OutputEvent{
					BoxID:    req.BoxID,
					StreamID: ch.ID,
					Lines:    ch.ChoiceLines(),
					Replace:  true,
				}
			}
		}
	}
	s.mu.Unlock()

	for _, event := range events {
		s.emitStreamEvent(event)
	}
	if choicesEvent != nil {
		s.emitOutput(*choicesEvent)
	}
}

// writeStream installs output on a stream and publishes the update.
func (s *service) writeStream(target schema.BoxID, streamID schema.StreamID, lines []string, replace bool) {
	s.mu.Lock()
	b := s.boxes[target]
	if b == nil {
		s.mu.Unlock()
		return
	}
	stream := b.registry.Get(streamID)
	if stream == nil {
		s.mu.Unlock()
		return
	}
	if replace {
		stream.Replace(lines)
	} else {
		stream.Append(lines...)
	}
	s.mu.Unlock()

	s.emitOutput(schema.OutputEvent{BoxID: target, StreamID: streamID, Lines: lines, Replace: replace})
}

// completeStream records the outcome on the stream, appends the failure
// trailer after a nonzero exit, and clears the triggering choice's waiting
// indicator. Prior output is preserved.
func (s *service) completeStream(target schema.BoxID, streamID schema.StreamID, complete schema.StreamingComplete) {
	s.mu.Lock()
	b := s.boxes[target]
	if b == nil {
		s.mu.Unlock()
		return
	}
	stream := b.registry.Get(streamID)
	if stream == nil {
		s.mu.Unlock()
		return
	}
	stream.complete = &complete
	var trailer []string
	if !complete.Success() {
		line := complete.Trailer()
		stream.Append(line)
		trailer = []string{line}
	}
	sourceBox, action := stream.SourceBox, stream.Action
	var choicesEvent *schema.OutputEvent
	if sourceBox != "" && action != "" {
		if sb := s.boxes[sourceBox]; sb != nil {
			if ch := sb.registry.Choices(); ch != nil && ch.SetChoiceWaiting(action, false) {
				choicesEvent = &schema.OutputEvent{
					BoxID:    sourceBox,
					StreamID: ch.ID,
					Lines:    ch.ChoiceLines(),
					Replace:  true,
				}
			}
		}
	}
	selected := b.registry.selected
	s.mu.Unlock()

	if len(trailer) > 0 {
		s.emitOutput(schema.OutputEvent{BoxID: target, StreamID: streamID, Lines: trailer})
	}
	if choicesEvent != nil {
		s.emitOutput(*choicesEvent)
	}
	s.emitStreamEvent(schema.StreamEvent{
		BoxID:    target,
		Type:     schema.StreamEventCompleted,
		StreamID: streamID,
		Selected: selected,
	})
}

func (s *service) clearWaiting(boxID schema.BoxID, actionID schema.ActionID) {
	s.mu.Lock()
	var choicesEvent *schema.OutputEvent
	if b := s.boxes[boxID]; b != nil {
		if ch := b.registry.Choices(); ch != nil && ch.SetChoiceWaiting(actionID, false) {
			choicesEvent = &schema.OutputEvent{
				BoxID:    boxID,
				StreamID: ch.ID,
				Lines:    ch.ChoiceLines(),
				Replace:  true,
			}
		}
	}
	s.mu.Unlock()
	if choicesEvent != nil {
		s.emitOutput(*choicesEvent)
	}
}

// renderLine converts a captured line to its stored representation. Stderr
// lines carry the marker prefix for the renderer to restyle.
func renderLine(line schema.OutputLine) string {
	if line.IsStderr {
		return schema.StderrMarker + line.Content
	}
	return line.Content
}
