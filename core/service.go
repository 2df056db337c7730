package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"pkt.systems/boxmux/internal/logx"
	"pkt.systems/boxmux/internal/ratelimit"
	"pkt.systems/boxmux/internal/shellexec"
	"pkt.systems/boxmux/schema"
	"pkt.systems/pslog"
)

// service implements the core service behavior.
type service struct {
	cfg     schema.ServiceConfig
	exec    Executor
	pty     PtyRunner
	limiter RateLimiter
	sink    EventSink
	logger  pslog.Logger
	mu      sync.Mutex
	boxes   map[schema.BoxID]*box
	order   []schema.BoxID
}

// NewService constructs the core service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if deps.Executor == nil {
		deps.Executor = NewShellExecutor(shellexec.Config{})
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewLimiter(cfg.OutputRateCapacity, cfg.OutputRatePerSecond)
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &service{
		cfg:     cfg,
		exec:    deps.Executor,
		pty:     deps.Pty,
		limiter: deps.Limiter,
		sink:    deps.EventSink,
		logger:  logger,
		boxes:   make(map[schema.BoxID]*box),
	}, nil
}

func (s *service) AddBox(ctx context.Context, spec schema.BoxSpec) error {
	if strings.TrimSpace(string(spec.ID)) == "" {
		return errors.New("missing box id")
	}
	log := logx.WithBox(ctx, spec.ID)

	s.mu.Lock()
	if _, exists := s.boxes[spec.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("box %s already registered", spec.ID)
	}
	registry := newStreamRegistry(spec.ID, s.cfg.BufferMaxLines)
	registry.Initialize(spec)
	s.boxes[spec.ID] = &box{Spec: spec, registry: registry}
	s.order = append(s.order, spec.ID)
	tabs := registry.Tabs()
	events := make([]schema.StreamEvent, 0, len(tabs.Order))
	for _, id := range tabs.Order {
		events = append(events, schema.StreamEvent{
			BoxID:    spec.ID,
			Type:     schema.StreamEventCreated,
			StreamID: id,
			Selected: tabs.Selected,
		})
	}
	s.mu.Unlock()

	for _, event := range events {
		s.emitStreamEvent(event)
	}
	log.Info("service box added", "streams", len(tabs.Order), "choices", len(spec.Choices))
	return nil
}

func (s *service) ActivateChoice(ctx context.Context, boxID schema.BoxID, actionID schema.ActionID) (schema.DispatchResponse, error) {
	log := logx.WithBox(ctx, boxID)

	s.mu.Lock()
	b := s.boxes[boxID]
	if b == nil {
		s.mu.Unlock()
		log.Warn("service choice activate failed", "err", schema.ErrBoxNotFound)
		return schema.DispatchResponse{}, schema.ErrBoxNotFound
	}
	var choice *schema.ChoiceSpec
	for i := range b.Spec.Choices {
		if b.Spec.Choices[i].ID == actionID {
			choice = &b.Spec.Choices[i]
			break
		}
	}
	s.mu.Unlock()
	if choice == nil {
		log.Warn("service choice activate failed", "action", actionID, "err", schema.ErrStreamNotFound)
		return schema.DispatchResponse{}, fmt.Errorf("choice %s: %w", actionID, schema.ErrStreamNotFound)
	}

	mode := choice.Mode
	if mode == "" {
		mode = schema.DefaultExecutionMode
	}
	return s.Dispatch(ctx, schema.DispatchRequest{
		BoxID:      boxID,
		ActionID:   choice.ID,
		Commands:   choice.Commands,
		Mode:       mode,
		Label:      choice.Content,
		RedirectTo: choice.RedirectTo,
		Append:     choice.Append,
	})
}

func (s *service) SelectStream(ctx context.Context, boxID schema.BoxID, streamID schema.StreamID) error {
	log := logx.WithBoxStream(ctx, boxID, streamID)

	s.mu.Lock()
	b := s.boxes[boxID]
	if b == nil {
		s.mu.Unlock()
		log.Warn("service stream select failed", "err", schema.ErrBoxNotFound)
		return schema.ErrBoxNotFound
	}
	if err := b.registry.Select(streamID); err != nil {
		s.mu.Unlock()
		log.Warn("service stream select failed", "err", err)
		return err
	}
	event := schema.StreamEvent{
		BoxID:    boxID,
		Type:     schema.StreamEventSelected,
		StreamID: streamID,
		Selected: streamID,
	}
	s.mu.Unlock()

	s.emitStreamEvent(event)
	log.Debug("service stream selected")
	return nil
}

func (s *service) RemoveStream(ctx context.Context, boxID schema.BoxID, streamID schema.StreamID) error {
	log := logx.WithBoxStream(ctx, boxID, streamID)

	s.mu.Lock()
	b := s.boxes[boxID]
	if b == nil {
		s.mu.Unlock()
		log.Warn("service stream remove failed", "err", schema.ErrBoxNotFound)
		return schema.ErrBoxNotFound
	}
	removed, err := b.registry.Remove(streamID)
	if err != nil {
		s.mu.Unlock()
		log.Warn("service stream remove failed", "err", err)
		return err
	}
	selected := b.registry.Tabs().Selected
	event := schema.StreamEvent{
		BoxID:    boxID,
		Type:     schema.StreamEventRemoved,
		StreamID: streamID,
		Selected: selected,
	}
	s.mu.Unlock()

	if removed.Kind == schema.StreamPtySession && s.pty != nil {
		s.pty.CloseBox(boxID)
	}
	s.emitStreamEvent(event)
	log.Info("service stream removed", "selected", selected)
	return nil
}

func (s *service) BoxStreams(ctx context.Context, boxID schema.BoxID) (schema.BoxStreams, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.boxes[boxID]
	if b == nil {
		return schema.BoxStreams{}, schema.ErrBoxNotFound
	}
	return b.registry.Tabs(), nil
}

func (s *service) StreamSnapshot(ctx context.Context, boxID schema.BoxID, streamID schema.StreamID) (schema.StreamSnapshot, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.boxes[boxID]
	if b == nil {
		return schema.StreamSnapshot{}, schema.ErrBoxNotFound
	}
	stream := b.registry.Get(streamID)
	if stream == nil {
		return schema.StreamSnapshot{}, schema.ErrStreamNotFound
	}
	return stream.Snapshot(streamID == b.registry.Tabs().Selected), nil
}

// PushExternal appends content delivered over the control socket to a
// dedicated external stream on the box.
func (s *service) PushExternal(ctx context.Context, boxID schema.BoxID, streamID schema.StreamID, label string, lines []string, replace bool) error {
	log := logx.WithBoxStream(ctx, boxID, streamID)

	s.mu.Lock()
	b := s.boxes[boxID]
	if b == nil {
		s.mu.Unlock()
		log.Warn("service external push failed", "err", schema.ErrBoxNotFound)
		return schema.ErrBoxNotFound
	}
	if streamID == "" {
		streamID = schema.StreamID(fmt.Sprintf("%s_external", boxID))
	}
	if label == "" {
		label = "External"
	}
	stream, created := b.registry.Ensure(streamID, schema.StreamExternalSocket, label)
	if replace {
		stream.Replace(lines)
	} else {
		stream.Append(lines...)
	}
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
	s.emitOutput(schema.OutputEvent{BoxID: boxID, StreamID: streamID, Lines: lines, Replace: replace})
	log.Debug("service external push", "lines", len(lines), "replace", replace)
	return nil
}

func (s *service) SendPtyInput(ctx context.Context, boxID schema.BoxID, data []byte) error {
	_ = ctx
	if s.pty == nil {
		return schema.ErrPtyManagerUnavailable
	}
	return s.pty.SendInput(boxID, data)
}

func (s *service) ResizePty(ctx context.Context, boxID schema.BoxID, rows, cols uint16) error {
	_ = ctx
	if s.pty == nil {
		return schema.ErrPtyManagerUnavailable
	}
	return s.pty.Resize(boxID, rows, cols)
}

func (s *service) Close() error {
	if s.pty != nil {
		s.pty.CloseAll()
	}
	return nil
}

func (s *service) emitOutput(event schema.OutputEvent) {
	if s.sink == nil {
		return
	}
	s.sink.OnOutput(event)
}

func (s *service) emitStreamEvent(event schema.StreamEvent) {
	if s.sink == nil {
		return
	}
	s.sink.OnStreamEvent(event)
}
