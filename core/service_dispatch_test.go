package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/boxmux/schema"
)

type recordSink struct {
	mu       sync.Mutex
	outputs  []schema.OutputEvent
	streams  []schema.StreamEvent
	controls []schema.ControlEvent
}

func (r *recordSink) OnOutput(event schema.OutputEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append(r.outputs, event)
}

func (r *recordSink) OnStreamEvent(event schema.StreamEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams = append(r.streams, event)
}

func (r *recordSink) OnControl(event schema.ControlEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controls = append(r.controls, event)
}

func (r *recordSink) waitStreamEvent(t *testing.T, typ schema.StreamEventType, streamID schema.StreamID) schema.StreamEvent {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		for _, event := range r.streams {
			if event.Type == typ && event.StreamID == streamID {
				r.mu.Unlock()
				return event
			}
		}
		r.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s event on %s", typ, streamID)
	return schema.StreamEvent{}
}

func newTestService(t *testing.T, sink EventSink, deps ServiceDeps) Service {
	t.Helper()
	deps.EventSink = sink
	svc, err := NewService(schema.ServiceConfig{}, deps)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestAddBoxEmitsCreatedStreams(t *testing.T) {
	sink := &recordSink{}
	svc := newTestService(t, sink, ServiceDeps{})
	err := svc.AddBox(context.Background(), schema.BoxSpec{
		ID:      "tools",
		Title:   "Tools",
		Content: []string{"pick"},
		Choices: []schema.ChoiceSpec{{ID: "lint", Content: "Lint"}},
	})
	if err != nil {
		t.Fatalf("add box: %v", err)
	}
	if err := svc.AddBox(context.Background(), schema.BoxSpec{ID: "tools"}); err == nil {
		t.Fatalf("expected duplicate box to be rejected")
	}

	sink.waitStreamEvent(t, schema.StreamEventCreated, "tools_content")
	sink.waitStreamEvent(t, schema.StreamEventCreated, "tools_choices")

	tabs, err := svc.BoxStreams(context.Background(), "tools")
	if err != nil {
		t.Fatalf("box streams: %v", err)
	}
	if len(tabs.Order) != 2 || tabs.Selected != "tools_content" {
		t.Fatalf("unexpected tab view %+v", tabs)
	}
}

func TestDispatchImmediateCollectsOutput(t *testing.T) {
	sink := &recordSink{}
	svc := newTestService(t, sink, ServiceDeps{})
	if err := svc.AddBox(context.Background(), schema.BoxSpec{ID: "box1", Content: []string{"x"}}); err != nil {
		t.Fatalf("add box: %v", err)
	}

	resp, err := svc.Dispatch(context.Background(), schema.DispatchRequest{
		BoxID:    "box1",
		ActionID: "greet",
		Commands: []string{"echo one", "echo two"},
		Mode:     schema.ModeImmediate,
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if resp.StreamID != "greet_immediate" {
		t.Fatalf("expected stream id greet_immediate, got %q", resp.StreamID)
	}
	if resp.Complete == nil {
		t.Fatalf("expected inline completion")
	}
	if !resp.Complete.Success() {
		t.Fatalf("expected success, got exit %v", resp.Complete.ExitCode)
	}
	if resp.Complete.TotalLines != 2 {
		t.Fatalf("expected 2 lines, got %d", resp.Complete.TotalLines)
	}

	snap, err := svc.StreamSnapshot(context.Background(), "box1", resp.StreamID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Lines) != 2 || snap.Lines[0] != "one" || snap.Lines[1] != "two" {
		t.Fatalf("unexpected stream lines %v", snap.Lines)
	}
	if !snap.Closeable {
		t.Fatalf("expected execution stream to be closeable")
	}
}

func TestDispatchImmediateFailureAppendsTrailer(t *testing.T) {
	sink := &recordSink{}
	svc := newTestService(t, sink, ServiceDeps{})
	if err := svc.AddBox(context.Background(), schema.BoxSpec{ID: "box1", Content: []string{"x"}}); err != nil {
		t.Fatalf("add box: %v", err)
	}

	resp, err := svc.Dispatch(context.Background(), schema.DispatchRequest{
		BoxID:       "box1",
		ActionID:    "fail",
		Commands:    []string{"echo before", "echo broken 1>&2", "exit 3"},
		Mode:        schema.ModeImmediate,
		ContextNote: "nightly job",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if resp.Complete == nil || resp.Complete.Success() {
		t.Fatalf("expected failed completion, got %+v", resp.Complete)
	}
	if *resp.Complete.ExitCode != 3 {
		t.Fatalf("expected exit 3, got %d", *resp.Complete.ExitCode)
	}

	snap, err := svc.StreamSnapshot(context.Background(), "box1", resp.StreamID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Lines) < 3 {
		t.Fatalf("expected output plus trailer, got %v", snap.Lines)
	}
	trailer := snap.Lines[len(snap.Lines)-1]
	if !strings.HasPrefix(trailer, "[exit 3]") {
		t.Fatalf("expected trailer with exit code, got %q", trailer)
	}
	if !strings.Contains(trailer, "broken") || !strings.Contains(trailer, "(nightly job)") {
		t.Fatalf("expected stderr excerpt and context note in trailer, got %q", trailer)
	}
	found := false
	for _, line := range snap.Lines {
		if line == "before" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected prior output preserved, got %v", snap.Lines)
	}
}

func TestDispatchImmediateMarksStderrLines(t *testing.T) {
	sink := &recordSink{}
	svc := newTestService(t, sink, ServiceDeps{})
	if err := svc.AddBox(context.Background(), schema.BoxSpec{ID: "box1", Content: []string{"x"}}); err != nil {
		t.Fatalf("add box: %v", err)
	}

	resp, err := svc.Dispatch(context.Background(), schema.DispatchRequest{
		BoxID:    "box1",
		ActionID: "warn",
		Commands: []string{"echo oops 1>&2"},
		Mode:     schema.ModeImmediate,
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	snap, err := svc.StreamSnapshot(context.Background(), "box1", resp.StreamID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Lines) != 1 || snap.Lines[0] != schema.StderrMarker+"oops" {
		t.Fatalf("expected marked stderr line, got %q", snap.Lines)
	}
}

func TestDispatchThreadStreamsInBackground(t *testing.T) {
	sink := &recordSink{}
	svc := newTestService(t, sink, ServiceDeps{})
	if err := svc.AddBox(context.Background(), schema.BoxSpec{ID: "box1", Content: []string{"x"}}); err != nil {
		t.Fatalf("add box: %v", err)
	}

	resp, err := svc.Dispatch(context.Background(), schema.DispatchRequest{
		BoxID:    "box1",
		ActionID: "bg",
		Commands: []string{"echo alpha", "echo beta"},
		Mode:     schema.ModeThread,
		Append:   true,
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if resp.StreamID != "bg_thread" {
		t.Fatalf("expected stream id bg_thread, got %q", resp.StreamID)
	}
	if resp.Complete != nil {
		t.Fatalf("background dispatch must not complete inline")
	}

	sink.waitStreamEvent(t, schema.StreamEventCompleted, resp.StreamID)
	snap, err := svc.StreamSnapshot(context.Background(), "box1", resp.StreamID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Lines) != 2 || snap.Lines[0] != "alpha" || snap.Lines[1] != "beta" {
		t.Fatalf("unexpected stream lines %v", snap.Lines)
	}
}

func TestDispatchRedirectAttachesToTargetBox(t *testing.T) {
	sink := &recordSink{}
	svc := newTestService(t, sink, ServiceDeps{})
	for _, id := range []schema.BoxID{"source", "output"} {
		if err := svc.AddBox(context.Background(), schema.BoxSpec{ID: id, Content: []string{"x"}}); err != nil {
			t.Fatalf("add box %s: %v", id, err)
		}
	}

	resp, err := svc.Dispatch(context.Background(), schema.DispatchRequest{
		BoxID:      "source",
		ActionID:   "redir",
		Commands:   []string{"echo routed"},
		Mode:       schema.ModeThread,
		RedirectTo: "output",
		Append:     true,
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if resp.BoxID != "output" {
		t.Fatalf("expected stream attached to output box, got %q", resp.BoxID)
	}
	sink.waitStreamEvent(t, schema.StreamEventCompleted, resp.StreamID)

	snap, err := svc.StreamSnapshot(context.Background(), "output", resp.StreamID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Kind != schema.StreamRedirectedOutput {
		t.Fatalf("expected redirected_output kind, got %q", snap.Kind)
	}
	if len(snap.Lines) != 1 || snap.Lines[0] != "routed" {
		t.Fatalf("unexpected lines %v", snap.Lines)
	}
	if _, err := svc.StreamSnapshot(context.Background(), "source", resp.StreamID); !errors.Is(err, schema.ErrStreamNotFound) {
		t.Fatalf("stream must not exist on source box, got %v", err)
	}
}

func TestDispatchReusesStreamAcrossRedispatch(t *testing.T) {
	sink := &recordSink{}
	svc := newTestService(t, sink, ServiceDeps{})
	if err := svc.AddBox(context.Background(), schema.BoxSpec{ID: "box1", Content: []string{"x"}}); err != nil {
		t.Fatalf("add box: %v", err)
	}

	req := schema.DispatchRequest{
		BoxID:    "box1",
		ActionID: "again",
		Commands: []string{"echo run"},
		Mode:     schema.ModeImmediate,
		Append:   true,
	}
	first, err := svc.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	second, err := svc.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if first.StreamID != second.StreamID {
		t.Fatalf("expected deterministic stream id, got %q then %q", first.StreamID, second.StreamID)
	}

	snap, err := svc.StreamSnapshot(context.Background(), "box1", second.StreamID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Lines) != 2 {
		t.Fatalf("expected appended output across dispatches, got %v", snap.Lines)
	}

	req.Append = false
	third, err := svc.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("third dispatch: %v", err)
	}
	snap, err = svc.StreamSnapshot(context.Background(), "box1", third.StreamID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Lines) != 1 || snap.Lines[0] != "run" {
		t.Fatalf("expected replace to discard prior content, got %v", snap.Lines)
	}
	tabs, err := svc.BoxStreams(context.Background(), "box1")
	if err != nil {
		t.Fatalf("box streams: %v", err)
	}
	if len(tabs.Order) != 2 {
		t.Fatalf("expected one execution stream besides content, got %v", tabs.Order)
	}
}

func TestDispatchValidation(t *testing.T) {
	sink := &recordSink{}
	svc := newTestService(t, sink, ServiceDeps{})
	if err := svc.AddBox(context.Background(), schema.BoxSpec{ID: "box1", Content: []string{"x"}}); err != nil {
		t.Fatalf("add box: %v", err)
	}

	if _, err := svc.Dispatch(context.Background(), schema.DispatchRequest{
		BoxID: "box1", ActionID: "a", Commands: []string{"  "}, Mode: schema.ModeImmediate,
	}); !errors.Is(err, schema.ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
	if _, err := svc.Dispatch(context.Background(), schema.DispatchRequest{
		BoxID: "ghost", ActionID: "a", Commands: []string{"echo hi"}, Mode: schema.ModeImmediate,
	}); !errors.Is(err, schema.ErrBoxNotFound) {
		t.Fatalf("expected ErrBoxNotFound, got %v", err)
	}
	if _, err := svc.Dispatch(context.Background(), schema.DispatchRequest{
		BoxID: "box1", ActionID: "a", Commands: []string{"echo hi"}, Mode: "turbo",
	}); !errors.Is(err, schema.ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	if _, err := svc.Dispatch(context.Background(), schema.DispatchRequest{
		BoxID: "box1", ActionID: "a", Commands: []string{"echo hi"}, Mode: schema.ModePty,
	}); !errors.Is(err, schema.ErrPtyManagerUnavailable) {
		t.Fatalf("expected ErrPtyManagerUnavailable, got %v", err)
	}
}

func TestRemoveStreamMovesSelection(t *testing.T) {
	sink := &recordSink{}
	svc := newTestService(t, sink, ServiceDeps{})
	if err := svc.AddBox(context.Background(), schema.BoxSpec{ID: "box1", Content: []string{"x"}}); err != nil {
		t.Fatalf("add box: %v", err)
	}
	resp, err := svc.Dispatch(context.Background(), schema.DispatchRequest{
		BoxID:    "box1",
		ActionID: "job",
		Commands: []string{"echo done"},
		Mode:     schema.ModeImmediate,
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if err := svc.RemoveStream(context.Background(), "box1", resp.StreamID); err != nil {
		t.Fatalf("remove stream: %v", err)
	}
	tabs, err := svc.BoxStreams(context.Background(), "box1")
	if err != nil {
		t.Fatalf("box streams: %v", err)
	}
	if tabs.Selected != "box1_content" {
		t.Fatalf("expected selection back on content, got %q", tabs.Selected)
	}
	if err := svc.RemoveStream(context.Background(), "box1", "box1_content"); !errors.Is(err, schema.ErrStreamNotCloseable) {
		t.Fatalf("expected ErrStreamNotCloseable, got %v", err)
	}
}

func TestPushExternalCreatesStream(t *testing.T) {
	sink := &recordSink{}
	svc := newTestService(t, sink, ServiceDeps{})
	if err := svc.AddBox(context.Background(), schema.BoxSpec{ID: "box1", Content: []string{"x"}}); err != nil {
		t.Fatalf("add box: %v", err)
	}

	if err := svc.PushExternal(context.Background(), "box1", "", "", []string{"from socket"}, false); err != nil {
		t.Fatalf("push external: %v", err)
	}
	snap, err := svc.StreamSnapshot(context.Background(), "box1", "box1_external")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Kind != schema.StreamExternalSocket || snap.Label != "External" {
		t.Fatalf("unexpected external stream %+v", snap)
	}
	if len(snap.Lines) != 1 || snap.Lines[0] != "from socket" {
		t.Fatalf("unexpected lines %v", snap.Lines)
	}

	if err := svc.PushExternal(context.Background(), "box1", "box1_external", "", []string{"replaced"}, true); err != nil {
		t.Fatalf("push external replace: %v", err)
	}
	snap, err = svc.StreamSnapshot(context.Background(), "box1", "box1_external")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Lines) != 1 || snap.Lines[0] != "replaced" {
		t.Fatalf("expected replaced content, got %v", snap.Lines)
	}
}
