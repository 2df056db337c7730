package core

import (
	"errors"
	"testing"

	"pkt.systems/boxmux/schema"
)

func TestRegistryInitializeContentOnly(t *testing.T) {
	reg := newStreamRegistry("box1", 0)
	reg.Initialize(schema.BoxSpec{ID: "box1", Content: []string{"hello"}})

	tabs := reg.Tabs()
	if len(tabs.Order) != 1 {
		t.Fatalf("expected one stream, got %d", len(tabs.Order))
	}
	if tabs.Order[0] != "box1_content" {
		t.Fatalf("expected stream id box1_content, got %q", tabs.Order[0])
	}
	if tabs.Selected != "box1_content" {
		t.Fatalf("expected content stream selected, got %q", tabs.Selected)
	}
	stream := reg.Get("box1_content")
	if stream.Label != "Content" {
		t.Fatalf("expected label Content, got %q", stream.Label)
	}
	if len(stream.lines) != 1 || stream.lines[0] != "hello" {
		t.Fatalf("expected initial content, got %v", stream.lines)
	}
}

func TestRegistryInitializeChoicesOnly(t *testing.T) {
	reg := newStreamRegistry("menu", 0)
	reg.Initialize(schema.BoxSpec{
		ID:      "menu",
		Title:   "Main Menu",
		Choices: []schema.ChoiceSpec{{ID: "build", Content: "Build"}},
	})

	tabs := reg.Tabs()
	if len(tabs.Order) != 1 || tabs.Order[0] != "menu_choices" {
		t.Fatalf("expected single choices stream, got %v", tabs.Order)
	}
	if reg.Get("menu_choices").Label != "Main Menu" {
		t.Fatalf("expected title label, got %q", reg.Get("menu_choices").Label)
	}
}

func TestRegistryInitializeChoicesOnlyFallsBackToBoxID(t *testing.T) {
	reg := newStreamRegistry("menu", 0)
	reg.Initialize(schema.BoxSpec{
		ID:      "menu",
		Choices: []schema.ChoiceSpec{{ID: "build", Content: "Build"}},
	})
	if reg.Get("menu_choices").Label != "menu" {
		t.Fatalf("expected box id label, got %q", reg.Get("menu_choices").Label)
	}
}

func TestRegistryInitializeContentAndChoices(t *testing.T) {
	reg := newStreamRegistry("tools", 0)
	reg.Initialize(schema.BoxSpec{
		ID:      "tools",
		Title:   "Tools",
		Content: []string{"pick one"},
		Choices: []schema.ChoiceSpec{{ID: "lint", Content: "Lint"}},
	})

	tabs := reg.Tabs()
	if len(tabs.Order) != 2 {
		t.Fatalf("expected two streams, got %v", tabs.Order)
	}
	if tabs.Order[0] != "tools_content" || tabs.Order[1] != "tools_choices" {
		t.Fatalf("unexpected stream order %v", tabs.Order)
	}
	if reg.Get("tools_content").Label != "Tools" {
		t.Fatalf("expected content labeled by title, got %q", reg.Get("tools_content").Label)
	}
	if reg.Get("tools_choices").Label != "Choices" {
		t.Fatalf("expected choices labeled Choices, got %q", reg.Get("tools_choices").Label)
	}
	if tabs.Selected != "tools_content" {
		t.Fatalf("expected first stream selected, got %q", tabs.Selected)
	}
}

func TestRegistryEnsureReusesExisting(t *testing.T) {
	reg := newStreamRegistry("box1", 0)
	reg.Initialize(schema.BoxSpec{ID: "box1", Content: []string{"x"}})

	first, created := reg.Ensure("run_thread", schema.StreamChoiceExecution, "Run")
	if !created {
		t.Fatalf("expected stream creation")
	}
	first.Append("output")
	again, created := reg.Ensure("run_thread", schema.StreamChoiceExecution, "Run")
	if created {
		t.Fatalf("expected existing stream to be reused")
	}
	if again != first {
		t.Fatalf("expected identical stream object")
	}
	if reg.Tabs().Selected != "run_thread" {
		t.Fatalf("expected ensure to select the stream")
	}
}

func TestRegistryRemoveMovesSelectionToFirst(t *testing.T) {
	reg := newStreamRegistry("box1", 0)
	reg.Initialize(schema.BoxSpec{ID: "box1", Content: []string{"x"}})
	reg.Ensure("a_thread", schema.StreamChoiceExecution, "A")
	reg.Ensure("b_thread", schema.StreamChoiceExecution, "B")

	if reg.Tabs().Selected != "b_thread" {
		t.Fatalf("expected b_thread selected, got %q", reg.Tabs().Selected)
	}
	if _, err := reg.Remove("b_thread"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	tabs := reg.Tabs()
	if tabs.Selected != tabs.Order[0] {
		t.Fatalf("expected selection to move to first remaining, got %q (order %v)", tabs.Selected, tabs.Order)
	}
	if tabs.Selected != "box1_content" {
		t.Fatalf("expected box1_content selected, got %q", tabs.Selected)
	}
}

func TestRegistryRemoveKeepsSelectionWhenOtherRemoved(t *testing.T) {
	reg := newStreamRegistry("box1", 0)
	reg.Initialize(schema.BoxSpec{ID: "box1", Content: []string{"x"}})
	reg.Ensure("a_thread", schema.StreamChoiceExecution, "A")
	reg.Ensure("b_thread", schema.StreamChoiceExecution, "B")

	if _, err := reg.Remove("a_thread"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if reg.Tabs().Selected != "b_thread" {
		t.Fatalf("expected selection unchanged, got %q", reg.Tabs().Selected)
	}
}

func TestRegistryRemoveRejectsIntrinsicStreams(t *testing.T) {
	reg := newStreamRegistry("box1", 0)
	reg.Initialize(schema.BoxSpec{
		ID:      "box1",
		Content: []string{"x"},
		Choices: []schema.ChoiceSpec{{ID: "a", Content: "A"}},
	})

	if _, err := reg.Remove("box1_content"); !errors.Is(err, schema.ErrStreamNotCloseable) {
		t.Fatalf("expected ErrStreamNotCloseable for content, got %v", err)
	}
	if _, err := reg.Remove("box1_choices"); !errors.Is(err, schema.ErrStreamNotCloseable) {
		t.Fatalf("expected ErrStreamNotCloseable for choices, got %v", err)
	}
	if _, err := reg.Remove("missing"); !errors.Is(err, schema.ErrStreamNotFound) {
		t.Fatalf("expected ErrStreamNotFound, got %v", err)
	}
}

func TestStreamAppendBounded(t *testing.T) {
	s := newStream("id", schema.StreamChoiceExecution, "L", 3)
	s.Append("1", "2", "3", "4", "5")
	if len(s.lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(s.lines))
	}
	if s.lines[0] != "3" || s.lines[2] != "5" {
		t.Fatalf("expected oldest lines dropped, got %v", s.lines)
	}
}
