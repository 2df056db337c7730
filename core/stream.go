package core

import (
	"time"

	"pkt.systems/boxmux/schema"
)

// stream tracks the state of a single tab within a box.
type stream struct {
	ID     schema.StreamID
	Kind   schema.StreamKind
	Label  string
	Source string
	// SourceBox and Action point back at the choice that triggered an
	// execution stream, for clearing its waiting indicator on completion.
	SourceBox schema.BoxID
	Action    schema.ActionID

	lines     []string
	choices   []schema.ChoiceSnapshot
	maxLines  int
	createdAt time.Time
	updatedAt time.Time
	complete  *schema.StreamingComplete
}

func newStream(id schema.StreamID, kind schema.StreamKind, label string, maxLines int) *stream {
	if maxLines <= 0 {
		maxLines = schema.DefaultBufferMaxLines
	}
	now := time.Now()
	return &stream{
		ID:        id,
		Kind:      kind,
		Label:     label,
		maxLines:  maxLines,
		createdAt: now,
		updatedAt: now,
	}
}

// Append adds lines to the stream, dropping the oldest beyond the limit.
func (s *stream) Append(lines ...string) {
	if len(lines) == 0 {
		return
	}
	s.lines = append(s.lines, lines...)
	if len(s.lines) > s.maxLines {
		trim := len(s.lines) - s.maxLines
		s.lines = s.lines[trim:]
	}
	s.updatedAt = time.Now()
}

// Replace discards prior content and installs the given lines.
func (s *stream) Replace(lines []string) {
	s.lines = append(s.lines[:0:0], lines...)
	if len(s.lines) > s.maxLines {
		trim := len(s.lines) - s.maxLines
		s.lines = s.lines[trim:]
	}
	s.updatedAt = time.Now()
}

// SetChoiceWaiting flags or clears one choice's waiting indicator. Reports
// whether the choice was found.
func (s *stream) SetChoiceWaiting(actionID schema.ActionID, waiting bool) bool {
	for i := range s.choices {
		if s.choices[i].ID == actionID {
			s.choices[i].Waiting = waiting
			s.updatedAt = time.Now()
			return true
		}
	}
	return false
}

// ChoiceLines renders the choice menu for output events. Waiting choices
// carry a trailing ellipsis.
func (s *stream) ChoiceLines() []string {
	lines := make([]string, 0, len(s.choices))
	for _, choice := range s.choices {
		text := choice.Content
		if choice.Waiting {
			text += "..."
		}
		lines = append(lines, text)
	}
	return lines
}

// Snapshot returns a transport-friendly view of the stream.
func (s *stream) Snapshot(selected bool) schema.StreamSnapshot {
	lines := make([]string, len(s.lines))
	copy(lines, s.lines)
	choices := make([]schema.ChoiceSnapshot, len(s.choices))
	copy(choices, s.choices)
	return schema.StreamSnapshot{
		ID:          s.ID,
		Kind:        s.Kind,
		Label:       s.Label,
		Lines:       lines,
		Choices:     choices,
		Source:      s.Source,
		Selected:    selected,
		Closeable:   s.Kind.Closeable(),
		CreatedAt:   s.createdAt,
		LastUpdated: s.updatedAt,
	}
}
