package core

import (
	"strings"

	"pkt.systems/boxmux/schema"
)

// streamRegistry holds the ordered tab set of one box. Insertion order is
// presentation order; exactly one stream is selected whenever the registry
// is non-empty.
type streamRegistry struct {
	boxID    schema.BoxID
	streams  map[schema.StreamID]*stream
	order    []schema.StreamID
	selected schema.StreamID
	maxLines int
}

func newStreamRegistry(boxID schema.BoxID, maxLines int) *streamRegistry {
	return &streamRegistry{
		boxID:    boxID,
		streams:  make(map[schema.StreamID]*stream),
		maxLines: maxLines,
	}
}

// Initialize creates the box's intrinsic tabs from its static definition.
// A box with both content and choices labels the content tab with the box
// title and the choice tab "Choices"; a choices-only box gives its single
// tab the title; anything else gets a content tab labeled "Content".
func (r *streamRegistry) Initialize(spec schema.BoxSpec) {
	title := strings.TrimSpace(spec.Title)
	if title == "" {
		title = string(spec.ID)
	}
	hasContent := len(spec.Content) > 0
	hasChoices := len(spec.Choices) > 0

	switch {
	case hasContent && hasChoices:
		content := r.add(newStream(contentStreamID(spec.ID), schema.StreamContent, title, r.maxLines))
		content.Append(spec.Content...)
		choices := r.add(newStream(choicesStreamID(spec.ID), schema.StreamChoices, "Choices", r.maxLines))
		choices.choices = choiceSnapshots(spec.Choices)
	case hasChoices:
		choices := r.add(newStream(choicesStreamID(spec.ID), schema.StreamChoices, title, r.maxLines))
		choices.choices = choiceSnapshots(spec.Choices)
	default:
		content := r.add(newStream(contentStreamID(spec.ID), schema.StreamContent, "Content", r.maxLines))
		content.Append(spec.Content...)
	}
}

func choiceSnapshots(specs []schema.ChoiceSpec) []schema.ChoiceSnapshot {
	choices := make([]schema.ChoiceSnapshot, 0, len(specs))
	for _, choice := range specs {
		choices = append(choices, schema.ChoiceSnapshot{ID: choice.ID, Content: choice.Content})
	}
	return choices
}

// add registers a stream, appending it to the tab order. The first stream
// becomes selected.
func (r *streamRegistry) add(s *stream) *stream {
	r.streams[s.ID] = s
	r.order = append(r.order, s.ID)
	if r.selected == "" {
		r.selected = s.ID
	}
	return s
}

// Ensure returns the stream with the given id, creating and selecting it
// when absent. An existing stream is reused as-is so re-dispatches land on
// the same tab.
func (r *streamRegistry) Ensure(id schema.StreamID, kind schema.StreamKind, label string) (*stream, bool) {
	if existing, ok := r.streams[id]; ok {
		r.selected = id
		return existing, false
	}
	s := r.add(newStream(id, kind, label, r.maxLines))
	r.selected = id
	return s, true
}

// Get returns the stream with the given id, or nil.
func (r *streamRegistry) Get(id schema.StreamID) *stream {
	return r.streams[id]
}

// Choices returns the box's intrinsic choices stream, or nil.
func (r *streamRegistry) Choices() *stream {
	return r.streams[choicesStreamID(r.boxID)]
}

// Select makes the given stream the active tab.
func (r *streamRegistry) Select(id schema.StreamID) error {
	if _, ok := r.streams[id]; !ok {
		return schema.ErrStreamNotFound
	}
	r.selected = id
	return nil
}

// Remove deletes a closeable stream. If the removed stream was selected,
// selection moves to the first remaining entry in insertion order.
func (r *streamRegistry) Remove(id schema.StreamID) (*stream, error) {
	s, ok := r.streams[id]
	if !ok {
		return nil, schema.ErrStreamNotFound
	}
	if !s.Kind.Closeable() {
		return nil, schema.ErrStreamNotCloseable
	}
	delete(r.streams, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.selected == id {
		r.selected = ""
		if len(r.order) > 0 {
			r.selected = r.order[0]
		}
	}
	return s, nil
}

// Tabs returns the tab-bar view of the registry.
func (r *streamRegistry) Tabs() schema.BoxStreams {
	order := make([]schema.StreamID, len(r.order))
	copy(order, r.order)
	closeable := make([]bool, 0, len(r.order))
	for _, id := range r.order {
		closeable = append(closeable, r.streams[id].Kind.Closeable())
	}
	return schema.BoxStreams{
		BoxID:     r.boxID,
		Order:     order,
		Closeable: closeable,
		Selected:  r.selected,
	}
}
