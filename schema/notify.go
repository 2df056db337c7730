package schema

// OutputEvent represents appended output lines for a stream.
type OutputEvent struct {
	BoxID    BoxID
	StreamID StreamID
	Lines    []string
	Replace  bool
}

// StreamEventType describes stream lifecycle changes.
type StreamEventType string

const (
	// StreamEventCreated indicates a stream was created.
	StreamEventCreated StreamEventType = "created"
	// StreamEventRemoved indicates a stream was removed.
	StreamEventRemoved StreamEventType = "removed"
	// StreamEventSelected indicates a stream became the selected tab.
	StreamEventSelected StreamEventType = "selected"
	// StreamEventCompleted indicates the stream's execution finished.
	StreamEventCompleted StreamEventType = "completed"
)

// StreamEvent represents a change to a box's tab set.
type StreamEvent struct {
	BoxID    BoxID
	Type     StreamEventType
	StreamID StreamID
	Selected StreamID
}

// ControlEvent carries a PTY control response onto the ordinary
// output-update channel so socket clients observe one event stream.
type ControlEvent struct {
	BoxID   BoxID
	Success bool
	Message string
}
