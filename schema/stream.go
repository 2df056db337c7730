package schema

import "time"

// StreamKind tags the origin of a stream (tab) within a box.
type StreamKind string

const (
	// StreamContent is the box's intrinsic content tab.
	StreamContent StreamKind = "content"
	// StreamChoices is the box's intrinsic choice-menu tab.
	StreamChoices StreamKind = "choices"
	// StreamRedirectedOutput holds output redirected from another box.
	StreamRedirectedOutput StreamKind = "redirected_output"
	// StreamChoiceExecution holds output of a dispatched choice.
	StreamChoiceExecution StreamKind = "choice_execution"
	// StreamPtySession holds output of a live PTY session.
	StreamPtySession StreamKind = "pty_session"
	// StreamExternalSocket holds content pushed over the control socket.
	StreamExternalSocket StreamKind = "external_socket"
)

// Closeable reports whether a tab of this kind may be removed by the user.
// Content and choices tabs are box-intrinsic and permanent.
func (k StreamKind) Closeable() bool {
	switch k {
	case StreamRedirectedOutput, StreamChoiceExecution, StreamPtySession, StreamExternalSocket:
		return true
	}
	return false
}

// StreamSnapshot is a transport-friendly view of a stream for the renderer.
type StreamSnapshot struct {
	ID          StreamID
	Kind        StreamKind
	Label       string
	Lines       []string
	Choices     []ChoiceSnapshot
	Source      string
	Selected    bool
	Closeable   bool
	CreatedAt   time.Time
	LastUpdated time.Time
}

// ChoiceSnapshot is a renderer view of a choice entry.
type ChoiceSnapshot struct {
	ID      ActionID
	Content string
	Waiting bool
}

// BoxStreams is the tab-bar view of a box's registry.
type BoxStreams struct {
	BoxID     BoxID
	Order     []StreamID
	Closeable []bool
	Selected  StreamID
}
