package schema

// BoxID identifies a box in the layout grid.
type BoxID string

// ActionID identifies a triggerable action (a box script or a choice).
type ActionID string

// StreamID identifies a stream (tab) within a box.
type StreamID string

// ProcessID is the OS pid of a spawned child process.
type ProcessID int

// DefaultBufferMaxLines bounds stream scrollback when no limit is configured.
const DefaultBufferMaxLines = 10000
