package schema

// Dispatch.

// DispatchRequest describes a resolved action to execute. The configuration
// loader supplies Mode pre-resolved through ExecutionModeFromLegacy.
type DispatchRequest struct {
	BoxID    BoxID
	ActionID ActionID
	Commands []string
	Mode     ExecutionMode
	Label    string
	// RedirectTo attaches the created stream to another box's registry.
	RedirectTo BoxID
	// Append concatenates new output onto existing stream content instead
	// of replacing it on each update.
	Append bool
	// ContextNote is included in the failure trailer, if any.
	ContextNote string
}

// DispatchResponse reports the stream the dispatch created.
type DispatchResponse struct {
	BoxID    BoxID
	StreamID StreamID
	// Complete is set for immediate-mode dispatches, which finish inline.
	Complete *StreamingComplete
}

// PTY control protocol. Each request is keyed by box id and answered with a
// (success, message) pair; control failures are values, never panics.

// ControlRequestType identifies a control-protocol request.
type ControlRequestType string

const (
	// ControlKillPty requests termination of a box's PTY process.
	ControlKillPty ControlRequestType = "KillPtyProcess"
	// ControlRestartPty requests a fresh spawn of a box's PTY process.
	ControlRestartPty ControlRequestType = "RestartPtyProcess"
	// ControlQueryPty requests pid/status/buffer info for a box's PTY.
	ControlQueryPty ControlRequestType = "QueryPtyStatus"
)

// ControlRequest is a single control-protocol request.
type ControlRequest struct {
	Type  ControlRequestType `json:"type"`
	BoxID BoxID              `json:"box_id"`
}

// ControlResponse is the uniform control-protocol reply.
type ControlResponse struct {
	BoxID   BoxID  `json:"box_id"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}
