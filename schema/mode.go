package schema

// ExecutionMode selects how a triggered command runs.
type ExecutionMode string

const (
	// ModeImmediate runs the command synchronously on the calling thread.
	ModeImmediate ExecutionMode = "immediate"
	// ModeThread runs the command on a background reader pair.
	ModeThread ExecutionMode = "thread"
	// ModePty runs the command inside a pseudo-terminal.
	ModePty ExecutionMode = "pty"
)

// DefaultExecutionMode is used when configuration specifies nothing.
const DefaultExecutionMode = ModeImmediate

// ExecutionModeFromLegacy resolves the retired thread/pty boolean pair.
// Pty wins over thread; both false means immediate. Legacy fields are
// consulted only at the configuration boundary, never after.
func ExecutionModeFromLegacy(thread, pty bool) ExecutionMode {
	switch {
	case pty:
		return ModePty
	case thread:
		return ModeThread
	default:
		return ModeImmediate
	}
}

// IsBackground reports whether the mode runs off the calling thread.
func (m ExecutionMode) IsBackground() bool {
	return m == ModeThread || m == ModePty
}

// IsRealtime reports whether the mode supports bidirectional interaction.
func (m ExecutionMode) IsRealtime() bool {
	return m == ModePty
}

// CreatesStreams reports whether dispatching in this mode creates a stream.
// Every mode creates streams; no execution path bypasses the registry.
func (m ExecutionMode) CreatesStreams() bool {
	return true
}

// StreamSuffix returns the stable suffix used to build stream identifiers.
func (m ExecutionMode) StreamSuffix() string {
	switch m {
	case ModeThread:
		return "thread"
	case ModePty:
		return "pty"
	default:
		return "immediate"
	}
}

// Description returns a human-readable summary of the mode.
func (m ExecutionMode) Description() string {
	switch m {
	case ModeThread:
		return "Background execution in thread pool"
	case ModePty:
		return "Real-time PTY execution with continuous output"
	default:
		return "Synchronous execution on UI thread"
	}
}

// Valid reports whether m is one of the three known modes.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeImmediate, ModeThread, ModePty:
		return true
	}
	return false
}
