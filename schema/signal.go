package schema

// ProcessSignal indicates which signal to send to a child process.
type ProcessSignal string

const (
	// SignalHUP requests a hangup signal.
	SignalHUP ProcessSignal = "HUP"
	// SignalTERM requests a termination signal.
	SignalTERM ProcessSignal = "TERM"
	// SignalKILL requests an immediate kill signal.
	SignalKILL ProcessSignal = "KILL"
)
