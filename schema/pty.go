package schema

import "fmt"

// PtyStatus is the lifecycle state of a pseudo-terminal process.
type PtyStatus string

const (
	// PtyStarting indicates the process is being spawned.
	PtyStarting PtyStatus = "Starting"
	// PtyRunning indicates the process is live.
	PtyRunning PtyStatus = "Running"
	// PtyCompleted indicates the process exited zero.
	PtyCompleted PtyStatus = "Completed"
	// PtyFailed indicates the process exited nonzero or errored.
	PtyFailed PtyStatus = "Failed"
)

// Live reports whether the process is expected to be running.
func (s PtyStatus) Live() bool {
	return s == PtyStarting || s == PtyRunning
}

// PtyProcessInfo is the query view of a PTY process record.
type PtyProcessInfo struct {
	BoxID         BoxID
	PID           ProcessID
	Status        PtyStatus
	ExitCode      *int
	Killable      bool
	BufferedLines int
}

// StatusLine formats the info for the control protocol's query reply.
func (i PtyProcessInfo) StatusLine() string {
	status := string(i.Status)
	if i.ExitCode != nil {
		status = fmt.Sprintf("%s (exit %d)", status, *i.ExitCode)
	}
	return fmt.Sprintf("PTY %s: pid=%d status=%s buffered_lines=%d", i.BoxID, i.PID, status, i.BufferedLines)
}
