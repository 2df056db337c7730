package schema

import (
	"fmt"
	"strings"
	"time"
)

// StderrMarker prefixes stream lines that originated from stderr. The
// renderer strips it and may restyle the line.
const StderrMarker = "\x1f"

// OutputLine is one captured line of child-process output.
type OutputLine struct {
	Content    string
	Sequence   uint64
	CapturedAt time.Time
	IsStderr   bool
}

// StreamingComplete summarizes a finished streaming execution.
// Immutable once constructed.
type StreamingComplete struct {
	ExitCode      *int
	TotalLines    int
	Command       string
	StderrExcerpt string
	ContextNote   string
}

// Success reports whether the process exited zero.
func (c StreamingComplete) Success() bool {
	return c.ExitCode != nil && *c.ExitCode == 0
}

// Trailer renders the single failure line appended to a stream after a
// nonzero exit. Prior output is never overwritten.
func (c StreamingComplete) Trailer() string {
	code := "unknown"
	if c.ExitCode != nil {
		code = fmt.Sprintf("%d", *c.ExitCode)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[exit %s] %s", code, c.Command)
	if excerpt := strings.TrimSpace(c.StderrExcerpt); excerpt != "" {
		fmt.Fprintf(&b, ": %s", excerpt)
	}
	if note := strings.TrimSpace(c.ContextNote); note != "" {
		fmt.Fprintf(&b, " (%s)", note)
	}
	return b.String()
}
