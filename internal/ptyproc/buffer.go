package ptyproc

import "sync"

// lineBuffer stores bounded scrollback for one PTY session. Oldest lines
// are dropped once the limit is reached.
type lineBuffer struct {
	mu       sync.Mutex
	lines    []string
	partial  string
	maxLines int
}

func newLineBuffer(maxLines int) *lineBuffer {
	if maxLines <= 0 {
		maxLines = 1
	}
	return &lineBuffer{maxLines: maxLines}
}

// Ingest splits raw PTY output into lines, carrying incomplete trailing
// data over to the next call. Returns the completed lines.
func (b *lineBuffer) Ingest(data []byte) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	text := b.partial + string(data)
	b.partial = ""
	var completed []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] != '\n' {
			continue
		}
		line := text[start:i]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		completed = append(completed, line)
		start = i + 1
	}
	b.partial = text[start:]
	b.append(completed)
	return completed
}

// Flush completes any partial trailing line, for process exit.
func (b *lineBuffer) Flush() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.partial == "" {
		return nil
	}
	line := b.partial
	b.partial = ""
	b.append([]string{line})
	return []string{line}
}

func (b *lineBuffer) append(lines []string) {
	if len(lines) == 0 {
		return
	}
	b.lines = append(b.lines, lines...)
	if len(b.lines) > b.maxLines {
		trim := len(b.lines) - b.maxLines
		b.lines = b.lines[trim:]
	}
}

// Len reports the number of buffered lines.
func (b *lineBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Snapshot copies the buffered lines.
func (b *lineBuffer) Snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Reset clears the buffer, for restarts.
func (b *lineBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
	b.partial = ""
}
