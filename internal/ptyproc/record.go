package ptyproc

import (
	"os"
	"os/exec"
	"sync"

	"pkt.systems/boxmux/schema"
)

// process is one live (or finished) PTY session record.
type process struct {
	boxID      schema.BoxID
	streamID   schema.StreamID
	commands   []string
	workingDir string
	buffer     *lineBuffer

	mu       sync.Mutex
	cmd      *exec.Cmd
	tty      *os.File
	status   schema.PtyStatus
	exitCode *int
	killable bool
}

func (p *process) Status() schema.PtyStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *process) PID() schema.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return schema.ProcessID(p.cmd.Process.Pid)
}

// setExit records an observed exit and reports whether it was applied.
// A restart replaces p.cmd, so an exit reported through an older cmd is
// stale and must not touch the record; the Starting check covers the
// restart window before the replacement cmd is installed.
func (p *process) setExit(cmd *exec.Cmd, code int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cmd != p.cmd || p.status == schema.PtyStarting {
		return false
	}
	p.exitCode = &code
	p.killable = false
	if code == 0 {
		p.status = schema.PtyCompleted
	} else {
		p.status = schema.PtyFailed
	}
	return true
}

func (p *process) setFailure(code *int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = schema.PtyFailed
	p.exitCode = code
	p.killable = false
}

// Info snapshots the record for the control protocol.
func (p *process) Info() schema.PtyProcessInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	var pid schema.ProcessID
	if p.cmd != nil && p.cmd.Process != nil {
		pid = schema.ProcessID(p.cmd.Process.Pid)
	}
	var exit *int
	if p.exitCode != nil {
		code := *p.exitCode
		exit = &code
	}
	return schema.PtyProcessInfo{
		BoxID:         p.boxID,
		PID:           pid,
		Status:        p.status,
		ExitCode:      exit,
		Killable:      p.killable,
		BufferedLines: p.buffer.Len(),
	}
}
