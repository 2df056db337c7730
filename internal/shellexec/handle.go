package shellexec

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/boxmux/schema"
	"pkt.systems/pslog"
)

const lineChannelDepth = 256

// Handle exposes the output stream and lifecycle of one spawned command.
type Handle struct {
	cmd     *exec.Cmd
	command string
	lines   chan schema.OutputLine
	done    chan struct{}
	exit    atomic.Int64
	exitSet atomic.Bool
	ctx     context.Context
	log     pslog.Logger
	started time.Time
	wg      sync.WaitGroup
}

func newHandle(ctx context.Context, cmd *exec.Cmd, command string) *Handle {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Handle{
		cmd:     cmd,
		command: command,
		lines:   make(chan schema.OutputLine, lineChannelDepth),
		done:    make(chan struct{}),
		ctx:     ctx,
		log:     pslog.Ctx(ctx),
		started: time.Now(),
	}
}

func (h *Handle) start(stdout, stderr io.Reader) {
	h.wg.Add(2)
	go h.readPipe(stdout, false)
	go h.readPipe(stderr, true)
	go func() {
		h.wg.Wait()
		code := 0
		if err := h.cmd.Wait(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			} else {
				h.log.Warn("shellexec wait failed", "err", err)
				code = -1
			}
		}
		h.exit.Store(int64(code))
		h.exitSet.Store(true)
		close(h.lines)
		close(h.done)
		h.log.Debug("shellexec finished",
			"exit_code", code,
			"duration_ms", time.Since(h.started).Milliseconds(),
		)
	}()
}

// readPipe scans one pipe line by line, tagging each line with a per-pipe
// increasing sequence number and a capture timestamp. It terminates without
// panicking when the pipe closes or the receiver is gone.
func (h *Handle) readPipe(reader io.Reader, isStderr bool) {
	defer h.wg.Done()
	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	var sequence uint64
	for scanner.Scan() {
		sequence++
		line := schema.OutputLine{
			Content:    scanner.Text(),
			Sequence:   sequence,
			CapturedAt: time.Now(),
			IsStderr:   isStderr,
		}
		select {
		case h.lines <- line:
		case <-h.ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		// Recorded, not re-raised: output already delivered stands.
		h.log.Warn("shellexec pipe read failed", "stderr", isStderr, "err", err)
	}
}

// Command returns the shell script this handle is executing.
func (h *Handle) Command() string {
	return h.command
}

// PID returns the child's process id.
func (h *Handle) PID() schema.ProcessID {
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return schema.ProcessID(h.cmd.Process.Pid)
}

// TryNext pops one output line without blocking. Used by the render loop.
func (h *Handle) TryNext() (schema.OutputLine, bool) {
	select {
	case line, ok := <-h.lines:
		if !ok {
			return schema.OutputLine{}, false
		}
		return line, true
	default:
		return schema.OutputLine{}, false
	}
}

// Next blocks up to timeout for one output line. Returns io.EOF once the
// stream is drained and the process has exited. Only called off the render
// thread.
func (h *Handle) Next(ctx context.Context, timeout time.Duration) (schema.OutputLine, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-ctx.Done():
		return schema.OutputLine{}, ctx.Err()
	case <-timer:
		return schema.OutputLine{}, context.DeadlineExceeded
	case line, ok := <-h.lines:
		if !ok {
			return schema.OutputLine{}, io.EOF
		}
		return line, nil
	}
}

// ExitStatus polls process completion without blocking. Callers loop on
// this instead of blocking so their thread stays responsive.
func (h *Handle) ExitStatus() (int, bool) {
	if !h.exitSet.Load() {
		return 0, false
	}
	return int(h.exit.Load()), true
}

// Wait blocks until the process exits and all output is flushed.
func (h *Handle) Wait(ctx context.Context) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-h.done:
		return int(h.exit.Load()), nil
	}
}

// Signal delivers a signal to the child process.
func (h *Handle) Signal(sig schema.ProcessSignal) error {
	if h.cmd == nil || h.cmd.Process == nil {
		return schema.ErrProcessNotStarted
	}
	sysSig, err := signalFor(sig)
	if err != nil {
		return err
	}
	if err := h.cmd.Process.Signal(sysSig); err != nil {
		return fmt.Errorf("signal %s: %w", sig, err)
	}
	return nil
}

// Close terminates the process if still running. Reader goroutines detect
// the closed pipes and exit on their own. Best effort: a process that
// finished between the check and the kill is not an error.
func (h *Handle) Close() error {
	if _, done := h.ExitStatus(); done {
		return nil
	}
	_ = h.Signal(schema.SignalKILL)
	return nil
}
