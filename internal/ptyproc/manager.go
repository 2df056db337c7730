// Package ptyproc maintains the registry of live pseudo-terminal processes
// and the kill/restart/query operations the control protocol acts on.
package ptyproc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"pkt.systems/boxmux/schema"
	"pkt.systems/pslog"
)

// Config controls PTY allocation and buffering.
type Config struct {
	Shell          string
	Rows           uint16
	Cols           uint16
	BufferMaxLines int
	Env            []string
}

// OutputFunc receives completed output lines from a PTY session.
type OutputFunc func(boxID schema.BoxID, streamID schema.StreamID, lines []string)

// ExitFunc is notified when a PTY process terminates.
type ExitFunc func(boxID schema.BoxID, streamID schema.StreamID, exitCode int)

// Manager owns one record per live pseudo-terminal process. It is passed
// into the dispatcher and control handler explicitly; there is no ambient
// global registry.
type Manager struct {
	cfg      Config
	onOutput OutputFunc
	onExit   ExitFunc
	log      pslog.Logger

	mu    sync.Mutex
	procs map[schema.BoxID]*process
}

// NewManager constructs a PTY manager. onOutput and onExit may be nil.
func NewManager(cfg Config, logger pslog.Logger, onOutput OutputFunc, onExit ExitFunc) *Manager {
	if cfg.Shell == "" {
		cfg.Shell = "sh"
	}
	if cfg.Rows == 0 {
		cfg.Rows = schema.DefaultPtyRows
	}
	if cfg.Cols == 0 {
		cfg.Cols = schema.DefaultPtyCols
	}
	if cfg.BufferMaxLines <= 0 {
		cfg.BufferMaxLines = schema.DefaultBufferMaxLines
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Manager{
		cfg:      cfg,
		onOutput: onOutput,
		onExit:   onExit,
		log:      logger,
		procs:    make(map[schema.BoxID]*process),
	}
}

// Start spawns the request's script inside a freshly allocated PTY and
// registers its record. A spawn failure returns an error and leaves no
// record behind.
func (m *Manager) Start(ctx context.Context, req schema.PtySpawnRequest) error {
	script := strings.TrimSpace(strings.Join(req.Commands, "\n"))
	if script == "" {
		return schema.ErrEmptyCommand
	}
	log := pslog.Ctx(ctx).With("box", req.BoxID, "stream", req.StreamID)

	proc := &process{
		boxID:      req.BoxID,
		streamID:   req.StreamID,
		commands:   append([]string(nil), req.Commands...),
		workingDir: req.WorkingDir,
		status:     schema.PtyStarting,
		buffer:     newLineBuffer(m.cfg.BufferMaxLines),
	}
	// The Starting record is inserted before spawning so a concurrent
	// Start for the same box fails the live check instead of racing to a
	// second child.
	m.mu.Lock()
	if existing := m.procs[req.BoxID]; existing != nil && existing.Status().Live() {
		m.mu.Unlock()
		return fmt.Errorf("box %s already has a live PTY", req.BoxID)
	}
	m.procs[req.BoxID] = proc
	m.mu.Unlock()

	if err := m.spawn(proc); err != nil {
		m.mu.Lock()
		if m.procs[req.BoxID] == proc {
			delete(m.procs, req.BoxID)
		}
		m.mu.Unlock()
		log.Warn("pty spawn failed", "err", err)
		return err
	}
	log.Info("pty started", "pid", proc.PID(), "command_lines", len(req.Commands))
	return nil
}

// spawn allocates the PTY and starts reader/waiter goroutines for proc.
func (m *Manager) spawn(proc *process) error {
	script := strings.Join(proc.commands, "\n")
	cmd := exec.Command(m.cfg.Shell, "-c", script)
	if proc.workingDir != "" {
		cmd.Dir = proc.workingDir
	}
	cmd.Env = append(os.Environ(), m.cfg.Env...)
	cmd.Env = append(cmd.Env, "TERM=xterm-256color")

	tty, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: m.cfg.Rows, Cols: m.cfg.Cols})
	if err != nil {
		proc.setFailure(nil)
		return fmt.Errorf("allocate pty: %w", err)
	}

	proc.mu.Lock()
	proc.cmd = cmd
	proc.tty = tty
	proc.status = schema.PtyRunning
	proc.killable = true
	proc.exitCode = nil
	proc.mu.Unlock()

	go m.readLoop(proc, tty)
	go m.waitLoop(proc, cmd, tty)
	return nil
}

// readLoop drains the PTY master, fanning completed lines into the bounded
// buffer and the output callback. It exits when the PTY closes.
func (m *Manager) readLoop(proc *process, tty *os.File) {
	buf := make([]byte, 4096)
	for {
		n, err := tty.Read(buf)
		if n > 0 {
			if lines := proc.buffer.Ingest(buf[:n]); len(lines) > 0 && m.onOutput != nil {
				m.onOutput(proc.boxID, proc.streamID, lines)
			}
		}
		if err != nil {
			// EIO is the normal close signal on Linux PTYs.
			if lines := proc.buffer.Flush(); len(lines) > 0 && m.onOutput != nil {
				m.onOutput(proc.boxID, proc.streamID, lines)
			}
			return
		}
	}
}

func (m *Manager) waitLoop(proc *process, cmd *exec.Cmd, tty *os.File) {
	err := cmd.Wait()
	_ = tty.Close()
	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	if !proc.setExit(cmd, code) {
		// A restart already replaced this process; its exit is stale.
		m.log.With("box", proc.boxID).Debug("pty stale exit dropped", "exit_code", code)
		return
	}
	m.log.With("box", proc.boxID).Info("pty exited", "exit_code", code)
	if m.onExit != nil {
		m.onExit(proc.boxID, proc.streamID, code)
	}
}

// Kill terminates the box's PTY process. Permitted only when the record's
// killable flag is set.
func (m *Manager) Kill(boxID schema.BoxID) error {
	proc := m.lookup(boxID)
	if proc == nil {
		return schema.ErrPtyNotFound
	}
	proc.mu.Lock()
	if !proc.killable {
		proc.mu.Unlock()
		return schema.ErrNotKillable
	}
	cmd := proc.cmd
	proc.killable = false
	proc.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return schema.ErrProcessNotStarted
	}
	if err := unix.Kill(cmd.Process.Pid, unix.SIGKILL); err != nil {
		return fmt.Errorf("kill pid %d: %w", cmd.Process.Pid, err)
	}
	m.log.With("box", boxID).Info("pty killed", "pid", cmd.Process.Pid)
	return nil
}

// Restart sets the record to Starting and triggers a fresh spawn reusing
// the original command. Killable is not required.
func (m *Manager) Restart(ctx context.Context, boxID schema.BoxID) error {
	proc := m.lookup(boxID)
	if proc == nil {
		return schema.ErrPtyNotFound
	}
	log := pslog.Ctx(ctx).With("box", boxID)

	proc.mu.Lock()
	cmd := proc.cmd
	live := proc.status.Live()
	proc.status = schema.PtyStarting
	proc.mu.Unlock()

	if live && cmd != nil && cmd.Process != nil {
		_ = unix.Kill(cmd.Process.Pid, unix.SIGKILL)
	}
	proc.buffer.Reset()
	if err := m.spawn(proc); err != nil {
		log.Warn("pty restart failed", "err", err)
		return err
	}
	log.Info("pty restarted", "pid", proc.PID())
	return nil
}

// Info returns the query view of the box's PTY record.
func (m *Manager) Info(boxID schema.BoxID) (schema.PtyProcessInfo, error) {
	proc := m.lookup(boxID)
	if proc == nil {
		return schema.PtyProcessInfo{}, schema.ErrPtyNotFound
	}
	return proc.Info(), nil
}

// SendInput forwards raw bytes (keystrokes) to the PTY.
func (m *Manager) SendInput(boxID schema.BoxID, data []byte) error {
	proc := m.lookup(boxID)
	if proc == nil {
		return schema.ErrPtyNotFound
	}
	proc.mu.Lock()
	tty := proc.tty
	live := proc.status.Live()
	proc.mu.Unlock()
	if tty == nil || !live {
		return schema.ErrProcessNotStarted
	}
	if _, err := tty.Write(data); err != nil {
		return fmt.Errorf("pty write: %w", err)
	}
	return nil
}

// Resize adjusts the PTY's window size to track the box's bounds.
func (m *Manager) Resize(boxID schema.BoxID, rows, cols uint16) error {
	proc := m.lookup(boxID)
	if proc == nil {
		return schema.ErrPtyNotFound
	}
	proc.mu.Lock()
	tty := proc.tty
	proc.mu.Unlock()
	if tty == nil {
		return schema.ErrProcessNotStarted
	}
	if err := pty.Setsize(tty, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return fmt.Errorf("pty resize: %w", err)
	}
	return nil
}

// BufferedLines returns the box's PTY scrollback.
func (m *Manager) BufferedLines(boxID schema.BoxID) ([]string, error) {
	proc := m.lookup(boxID)
	if proc == nil {
		return nil, schema.ErrPtyNotFound
	}
	return proc.buffer.Snapshot(), nil
}

// CloseBox destroys the box's record, killing its process if live.
func (m *Manager) CloseBox(boxID schema.BoxID) {
	m.mu.Lock()
	proc := m.procs[boxID]
	delete(m.procs, boxID)
	m.mu.Unlock()
	if proc == nil {
		return
	}
	proc.mu.Lock()
	cmd := proc.cmd
	live := proc.status.Live()
	proc.mu.Unlock()
	if live && cmd != nil && cmd.Process != nil {
		_ = unix.Kill(cmd.Process.Pid, unix.SIGKILL)
	}
}

// CloseAll tears down every record, for shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	boxes := make([]schema.BoxID, 0, len(m.procs))
	for boxID := range m.procs {
		boxes = append(boxes, boxID)
	}
	m.mu.Unlock()
	for _, boxID := range boxes {
		m.CloseBox(boxID)
	}
}

func (m *Manager) lookup(boxID schema.BoxID) *process {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.procs[boxID]
}
