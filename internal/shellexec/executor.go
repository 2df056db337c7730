// Package shellexec spawns shell commands and streams their output line by
// line. Each spawn owns two reader goroutines (stdout, stderr) feeding one
// fan-in channel; readers exit silently when their pipe closes or the
// receiver is gone, and never tear down the sibling reader.
package shellexec

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"pkt.systems/boxmux/schema"
	"pkt.systems/pslog"
)

// Config controls how commands are invoked.
type Config struct {
	Shell string
	Env   []string
}

// Executor implements streaming command execution through a shell.
type Executor struct {
	cfg Config
}

// New constructs a streaming executor.
func New(cfg Config) *Executor {
	if cfg.Shell == "" {
		cfg.Shell = "sh"
	}
	return &Executor{cfg: cfg}
}

// SpawnRequest describes a streaming invocation. Commands are joined with
// newlines and executed sequentially within one shell.
type SpawnRequest struct {
	Commands   []string
	WorkingDir string
}

// JoinedCommand returns the shell script the request resolves to.
func (r SpawnRequest) JoinedCommand() string {
	return strings.Join(r.Commands, "\n")
}

// Spawn starts the command and its reader goroutines. A spawn failure
// returns an error immediately: no handle, no readers.
func (e *Executor) Spawn(ctx context.Context, req SpawnRequest) (*Handle, error) {
	script := strings.TrimSpace(req.JoinedCommand())
	if script == "" {
		return nil, schema.ErrEmptyCommand
	}
	log := pslog.Ctx(ctx)

	cmd := exec.Command(e.cfg.Shell, "-c", script)
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}
	if len(e.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), e.cfg.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("capture stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		log.Warn("shellexec spawn failed", "command", script, "err", err)
		return nil, fmt.Errorf("spawn %q: %w", script, err)
	}
	log.Debug("shellexec started", "pid", cmd.Process.Pid, "workdir", req.WorkingDir, "command_len", len(script))

	handle := newHandle(ctx, cmd, script)
	handle.start(stdout, stderr)
	return handle, nil
}

func signalFor(sig schema.ProcessSignal) (syscall.Signal, error) {
	switch sig {
	case schema.SignalHUP:
		return syscall.SIGHUP, nil
	case schema.SignalTERM:
		return syscall.SIGTERM, nil
	case schema.SignalKILL:
		return syscall.SIGKILL, nil
	default:
		return 0, fmt.Errorf("unsupported signal: %s", sig)
	}
}
