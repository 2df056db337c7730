package core

import (
	"context"
	"time"

	"pkt.systems/boxmux/internal/shellexec"
	"pkt.systems/boxmux/schema"
)

// Executor starts streaming shell executions.
type Executor interface {
	Spawn(ctx context.Context, req SpawnRequest) (ExecHandle, error)
}

// SpawnRequest describes a streaming invocation. Commands are joined with
// newlines and executed sequentially within one shell.
type SpawnRequest struct {
	Commands   []string
	WorkingDir string
}

// ExecHandle exposes the output stream and lifecycle of one spawned command.
type ExecHandle interface {
	TryNext() (schema.OutputLine, bool)
	Next(ctx context.Context, timeout time.Duration) (schema.OutputLine, error)
	ExitStatus() (int, bool)
	Wait(ctx context.Context) (int, error)
	Signal(sig schema.ProcessSignal) error
	PID() schema.ProcessID
	Command() string
	Close() error
}

// PtyRunner manages pseudo-terminal sessions keyed by box.
type PtyRunner interface {
	Start(ctx context.Context, req schema.PtySpawnRequest) error
	Kill(boxID schema.BoxID) error
	Restart(ctx context.Context, boxID schema.BoxID) error
	Info(boxID schema.BoxID) (schema.PtyProcessInfo, error)
	SendInput(boxID schema.BoxID, data []byte) error
	Resize(boxID schema.BoxID, rows, cols uint16) error
	CloseBox(boxID schema.BoxID)
	CloseAll()
}

// RateLimiter throttles per-box output update batches.
type RateLimiter interface {
	AllowBatchOutput(boxID schema.BoxID, batchSize int) bool
	Forget(boxID schema.BoxID)
}

type shellExecutor struct {
	inner *shellexec.Executor
}

// NewShellExecutor adapts the shellexec streaming executor to the Executor
// interface.
func NewShellExecutor(cfg shellexec.Config) Executor {
	return shellExecutor{inner: shellexec.New(cfg)}
}

func (e shellExecutor) Spawn(ctx context.Context, req SpawnRequest) (ExecHandle, error) {
	handle, err := e.inner.Spawn(ctx, shellexec.SpawnRequest{
		Commands:   req.Commands,
		WorkingDir: req.WorkingDir,
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}
