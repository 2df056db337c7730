package schema

import "errors"

var (
	// ErrBoxNotFound indicates a requested box could not be found.
	ErrBoxNotFound = errors.New("box not found")
	// ErrStreamNotFound indicates a requested stream could not be found.
	ErrStreamNotFound = errors.New("stream not found")
	// ErrStreamNotCloseable indicates the stream is a permanent tab.
	ErrStreamNotCloseable = errors.New("stream is not closeable")
	// ErrEmptyCommand indicates a dispatch carried no command lines.
	ErrEmptyCommand = errors.New("empty command")
	// ErrInvalidMode indicates an unknown execution mode tag.
	ErrInvalidMode = errors.New("invalid execution mode")
	// ErrExecutorUnavailable indicates no streaming executor is configured.
	ErrExecutorUnavailable = errors.New("executor not configured")
	// ErrPtyNotFound indicates no PTY record exists for the box.
	ErrPtyNotFound = errors.New("PTY not found")
	// ErrPtyManagerUnavailable indicates the PTY registry is not initialized.
	ErrPtyManagerUnavailable = errors.New("PTY manager not available")
	// ErrNotKillable indicates the PTY process cannot be killed.
	ErrNotKillable = errors.New("process cannot be killed")
	// ErrProcessNotStarted indicates no live process backs the record.
	ErrProcessNotStarted = errors.New("process not started")
)
