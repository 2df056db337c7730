package core

import "pkt.systems/pslog"

// ServiceDeps captures optional dependencies for the core service.
type ServiceDeps struct {
	Executor  Executor
	Pty       PtyRunner
	Limiter   RateLimiter
	EventSink EventSink
	Logger    pslog.Logger
}
