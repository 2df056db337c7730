// Package boxmux composes the execution service, PTY manager, event bus,
// and control socket into one runnable server.
package boxmux

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/boxmux/core"
	"pkt.systems/boxmux/internal/control"
	"pkt.systems/boxmux/internal/ctlsock"
	"pkt.systems/boxmux/internal/eventbus"
	"pkt.systems/boxmux/internal/logx"
	"pkt.systems/boxmux/internal/ptyproc"
	"pkt.systems/boxmux/internal/ratelimit"
	"pkt.systems/boxmux/schema"
	"pkt.systems/pslog"
)

// Server composes the execution service and its surfaces.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	Service() core.Service
	Events() *eventbus.Bus
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service    schema.ServiceConfig
	PtyShell   string
	SocketPath string
	Boxes      []schema.BoxSpec
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	ServiceDeps core.ServiceDeps
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enablePty    bool
	enableSocket bool
}

// WithPty enables the pseudo-terminal manager.
func WithPty() ServerOption {
	return func(o *serverOptions) { o.enablePty = true }
}

// WithControlSocket enables the unix control socket.
func WithControlSocket() ServerOption {
	return func(o *serverOptions) { o.enableSocket = true }
}

// New constructs a composable boxmux server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	normalized, err := schema.NormalizeServiceConfig(cfg.Service)
	if err != nil {
		return nil, err
	}
	cfg.Service = normalized

	logger := deps.ServiceDeps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	bus := eventbus.New(logger)

	serviceDeps := deps.ServiceDeps
	serviceDeps.Logger = logger
	sinks := make([]core.EventSink, 0, 2)
	if serviceDeps.EventSink != nil {
		sinks = append(sinks, serviceDeps.EventSink)
	}
	sinks = append(sinks, bus)
	if len(sinks) == 1 {
		serviceDeps.EventSink = sinks[0]
	} else {
		serviceDeps.EventSink = eventFanout{sinks: sinks}
	}
	if serviceDeps.Limiter == nil {
		serviceDeps.Limiter = ratelimit.NewLimiter(cfg.Service.OutputRateCapacity, cfg.Service.OutputRatePerSecond)
	}

	var bridge *ptyBridge
	var manager *ptyproc.Manager
	if options.enablePty && serviceDeps.Pty == nil {
		bridge = &ptyBridge{}
		manager = ptyproc.NewManager(ptyproc.Config{
			Shell:          cfg.PtyShell,
			Rows:           uint16(cfg.Service.PtyRows),
			Cols:           uint16(cfg.Service.PtyCols),
			BufferMaxLines: cfg.Service.BufferMaxLines,
		}, logger, bridge.OnOutput, bridge.OnExit)
		serviceDeps.Pty = manager
	}

	service, err := core.NewService(cfg.Service, serviceDeps)
	if err != nil {
		return nil, err
	}
	if bridge != nil {
		bridge.bind(service)
	}

	var socket *ctlsock.Server
	if options.enableSocket {
		if cfg.SocketPath == "" {
			return nil, errors.New("control socket enabled without a path")
		}
		var controller control.PtyController
		if manager != nil {
			controller = manager
		} else if serviceDeps.Pty != nil {
			if c, ok := serviceDeps.Pty.(control.PtyController); ok {
				controller = c
			}
		}
		handler := control.NewHandler(controller, bus, logger)
		socket = ctlsock.NewServer(cfg.SocketPath, handler, logger)
	}

	return &compositeServer{
		cfg:     cfg,
		options: options,
		service: service,
		bus:     bus,
		socket:  socket,
	}, nil
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	service core.Service
	bus     *eventbus.Bus
	socket  *ctlsock.Server

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	logger  pslog.Logger
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"boxes", len(s.cfg.Boxes),
		"pty", s.options.enablePty,
		"socket", s.options.enableSocket,
		"socket_path", s.cfg.SocketPath,
	)

	for _, spec := range s.cfg.Boxes {
		if err := s.service.AddBox(s.ctx, spec); err != nil {
			log.Error("server box add failed", "box", spec.ID, "err", err)
			return err
		}
	}
	if s.socket != nil {
		if err := s.socket.Start(s.ctx); err != nil {
			log.Error("control socket start failed", "err", err)
			return err
		}
	}
	go s.runBoxScripts(s.ctx)
	return nil
}

// runBoxScripts dispatches every box's startup script. Immediate scripts
// run one after another; background modes return as soon as their stream
// is attached.
func (s *compositeServer) runBoxScripts(ctx context.Context) {
	for _, spec := range s.cfg.Boxes {
		if len(spec.Script) == 0 {
			continue
		}
		log := logx.WithBox(ctx, spec.ID)
		_, err := s.service.Dispatch(ctx, schema.DispatchRequest{
			BoxID:      spec.ID,
			ActionID:   schema.ActionID(spec.ID),
			Commands:   spec.Script,
			Mode:       spec.Mode,
			RedirectTo: spec.RedirectTo,
			Append:     spec.Append,
		})
		if err != nil {
			log.Warn("server box script failed", "err", err)
		}
	}
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}
	<-ctx.Done()
	return nil
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	runCtx := s.ctx
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if s.socket != nil {
		if err := s.socket.Close(); err != nil {
			log.Warn("control socket close failed", "err", err)
		}
	}
	if err := s.service.Close(); err != nil {
		log.Warn("server service close failed", "err", err)
	}
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-runCtx.Done():
		log.Info("server stopped")
		return nil
	}
}

func (s *compositeServer) Service() core.Service {
	return s.service
}

func (s *compositeServer) Events() *eventbus.Bus {
	return s.bus
}

// ptyBridge routes PTY manager callbacks into the service. The manager is
// constructed before the service, so the target binds late.
type ptyBridge struct {
	mu  sync.RWMutex
	svc core.Service
}

func (b *ptyBridge) bind(svc core.Service) {
	b.mu.Lock()
	b.svc = svc
	b.mu.Unlock()
}

func (b *ptyBridge) OnOutput(boxID schema.BoxID, streamID schema.StreamID, lines []string) {
	b.mu.RLock()
	svc := b.svc
	b.mu.RUnlock()
	if svc != nil {
		svc.HandlePtyOutput(boxID, streamID, lines)
	}
}

func (b *ptyBridge) OnExit(boxID schema.BoxID, streamID schema.StreamID, exitCode int) {
	b.mu.RLock()
	svc := b.svc
	b.mu.RUnlock()
	if svc != nil {
		svc.HandlePtyExit(boxID, streamID, exitCode)
	}
}
