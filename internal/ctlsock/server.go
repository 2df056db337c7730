// Package ctlsock serves the PTY control protocol over a unix domain
// socket. Requests and replies are JSON values, one per line, answered on
// the same connection.
package ctlsock

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"pkt.systems/boxmux/internal/control"
	"pkt.systems/boxmux/schema"
	"pkt.systems/pslog"
)

const maxRequestBytes = 64 * 1024

// Server accepts control connections on a unix socket.
type Server struct {
	path    string
	handler *control.Handler
	logger  pslog.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	wg       sync.WaitGroup
}

// NewServer constructs a control socket server. The socket is not bound
// until Start.
func NewServer(path string, handler *control.Handler, logger pslog.Logger) *Server {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Server{path: path, handler: handler, logger: logger}
}

// Start binds the socket and begins accepting connections. A stale socket
// file from a previous run is removed first.
func (s *Server) Start(ctx context.Context) error {
	if s.handler == nil {
		return errors.New("missing control handler")
	}
	if s.path == "" {
		return errors.New("missing socket path")
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.path, err)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = listener.Close()
		return errors.New("server closed")
	}
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("control socket listening", "path", s.path)
	s.wg.Add(1)
	go s.acceptLoop(ctx, listener)
	return nil
}

// Path returns the socket path the server binds.
func (s *Server) Path() string {
	return s.path
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.logger.Warn("control socket accept failed", "err", err)
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// serveConn answers requests line by line until the client disconnects.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	encoder := json.NewEncoder(conn)
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxRequestBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req schema.ControlRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("control socket bad request", "err", err)
			_ = encoder.Encode(schema.ControlResponse{
				Success: false,
				Message: "invalid request: " + err.Error(),
			})
			continue
		}
		resp := s.handler.Handle(ctx, req)
		if err := encoder.Encode(resp); err != nil {
			s.logger.Warn("control socket write failed", "err", err)
			return
		}
	}
}

// Close stops accepting connections and removes the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	s.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	s.wg.Wait()
	_ = os.Remove(s.path)
	return err
}
