package boxmux

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkt.systems/boxmux/internal/ctlsock"
	"pkt.systems/boxmux/internal/eventbus"
	"pkt.systems/boxmux/schema"
)

func startTestServer(t *testing.T, cfg ServerConfig, opts ...ServerOption) Server {
	t.Helper()
	server, err := New(cfg, ServerDeps{}, opts...)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(stopCtx)
	})
	return server
}

func waitForEvent(t *testing.T, events <-chan eventbus.Event, match func(eventbus.Event) bool) eventbus.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event := <-events:
			if match(event) {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event")
		}
	}
}

func TestServerRunsBoxScriptsOnStart(t *testing.T) {
	server, err := New(ServerConfig{
		Boxes: []schema.BoxSpec{{
			ID:     "status",
			Title:  "Status",
			Script: []string{"echo ready"},
			Mode:   schema.ModeThread,
			Append: true,
		}},
	}, ServerDeps{})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	events, cancel := server.Events().Subscribe()
	defer cancel()
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer func() { _ = server.Stop(context.Background()) }()

	waitForEvent(t, events, func(event eventbus.Event) bool {
		return event.Type == eventbus.EventStream &&
			event.Stream.Type == schema.StreamEventCompleted &&
			event.Stream.StreamID == "status_thread"
	})
	snap, err := server.Service().StreamSnapshot(context.Background(), "status", "status_thread")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Lines) != 1 || snap.Lines[0] != "ready" {
		t.Fatalf("unexpected script output %v", snap.Lines)
	}
}

func TestServerControlSocketAnswersQueries(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "boxmux.sock")
	server := startTestServer(t, ServerConfig{
		SocketPath: socketPath,
		Boxes:      []schema.BoxSpec{{ID: "main", Content: []string{"hello"}}},
	}, WithPty(), WithControlSocket())
	_ = server

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := ctlsock.Send(ctx, socketPath, schema.ControlRequest{
		Type:  schema.ControlQueryPty,
		BoxID: "ghost",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Success || !strings.Contains(resp.Message, "PTY not found") {
		t.Fatalf("unexpected reply %+v", resp)
	}
}

func TestServerControlSocketWithoutPtyManager(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "boxmux.sock")
	startTestServer(t, ServerConfig{SocketPath: socketPath}, WithControlSocket())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := ctlsock.Send(ctx, socketPath, schema.ControlRequest{
		Type:  schema.ControlKillPty,
		BoxID: "main",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Success || !strings.Contains(resp.Message, "PTY manager not available") {
		t.Fatalf("unexpected reply %+v", resp)
	}
}

func TestServerRequiresSocketPathWhenEnabled(t *testing.T) {
	if _, err := New(ServerConfig{}, ServerDeps{}, WithControlSocket()); err == nil {
		t.Fatalf("expected error for missing socket path")
	}
}

func TestServerStartRejectsSecondStart(t *testing.T) {
	server := startTestServer(t, ServerConfig{})
	if err := server.Start(context.Background()); err == nil {
		t.Fatalf("expected second start to fail")
	}
}
