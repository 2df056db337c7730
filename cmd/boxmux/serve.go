package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/boxmux"
	"pkt.systems/boxmux/internal/appconfig"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var noPty bool
	var noSocket bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the boxmux server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			boxes, err := cfg.ResolveBoxes()
			if err != nil {
				return err
			}
			serverCfg := boxmux.ServerConfig{
				Service:    cfg.ServiceSchema(),
				PtyShell:   cfg.Pty.Shell,
				SocketPath: cfg.Socket.Path,
				Boxes:      boxes,
			}
			var opts []boxmux.ServerOption
			if !noPty {
				opts = append(opts, boxmux.WithPty())
			}
			if !noSocket {
				opts = append(opts, boxmux.WithControlSocket())
			}
			server, err := boxmux.New(serverCfg, boxmux.ServerDeps{}, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			logger.Info("boxmux serving", "boxes", len(boxes), "socket", cfg.Socket.Path)
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&noPty, "no-pty", false, "disable the PTY session manager")
	cmd.Flags().BoolVar(&noSocket, "no-socket", false, "disable the control socket")
	return cmd
}
