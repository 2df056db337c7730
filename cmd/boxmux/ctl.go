package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/boxmux/internal/appconfig"
	"pkt.systems/boxmux/internal/ctlsock"
	"pkt.systems/boxmux/schema"
)

func newCtlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Send control requests to a running boxmux server",
	}
	cmd.AddCommand(newCtlRequestCmd("kill", "Kill the PTY process for a box", schema.ControlKillPty))
	cmd.AddCommand(newCtlRequestCmd("restart", "Restart the PTY process for a box", schema.ControlRestartPty))
	cmd.AddCommand(newCtlRequestCmd("status", "Query PTY status for a box", schema.ControlQueryPty))
	return cmd
}

func newCtlRequestCmd(use, short string, reqType schema.ControlRequestType) *cobra.Command {
	var cfgPath string
	var socketPath string
	cmd := &cobra.Command{
		Use:   use + " <box-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := socketPath
			if path == "" {
				cfg, err := appconfig.Load(cfgPath)
				if err != nil {
					return err
				}
				path = cfg.Socket.Path
			}
			resp, err := ctlsock.Send(cmd.Context(), path, schema.ControlRequest{
				Type:  reqType,
				BoxID: schema.BoxID(args[0]),
			})
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), resp.Message); err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("control request failed for box %s", resp.BoxID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&socketPath, "socket", "s", "", "control socket path (overrides config)")
	return cmd
}
