package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "/etc/asterisk-popup/asterisk-popup.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "asterisk-popup",
		Short: "Watch an Asterisk manager interface and announce incoming calls",
		Long: `asterisk-popup keeps an authenticated AMI session open, tracks calls
ringing the monitored extensions and reports them over MQTT, a websocket
feed and an HTTP status endpoint.

Run without a subcommand to start the daemon.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "config file path")

	root.AddCommand(newValidateCmd(&configPath))
	root.AddCommand(newStatusCmd())
	return root
}
