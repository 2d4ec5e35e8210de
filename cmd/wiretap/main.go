// Command wiretap records raw AMI traffic for use as test fixtures.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wiretap",
		Short:         "Capture, sanitize and inspect AMI traffic",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCaptureCmd(), newSanitizeCmd(), newEventsCmd())
	return root
}

func newCaptureCmd() *cobra.Command {
	var opts captureOptions
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Log in and stream every byte the manager sends to a file",
		Long: `Log in to the manager and write the greeting, the login response and all
following traffic to <outdir>/<timestamp>.raw until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.secret == "" {
				return fmt.Errorf("--secret is required")
			}
			return capture(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "127.0.0.1", "Asterisk AMI host")
	cmd.Flags().IntVar(&opts.port, "port", 5038, "Asterisk AMI port")
	cmd.Flags().StringVar(&opts.user, "user", "admin", "AMI username")
	cmd.Flags().StringVar(&opts.secret, "secret", "", "AMI secret")
	cmd.Flags().StringVar(&opts.outDir, "outdir", "testdata/captures", "output directory for captures")
	return cmd
}

func newSanitizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sanitize <file>...",
		Short: "Redact secrets, addresses and phone numbers in captures (keeps .bak)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := sanitizeFile(path); err != nil {
					return fmt.Errorf("sanitize %s: %w", path, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "sanitized:", path)
			}
			return nil
		},
	}
}

func newEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events <file>",
		Short: "List the events in a capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return listEvents(cmd.OutOrStdout(), f)
		},
	}
}
