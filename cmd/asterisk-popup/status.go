package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/asterisk-popup/internal/client"
	"github.com/sweeney/asterisk-popup/internal/tracker"
)

func newStatusCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running daemon",
		Long: `Query a running daemon's status server for the AMI connection state and
the calls it is tracking.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runStatus(ctx, cmd.OutOrStdout(), "http://"+addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8088", "status server address")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func runStatus(ctx context.Context, out io.Writer, baseURL string) error {
	var st client.Status
	if err := getJSON(ctx, baseURL+"/status", &st); err != nil {
		return fmt.Errorf("daemon is not running or status server is unreachable: %w", err)
	}
	var calls []tracker.Call
	if err := getJSON(ctx, baseURL+"/calls", &calls); err != nil {
		return fmt.Errorf("querying calls: %w", err)
	}

	connection := "disconnected"
	if st.Connected {
		connection = "connected"
	}
	fmt.Fprintf(out, "AMI:        %s (%s) %s\n", connection, st.State, st.Addr)
	fmt.Fprintf(out, "Reconnects: %d", st.ReconnectAttempts)
	if st.Exhausted {
		fmt.Fprint(out, " (gave up, waiting for configuration change)")
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Calls:      %d\n", len(calls))
	for _, c := range calls {
		fmt.Fprintf(out, "  %-9s %s %s <%s> -> %s\n", c.Status, c.Channel, c.CallerIDName, c.CallerIDNum, c.Extension)
	}
	return nil
}

func getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
