package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sweeney/asterisk-popup/internal/config"
)

func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Load and validate the configuration file without connecting to anything.

Examples:
  asterisk-popup validate
  asterisk-popup validate -c ./asterisk-popup.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd.OutOrStdout(), *configPath)
		},
	}
}

func runValidate(out io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	monitor := "all extensions"
	if n := len(cfg.Extensions.Monitor); n > 0 {
		monitor = fmt.Sprintf("%d extension(s)", n)
	}
	mqtt := "disabled"
	if cfg.MQTT.Enabled {
		mqtt = cfg.MQTT.Broker
	}

	fmt.Fprintf(out, "VALID: ami %s, monitoring %s, mqtt %s\n", cfg.AMI.Addr(), monitor, mqtt)
	return nil
}
