package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fitroom/fitroom/internal/config"
	"github.com/fitroom/fitroom/internal/logging"
	"github.com/fitroom/fitroom/internal/stylist"
)

func newCheckCmd() *cobra.Command {
	var apiBase string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe the recommendation backend once and report its health",
		Example: `  # Probe the configured backend
  fitroom check

  # Probe a specific backend
  fitroom check --api-base http://10.0.0.5:8000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if apiBase == "" {
				apiBase = cfg.APIBase
			}

			logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer cleanup()

			client := stylist.NewClient(logger)
			monitor := stylist.NewMonitor(client, func() string { return apiBase }, 0, logger)
			status := monitor.Probe(cmd.Context())

			out := cmd.OutOrStdout()
			switch status.State {
			case stylist.BackendOK:
				fmt.Fprintf(out, "backend ok: %s (device=%s, catalog_size=%d)\n", apiBase, status.Device, status.CatalogSize)
				return nil
			case stylist.BackendDegraded:
				fmt.Fprintf(out, "backend degraded: %s\n", status.Message)
				return errors.New("backend degraded")
			default:
				fmt.Fprintf(out, "backend unreachable: %s\n", status.Message)
				return errors.New("backend unreachable")
			}
		},
	}

	cmd.Flags().StringVar(&apiBase, "api-base", "", "backend base URL (overrides config)")

	return cmd
}
