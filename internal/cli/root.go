package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fitroom",
		Short: "Local fitting-room gateway for outfit recommendations",
		Long: `Fitroom keeps your anchor photo and wardrobe images in memory, talks to the
outfit recommendation backend on your behalf, and serves a small JSON API for
the fitting-room UI. Nothing but tuning settings is ever written to disk.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCheckCmd())

	return cmd
}
