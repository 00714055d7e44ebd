package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fitroom/fitroom/internal/config"
	"github.com/fitroom/fitroom/internal/logging"
	"github.com/fitroom/fitroom/internal/notify"
	"github.com/fitroom/fitroom/internal/preview"
	"github.com/fitroom/fitroom/internal/run"
	"github.com/fitroom/fitroom/internal/settings"
	"github.com/fitroom/fitroom/internal/stylist"
	"github.com/fitroom/fitroom/internal/wardrobe"
	"github.com/fitroom/fitroom/internal/web"
)

func newServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the fitting-room gateway",
		Long: `Starts the gateway HTTP server. Session images live in memory only and are
gone when the process exits; settings persist in a local SQLite database.`,
		Example: `  # Start on the configured address (default :8090)
  fitroom serve

  # Start on a custom address
  fitroom serve --listen :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}

			logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer cleanup()

			store, err := settings.Open(cfg.DBPath, settings.Defaults(cfg.APIBase), logger)
			if err != nil {
				logger.Error("failed to open settings store", "error", err)
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Error("failed to close settings store", "error", err)
				}
			}()

			previews := preview.NewRegistry(cfg.PreviewMaxDim, logger)
			collection := wardrobe.NewCollection(previews, logger)
			anchor := wardrobe.NewAnchorSlot(previews)
			notices := notify.NewQueue(cfg.NoticeTTL)
			client := stylist.NewClient(logger)
			monitor := stylist.NewMonitor(client, func() string { return store.Current().APIBase }, cfg.HealthInterval, logger)
			runner := run.NewRunner(client, notices, cfg.CatalogTimeout, cfg.WardrobeTimeout, logger)
			defer runner.Close()
			defer previews.ReleaseAll()

			server := web.NewServer(web.Deps{
				Settings:   store,
				Anchor:     anchor,
				Collection: collection,
				Previews:   previews,
				Notices:    notices,
				Monitor:    monitor,
				Runner:     runner,
				Logger:     logger,
			})
			httpServer := server.HTTPServer(cfg.ListenAddr)

			g, ctx := errgroup.WithContext(cmd.Context())

			g.Go(func() error {
				logger.Info("gateway listening", "addr", cfg.ListenAddr, "backend", store.Current().APIBase)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("failed to shut down http server: %w", err)
				}
				return nil
			})
			g.Go(func() error { return monitor.Run(ctx) })
			g.Go(func() error { return notices.Run(ctx) })

			if err := g.Wait(); err != nil {
				logger.Error("gateway stopped with error", "error", err)
				return err
			}
			logger.Info("gateway stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "address to listen on (overrides config)")

	return cmd
}
