package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	syncapp "github.com/cephasgm/safety-sync/internal/app"
)

const defaultGracefulTimeout = 30 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sync server",
		Long: `Start the sync server. It runs the scheduled sync passes, probes connectivity
to the remote store, and serves the status, trigger and migration endpoints.

The server starts even when the remote store is unreachable and serves the
cached data until it comes back.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.Flags().String("address", ":8080", "Address to listen on")
	if err := opts.v.BindPFlag("address", cmd.Flags().Lookup("address")); err != nil {
		slog.Error("Error binding address flag", "error", err)
	}
	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	address := opts.v.GetString("address")
	slog.Info("Starting sync server", "address", address, "domains", len(cfg.Domains))

	app, err := syncapp.NewSyncApp(context.WithoutCancel(ctx),
		syncapp.WithConfig(cfg),
		syncapp.WithAddress(address),
		syncapp.WithComponentOptions(opts.componentOpts...),
	)
	if err != nil {
		return fmt.Errorf("failed to build sync server: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.Start()
	}()

	select {
	case err = <-serveErr:
		if stopErr := app.Stop(defaultGracefulTimeout); stopErr != nil {
			slog.Error("Failed to stop sync server", "error", stopErr)
		}
		return err
	case <-ctx.Done():
	}

	return app.Stop(defaultGracefulTimeout)
}
