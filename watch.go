package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// newWatchCmd builds the long-running daemon command: reachability
// monitor, push stream, and periodic sync until SIGINT/SIGTERM.
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the sync daemon",
		Long:  "Keeps the local watchlist mirror in sync: periodic cycles, push notifications, and offline queue drain.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := openServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			eng := svc.newEngine()

			ctx := shutdownContext(cmd.Context(), svc.logger)

			svc.logger.Info("fundsync daemon starting",
				slog.String("base_url", svc.cfg.BaseURL),
				slog.String("sync_interval", svc.cfg.SyncInterval),
			)

			err = eng.Start(ctx)

			svc.logger.Info("fundsync daemon stopped")

			return err
		},
	}
}
