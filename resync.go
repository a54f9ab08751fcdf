package main

import (
	"github.com/spf13/cobra"

	"github.com/alphasignal/fundsync/internal/engine"
	"github.com/alphasignal/fundsync/internal/netmon"
)

// newResyncCmd builds the forced full resync command: clears the
// watermark so the next pull requests the server's complete state.
func newResyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync",
		Short: "Discard the sync watermark and pull full server state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := openServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()

			net := &cliNet{}
			net.set(netmon.DialProbe(svc.cfg.BaseURL)(ctx))

			eng := engine.New(engine.Config{
				Store:        svc.store,
				API:          svc.client,
				Monitor:      net,
				DeviceID:     svc.cfg.DeviceID,
				SyncInterval: svc.cfg.SyncIntervalDuration(),
				Logger:       svc.logger,
			})

			if err := eng.ForceFullResync(ctx); err != nil {
				return err
			}

			statusf("Full resync complete.\n")

			return nil
		},
	}
}
