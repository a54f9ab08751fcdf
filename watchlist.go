package main

import (
	"context"
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alphasignal/fundsync/internal/engine"
	"github.com/alphasignal/fundsync/internal/netmon"
)

// enqueueThenSync runs a local mutation through a one-shot engine, then
// attempts a single opportunistic sync cycle. The enqueue happens with the
// network treated as offline so the optimistic write lands deterministically
// before any upload starts; with no connectivity the change stays queued for
// the daemon or the next command.
func enqueueThenSync(cmd *cobra.Command, mutate func(ctx context.Context, eng *engine.Engine) error) error {
	svc, err := openServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	net := &cliNet{}

	eng := engine.New(engine.Config{
		Store:        svc.store,
		API:          svc.client,
		Monitor:      net,
		DeviceID:     svc.cfg.DeviceID,
		SyncInterval: svc.cfg.SyncIntervalDuration(),
		Logger:       svc.logger,
	})

	ctx := cmd.Context()

	if err := mutate(ctx, eng); err != nil {
		return err
	}

	probe := netmon.DialProbe(svc.cfg.BaseURL)
	net.set(probe(ctx))

	err = eng.RunSyncCycle(ctx)

	switch {
	case errors.Is(err, engine.ErrOffline):
		statusf("Offline: change queued, will sync when connectivity returns.\n")
		return nil
	case err != nil:
		statusf("Change queued locally; sync failed and will retry: %v\n", err)
		return nil
	default:
		statusf("Synced.\n")
		return nil
	}
}

// newAddCmd queues a watchlist ADD.
func newAddCmd() *cobra.Command {
	var flagGroup string

	cmd := &cobra.Command{
		Use:   "add CODE NAME",
		Short: "Add a fund to the watchlist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return enqueueThenSync(cmd, func(ctx context.Context, eng *engine.Engine) error {
				var group *string
				if flagGroup != "" {
					group = &flagGroup
				}

				return eng.EnqueueAdd(ctx, args[0], args[1], group)
			})
		},
	}

	cmd.Flags().StringVar(&flagGroup, "group", "", "group to add the fund into")

	return cmd
}

// newRemoveCmd queues a watchlist REMOVE.
func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove CODE",
		Short: "Remove a fund from the watchlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return enqueueThenSync(cmd, func(ctx context.Context, eng *engine.Engine) error {
				return eng.EnqueueRemove(ctx, args[0])
			})
		},
	}
}

// newMoveCmd queues a MOVE_GROUP. Without --group the fund becomes
// ungrouped.
func newMoveCmd() *cobra.Command {
	var flagGroup string

	cmd := &cobra.Command{
		Use:   "move CODE",
		Short: "Move a fund to another group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return enqueueThenSync(cmd, func(ctx context.Context, eng *engine.Engine) error {
				var group *string
				if flagGroup != "" {
					group = &flagGroup
				}

				return eng.EnqueueMove(ctx, args[0], group)
			})
		},
	}

	cmd.Flags().StringVar(&flagGroup, "group", "", "destination group (omit for ungrouped)")

	return cmd
}

// newReorderCmd queues a REORDER.
func newReorderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder CODE INDEX",
		Short: "Change a fund's position in the watchlist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return errors.New("INDEX must be an integer")
			}

			return enqueueThenSync(cmd, func(ctx context.Context, eng *engine.Engine) error {
				return eng.EnqueueReorder(ctx, args[0], index)
			})
		},
	}
}
