package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphasignal/fundsync/internal/netmon"
)

// statusOutput is the machine-readable status shape.
type statusOutput struct {
	Online       bool      `json:"online"`
	Watermark    time.Time `json:"watermark,omitzero"`
	PendingOps   int       `json:"pending_operations"`
	PendingCodes []string  `json:"pending_codes,omitempty"`
	Items        int       `json:"items"`
	Groups       int       `json:"groups"`
}

// newStatusCmd builds the sync status command: watermark, queue depth,
// and current reachability.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync state and pending changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := openServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			out, err := collectStatus(cmd.Context(), svc)
			if err != nil {
				return err
			}

			if flagJSON {
				return json.NewEncoder(os.Stdout).Encode(out)
			}

			connectivity := "offline"
			if out.Online {
				connectivity = "online"
			}

			fmt.Printf("Connectivity:  %s\n", connectivity)
			fmt.Printf("Last sync:     %s\n", formatTime(out.Watermark))
			fmt.Printf("Watched funds: %d (%d groups)\n", out.Items, out.Groups)
			fmt.Printf("Pending ops:   %d\n", out.PendingOps)

			for _, code := range out.PendingCodes {
				fmt.Printf("  queued: %s\n", code)
			}

			return nil
		},
	}
}

func collectStatus(ctx context.Context, svc *services) (*statusOutput, error) {
	watermark, err := svc.store.Watermark(ctx)
	if err != nil {
		return nil, err
	}

	pending, err := svc.store.PendingCount(ctx)
	if err != nil {
		return nil, err
	}

	codes, err := svc.store.PendingCodes(ctx)
	if err != nil {
		return nil, err
	}

	items, err := svc.store.AllItems(ctx, true)
	if err != nil {
		return nil, err
	}

	groups, err := svc.store.AllGroups(ctx)
	if err != nil {
		return nil, err
	}

	return &statusOutput{
		Online:       netmon.DialProbe(svc.cfg.BaseURL)(ctx),
		Watermark:    watermark,
		PendingOps:   pending,
		PendingCodes: codes,
		Items:        len(items),
		Groups:       len(groups),
	}, nil
}
