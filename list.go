package main

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alphasignal/fundsync/internal/store"
)

// newListCmd builds the offline mirror listing command. It never touches
// the network: the mirror is the read model.
func newListCmd() *cobra.Command {
	var (
		flagGroup     string
		flagUngrouped bool
		flagAll       bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List watched funds from the local mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := openServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()

			var items []store.Item

			switch {
			case flagUngrouped:
				items, err = svc.store.ItemsInGroup(ctx, nil)
			case flagGroup != "":
				items, err = svc.store.ItemsInGroup(ctx, &flagGroup)
			default:
				items, err = svc.store.AllItems(ctx, !flagAll)
			}

			if err != nil {
				return err
			}

			if flagJSON {
				return json.NewEncoder(os.Stdout).Encode(itemsJSON(items))
			}

			printItems(items)

			return nil
		},
	}

	cmd.Flags().StringVar(&flagGroup, "group", "", "only items in this group")
	cmd.Flags().BoolVar(&flagUngrouped, "ungrouped", false, "only items without a group")
	cmd.Flags().BoolVar(&flagAll, "all", false, "include soft-deleted items")

	return cmd
}

// itemJSON is the stable machine-readable listing shape.
type itemJSON struct {
	FundCode  string  `json:"fund_code"`
	FundName  string  `json:"fund_name"`
	GroupID   *string `json:"group_id"`
	SortIndex int     `json:"sort_index"`
	IsDeleted bool    `json:"is_deleted,omitempty"`
}

func itemsJSON(items []store.Item) []itemJSON {
	out := make([]itemJSON, len(items))
	for i, it := range items {
		out[i] = itemJSON{
			FundCode:  it.FundCode,
			FundName:  it.FundName,
			GroupID:   it.GroupID,
			SortIndex: it.SortIndex,
			IsDeleted: it.IsDeleted,
		}
	}

	return out
}

func printItems(items []store.Item) {
	rows := make([][]string, 0, len(items))

	for _, it := range items {
		group := "-"
		if it.GroupID != nil {
			group = *it.GroupID
		}

		name := it.FundName
		if it.IsDeleted {
			name += " (deleted)"
		}

		rows = append(rows, []string{
			it.FundCode, name, group, strconv.Itoa(it.SortIndex), formatTime(it.UpdatedAt),
		})
	}

	if stdoutIsTTY() {
		printTable(os.Stdout, []string{"CODE", "NAME", "GROUP", "INDEX", "UPDATED"}, rows)
		return
	}

	printTabbed(os.Stdout, rows)
}
