package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alphasignal/fundsync/internal/api"
	"github.com/alphasignal/fundsync/internal/store"
)

// newGroupCmd builds the group management command tree. Groups are
// server-round-trip only: there is no optimistic local creation, so these
// commands require connectivity.
func newGroupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage watchlist groups",
	}

	cmd.AddCommand(newGroupListCmd())
	cmd.AddCommand(newGroupCreateCmd())
	cmd.AddCommand(newGroupRenameCmd())
	cmd.AddCommand(newGroupDeleteCmd())

	return cmd
}

func newGroupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List groups from the local mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := openServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			groups, err := svc.store.AllGroups(cmd.Context())
			if err != nil {
				return err
			}

			if flagJSON {
				return json.NewEncoder(os.Stdout).Encode(groups)
			}

			rows := make([][]string, 0, len(groups))
			for _, g := range groups {
				rows = append(rows, []string{g.ID, g.Name, g.Icon, g.Color})
			}

			if stdoutIsTTY() {
				printTable(os.Stdout, []string{"ID", "NAME", "ICON", "COLOR"}, rows)
				return nil
			}

			printTabbed(os.Stdout, rows)

			return nil
		},
	}
}

func newGroupCreateCmd() *cobra.Command {
	var (
		flagIcon  string
		flagColor string
	)

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a group on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()

			groups, err := svc.store.AllGroups(ctx)
			if err != nil {
				return err
			}

			group, err := svc.client.CreateGroup(ctx, api.CreateGroupRequest{
				Name:      args[0],
				Icon:      flagIcon,
				Color:     flagColor,
				SortIndex: len(groups),
			})
			if err != nil {
				return err
			}

			// Mirror the confirmed group so offline reads see it immediately.
			if err := svc.store.UpsertGroups(ctx, []store.Group{toStoreGroup(group)}); err != nil {
				return err
			}

			fmt.Println(group.ID)

			return nil
		},
	}

	cmd.Flags().StringVar(&flagIcon, "icon", "", "icon token")
	cmd.Flags().StringVar(&flagColor, "color", "", "color token")

	return cmd
}

func newGroupRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename ID NAME",
		Short: "Rename a group on the server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()

			group, err := svc.client.UpdateGroup(ctx, args[0], api.UpdateGroupRequest{
				Name: &args[1],
			})
			if err != nil {
				return err
			}

			if err := svc.store.UpsertGroups(ctx, []store.Group{toStoreGroup(group)}); err != nil {
				return err
			}

			statusf("Renamed group %s to %q.\n", group.ID, group.Name)

			return nil
		},
	}
}

func newGroupDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a group on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()

			if err := svc.client.DeleteGroup(ctx, args[0]); err != nil {
				return err
			}

			// Detach member items locally the same way the server does.
			if err := svc.store.DeleteGroup(ctx, args[0]); err != nil {
				return err
			}

			statusf("Deleted group %s.\n", args[0])

			return nil
		},
	}
}

func toStoreGroup(g *api.Group) store.Group {
	return store.Group{
		ID:        g.ID,
		UserID:    g.UserID,
		Name:      g.Name,
		Icon:      g.Icon,
		Color:     g.Color,
		SortIndex: g.SortIndex,
		CreatedAt: g.CreatedAt.Time,
		UpdatedAt: g.UpdatedAt.Time,
	}
}
