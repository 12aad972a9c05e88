package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fennsaji/call-shield-sub001/internal/adapter/devicestore"
	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
)

// listCmd builds the add/remove/list tree shared by the block and allow lists.
func listCmd(use, table string) *cobra.Command {
	pick := func(app *deviceApp) *devicestore.ListTable {
		if table == "whitelist" {
			return app.store.Whitelist()
		}
		return app.store.Blocklist()
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Manage the %s", table),
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <number>",
		Short: fmt.Sprintf("Add a number to the %s", table),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			hash, err := app.hasher.Hash(args[0])
			if err != nil {
				return err
			}
			entry := domain.ListEntry{
				NumberHash:   hash,
				DisplayLabel: domain.MaskNumber(args[0]),
				AddedAt:      time.Now().UTC(),
			}
			if err := pick(app).Add(cmd.Context(), entry); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s to %s\n", entry.DisplayLabel, table)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <number>",
		Short: fmt.Sprintf("Remove a number from the %s", table),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			hash, err := app.hasher.Hash(args[0])
			if err != nil {
				return err
			}
			if err := pick(app).Remove(cmd.Context(), hash); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s from %s\n", domain.MaskNumber(args[0]), table)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("Show the %s", table),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			entries, err := pick(app).List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NUMBER\tADDED")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\n", e.DisplayLabel, e.AddedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	})

	return cmd
}
