package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Record and maintain behavioral call events",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "short-ring <number>",
		Short: "Record a call that rang briefly and hung up",
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
			return app.analyzer().RecordShortRing(cmd.Context(), hash, time.Now())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Drop events that fall outside every detection window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := app.analyzer().Purge(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d events\n", n)
			return nil
		},
	})

	return cmd
}
