package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently screened calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			records, err := app.store.RecentHistory(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tNUMBER\tOUTCOME\tSOURCE\tSCORE\tCATEGORY")
			for _, r := range records {
				score := "-"
				if r.ConfidenceScore > 0 {
					score = fmt.Sprintf("%.2f", r.ConfidenceScore)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ScreenedAt.Local().Format(time.DateTime), r.DisplayLabel, r.Outcome, r.Source, score, r.Category)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of entries to show")
	return cmd
}
