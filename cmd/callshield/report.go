package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
)

var reportCategories = []domain.Category{
	domain.CategoryTelemarketing,
	domain.CategoryLoanScam,
	domain.CategoryInvestmentScam,
	domain.CategoryImpersonation,
	domain.CategoryPhishing,
	domain.CategoryJobScam,
	domain.CategoryOther,
}

func reportCmd() *cobra.Command {
	names := make([]string, len(reportCategories))
	for i, c := range reportCategories {
		names[i] = string(c)
	}
	sort.Strings(names)

	return &cobra.Command{
		Use:   "report <number> <category>",
		Short: "Report a number as spam",
		Long:  "Report a number as spam. Categories: " + strings.Join(names, ", "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			category := domain.Category(strings.ToLower(args[1]))
			if !category.Valid() {
				return fmt.Errorf("%w: unknown category %q", domain.ErrValidation, args[1])
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			client, err := app.backend()
			if err != nil {
				return err
			}
			hash, err := app.hasher.Hash(args[0])
			if err != nil {
				return err
			}

			resp, err := client.SubmitReport(cmd.Context(), hash, category)
			if err != nil {
				return fmt.Errorf("failed to submit report: %w", err)
			}

			msg := fmt.Sprintf("reported %s: score %.2f from %d reporters",
				domain.MaskNumber(args[0]), resp.ConfidenceScore, resp.UniqueReporters)
			if resp.Quarantined {
				msg += " (under review)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func correctCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "correct <number>",
		Short: "Tell the backend a number was wrongly flagged",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			client, err := app.backend()
			if err != nil {
				return err
			}
			hash, err := app.hasher.Hash(args[0])
			if err != nil {
				return err
			}

			resp, err := client.SubmitCorrection(cmd.Context(), hash)
			if err != nil {
				return fmt.Errorf("failed to submit correction: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "correction recorded for %s: score now %.2f\n",
				domain.MaskNumber(args[0]), resp.ConfidenceScore)
			return nil
		},
	}
}
