package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
)

func prefixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefix",
		Short: "Manage block and allow rules for number prefixes",
	}

	var label string
	add := &cobra.Command{
		Use:     "add <prefix> <block|allow>",
		Short:   "Add or replace a prefix rule",
		Example: "  callshield prefix add +1900 block --label premium",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, err := parsePrefix(args[0])
			if err != nil {
				return err
			}
			action := domain.PrefixAction(strings.ToLower(args[1]))
			if !action.Valid() {
				return fmt.Errorf("%w: action must be block or allow", domain.ErrValidation)
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			rule := domain.PrefixRule{Prefix: prefix, Action: action, Label: label}
			if err := app.store.AddRule(cmd.Context(), rule); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", action, prefix)
			return nil
		},
	}
	add.Flags().StringVar(&label, "label", "", "note shown next to the rule")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <prefix>",
		Short: "Delete a prefix rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, err := parsePrefix(args[0])
			if err != nil {
				return err
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.store.RemoveRule(cmd.Context(), prefix); err != nil {
				return fmt.Errorf("failed to remove %s: %w", prefix, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", prefix)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show prefix rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			rules, err := app.store.Rules(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PREFIX\tACTION\tLABEL")
			for _, r := range rules {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Prefix, r.Action, r.Label)
			}
			return w.Flush()
		},
	})

	return cmd
}

// parsePrefix accepts "+1900" or "1900" and returns the E.164 form.
func parsePrefix(raw string) (string, error) {
	p := strings.TrimPrefix(strings.TrimSpace(raw), "+")
	if p == "" || len(p) > 15 {
		return "", fmt.Errorf("%w: prefix must be 1-15 digits", domain.ErrValidation)
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: prefix must be 1-15 digits", domain.ErrValidation)
		}
	}
	return "+" + p, nil
}
