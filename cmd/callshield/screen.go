package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/screening"
)

func screenCmd() *cobra.Command {
	var hidden bool

	cmd := &cobra.Command{
		Use:   "screen [number]",
		Short: "Decide how an incoming call should be handled",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var number string
			if len(args) == 1 {
				number = args[0]
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			orch, err := app.orchestrator()
			if err != nil {
				return err
			}
			decision := orch.Screen(cmd.Context(), screening.IncomingCall{RawNumber: number, Hidden: hidden || number == ""})
			orch.Close()

			fmt.Fprintln(cmd.OutOrStdout(), describeDecision(number, decision))
			return nil
		},
	}

	cmd.Flags().BoolVar(&hidden, "hidden", false, "treat the caller ID as withheld")
	return cmd
}

func describeDecision(number string, d domain.CallDecision) string {
	label := "hidden caller"
	if number != "" {
		label = domain.MaskNumber(number)
	}

	line := fmt.Sprintf("%s: %s (%s)", label, domain.OutcomeOf(d), d.DecisionSource())
	if score, category := domain.ScoreOf(d); score > 0 {
		line += fmt.Sprintf(" score=%.2f", score)
		if category != "" {
			line += " category=" + category
		}
	}
	return line
}
