package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
)

type prefSetter func(p *domain.Preferences, value string) error

var prefSetters = map[string]prefSetter{
	"block-hidden": boolPref(func(p *domain.Preferences, v bool) { p.BlockHidden = v }),
	"hidden-action": func(p *domain.Preferences, value string) error {
		action := domain.HiddenAction(strings.ToLower(value))
		if action != domain.HiddenReject && action != domain.HiddenSilence {
			return fmt.Errorf("%w: hidden-action must be reject or silence", domain.ErrValidation)
		}
		p.HiddenAction = action
		return nil
	},
	"pro":           boolPref(func(p *domain.Preferences, v bool) { p.ProTier = v }),
	"auto-block":    boolPref(func(p *domain.Preferences, v bool) { p.AutoBlockHighConfidence = v }),
	"contacts-only": boolPref(func(p *domain.Preferences, v bool) { p.ContactsOnly = v }),
	"night-guard":   boolPref(func(p *domain.Preferences, v bool) { p.NightGuard.Enabled = v }),
	"night-start":   intPref(0, 23, func(p *domain.Preferences, v int) { p.NightGuard.StartHour = v }),
	"night-end":     intPref(0, 23, func(p *domain.Preferences, v int) { p.NightGuard.EndHour = v }),
	"intl-lock":     boolPref(func(p *domain.Preferences, v bool) { p.InternationalLock.Enabled = v }),
	"home-country":  intPref(1, 999, func(p *domain.Preferences, v int) { p.InternationalLock.HomeCountryCode = v }),
}

func boolPref(set func(*domain.Preferences, bool)) prefSetter {
	return func(p *domain.Preferences, value string) error {
		switch strings.ToLower(value) {
		case "on", "yes":
			set(p, true)
			return nil
		case "off", "no":
			set(p, false)
			return nil
		}
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: expected on or off, got %q", domain.ErrValidation, value)
		}
		set(p, v)
		return nil
	}
}

func intPref(lo, hi int, set func(*domain.Preferences, int)) prefSetter {
	return func(p *domain.Preferences, value string) error {
		v, err := strconv.Atoi(value)
		if err != nil || v < lo || v > hi {
			return fmt.Errorf("%w: expected a number between %d and %d, got %q", domain.ErrValidation, lo, hi, value)
		}
		set(p, v)
		return nil
	}
}

// applyPreference updates a single preference by its CLI key.
func applyPreference(p *domain.Preferences, key, value string) error {
	set, ok := prefSetters[key]
	if !ok {
		return fmt.Errorf("%w: unknown preference %q (known: %s)", domain.ErrValidation, key, strings.Join(prefKeys(), ", "))
	}
	return set(p, value)
}

func prefKeys() []string {
	keys := make([]string, 0, len(prefSetters))
	for k := range prefSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func prefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change screening preferences",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current preferences as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			prefs, err := app.store.LoadPreferences(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(prefs)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Change one preference",
		Long:      "Change one preference. Keys: " + strings.Join(prefKeys(), ", "),
		Example:   "  callshield prefs set night-guard on\n  callshield prefs set hidden-action silence",
		Args:      cobra.ExactArgs(2),
		ValidArgs: prefKeys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			prefs, err := app.store.LoadPreferences(cmd.Context())
			if err != nil {
				return err
			}
			if err := applyPreference(&prefs, args[0], args[1]); err != nil {
				return err
			}
			if err := app.store.SavePreferences(cmd.Context(), prefs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
			return nil
		},
	})

	return cmd
}
