package main

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/fennsaji/call-shield-sub001/internal/seed"
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Manage the known-spam seed dataset",
	}

	var quiet bool
	update := &cobra.Command{
		Use:   "update",
		Short: "Download and install the latest seed dataset if it is newer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			source, err := app.backend()
			if err != nil {
				return err
			}

			opts := []seed.Option{seed.WithRetry(seed.RetryConfig{
				MaxRetries:      deviceCfg.SeedMaxRetries,
				InitialInterval: deviceCfg.SeedInitialBackoff,
				MaxInterval:     deviceCfg.SeedMaxBackoff,
			})}
			if !quiet {
				bar := progressbar.NewOptions64(-1,
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetDescription("downloading seed dataset"),
					progressbar.OptionShowBytes(true),
					progressbar.OptionClearOnFinish(),
				)
				defer func() { _ = bar.Finish() }()
				opts = append(opts, seed.WithProgress(bar))
			}

			updater := seed.NewUpdater(source, app.store, app.tokenHash, log, opts...)
			result, err := updater.UpdateWithRetry(cmd.Context())
			if err != nil {
				return err
			}

			switch result.Status {
			case seed.StatusUpdated:
				fmt.Fprintf(cmd.OutOrStdout(), "installed seed v%d (%d entries)\n", result.Version, result.Entries)
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "seed dataset is up to date")
			}
			return nil
		},
	}
	update.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide the download progress bar")
	cmd.AddCommand(update)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the installed seed dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			version, err := app.store.SeedVersion(cmd.Context())
			if err != nil {
				return err
			}
			if version == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no seed dataset installed")
				return nil
			}
			count, err := app.store.SeedCount(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version:   %d\n", version.Version)
			fmt.Fprintf(out, "entries:   %d\n", count)
			fmt.Fprintf(out, "sha256:    %s\n", version.SHA256)
			fmt.Fprintf(out, "installed: %s\n", version.UpdatedAt.Local().Format(time.RFC1123))
			return nil
		},
	})

	return cmd
}
