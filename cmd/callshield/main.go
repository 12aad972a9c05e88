package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fennsaji/call-shield-sub001/internal/platform/config"
	"github.com/fennsaji/call-shield-sub001/internal/platform/logger"
)

var (
	cfgFile  string
	logLevel string

	deviceCfg *config.DeviceConfig
	log       = logger.Discard()

	rootCmd = &cobra.Command{
		Use:   "callshield",
		Short: "Screen incoming calls against local lists, the seed dataset and crowd reputation",
		Long: `callshield runs the on-device screening engine from the command line.

Numbers are normalized and hashed before they touch storage; only the last
four digits are ever shown back.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/callshield/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(screenCmd())
	rootCmd.AddCommand(listCmd("block", "blocklist"))
	rootCmd.AddCommand(listCmd("allow", "whitelist"))
	rootCmd.AddCommand(prefixCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(correctCmd())
	rootCmd.AddCommand(prefsCmd())
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	var searchPaths []string
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "callshield"))
	}
	searchPaths = append(searchPaths, ".")

	cfg, err := config.LoadDevice(cfgFile, searchPaths...)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Level = logLevel
	}

	deviceCfg = cfg
	log = logger.New(cfg.Config)
	slog.SetDefault(log)
	return nil
}
