// Package cmd implements the tracker command-line interface.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/uitrack/distributor-tracker/internal/app"
	"github.com/uitrack/distributor-tracker/internal/config"
	"github.com/uitrack/distributor-tracker/internal/logging"
)

var cfgFile string

type appKeyType struct{}

var appKey appKeyType

// newApp is the application factory. It is a variable so tests can
// replace it with a factory that returns a prewired app.
var newApp = func(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return app.New(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "distributor-tracker",
		Short: "Tracks the vendor's public distributor listings.",
		Long: `distributor-tracker scrapes the vendor's public distributor
directory, reconciles the listings against local storage with full
change history, and optionally mirrors them into an external
workspace database.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app.App); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(
		newScrapeCmd(),
		newSyncCmd(),
		newMappingsCmd(),
		newStatsCmd(),
		newPruneCmd(),
		newServeCmd(),
	)
	return cmd
}

func appFromContext(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return a, nil
}

func printJSON(cmd *cobra.Command, payload any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
