package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var windowDays int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print stored-data and mapping statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := a.Store.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			mappingStats, err := a.Mappings.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			since := time.Now().UTC().Add(-time.Duration(windowDays) * 24 * time.Hour)
			recent, err := a.History.RecentSummary(cmd.Context(), since)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"distributors":   stats,
				"mappings":       mappingStats,
				"recent_changes": recent,
			})
		},
	}
	cmd.Flags().IntVar(&windowDays, "window-days", 7, "recent-changes window in days")
	return cmd
}
