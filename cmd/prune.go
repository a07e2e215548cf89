package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

func newPruneCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete change history older than the retention horizon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			horizon := a.Cfg.RetentionHorizon()
			if days > 0 {
				horizon = time.Duration(days) * 24 * time.Hour
			}
			removed, err := a.Reconciler.PruneHistory(cmd.Context(), horizon)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"removed":      removed,
				"horizon_days": int(horizon.Hours() / 24),
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "override the configured retention horizon")
	return cmd
}
