package cmd

import (
	"github.com/spf13/cobra"
)

func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Run one full scrape and reconcile cycle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := a.Pipeline.Run(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
}
