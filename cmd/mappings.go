package cmd

import (
	"github.com/spf13/cobra"
)

func newMappingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Inspect or refresh the region/country combinations",
	}
	cmd.AddCommand(newMappingsShowCmd(), newMappingsRefreshCmd())
	return cmd
}

func newMappingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the active combinations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			current, err := a.Mappings.Current(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := a.Mappings.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"mappings":   current,
				"statistics": stats,
			})
		},
	}
}

func newMappingsRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-discover the combinations from the source",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			result, err := a.Mappings.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}
