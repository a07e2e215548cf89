package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Mirror stored distributors into the workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if a.Syncer == nil {
				return fmt.Errorf("workspace sync is not configured; set sync.enabled, sync.token and sync.database_id")
			}
			result, err := a.Syncer.Run(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}
