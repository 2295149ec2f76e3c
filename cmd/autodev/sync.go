package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Poll review state without running agents",
	Long: `Fetch merge request state and review comments for every in-review
ticket and apply approval and rework signals. No agents are dispatched
and nothing is merged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		orch, store, err := buildOrchestrator(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		report, err := orch.SyncReviews(ctx)
		if report != nil {
			fmt.Print(report.Summary())
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
