package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge all approved tickets",
	Long: `Merge every approved ticket in ascending ticket ID order. Each branch
is rebased onto the current main before merging; a conflicting rebase
fails that ticket and the queue moves on.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		orch, store, err := buildOrchestrator(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		report, err := orch.MergeReady(ctx)
		if report != nil {
			fmt.Print(report.Summary())
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
