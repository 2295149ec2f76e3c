package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process <ticket-id>",
	Short: "Run a pass for a single ticket",
	Long: `Process one ticket through the full loop, ignoring the rest of the
backlog. A failed ticket is reset to ready first; this is the way to
re-trigger a ticket after fixing whatever failed it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		orch, store, err := buildOrchestrator(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		report, err := orch.ProcessTicket(ctx, args[0])
		if report != nil {
			fmt.Print(report.Summary())
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}
