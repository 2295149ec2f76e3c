package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mjankowski/autodev/internal/tracker/sqlite"
	"github.com/mjankowski/autodev/internal/types"
)

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Manage the ticket backlog",
}

var ticketAddCmd = &cobra.Command{
	Use:   "add <ticket-id>",
	Short: "Add a ticket to the backlog",
	Long: `Add a ready ticket to the backlog. Dependencies given with --depends-on
block the ticket until every named ticket has merged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		dependsOn, _ := cmd.Flags().GetStringSlice("depends-on")

		if title == "" {
			return fmt.Errorf("--title is required")
		}

		ctx := context.Background()
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		ticket := &types.Ticket{
			ID:          args[0],
			Title:       title,
			Description: description,
			Status:      types.StatusReady,
		}
		if err := store.CreateTicket(ctx, ticket); err != nil {
			return err
		}
		for _, dep := range dependsOn {
			if err := store.AddDependency(ctx, ticket.ID, dep); err != nil {
				return err
			}
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s added %s: %s\n", green("✓"), ticket.ID, ticket.Title)
		if len(dependsOn) > 0 {
			fmt.Printf("  blocked by: %v\n", dependsOn)
		}
		return nil
	},
}

func init() {
	ticketAddCmd.Flags().String("title", "", "ticket title (required)")
	ticketAddCmd.Flags().String("description", "", "ticket description handed to the agent")
	ticketAddCmd.Flags().StringSlice("depends-on", nil, "ticket IDs that must merge first")
	ticketCmd.AddCommand(ticketAddCmd)
	rootCmd.AddCommand(ticketCmd)
}
