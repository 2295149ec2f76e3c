package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mjankowski/autodev/internal/tracker/sqlite"
	"github.com/mjankowski/autodev/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ticket statuses and recent activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		tickets, err := store.ListTickets(ctx)
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan("=== Autodev Status ==="))

		if len(tickets) == 0 {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Printf("  %s\n", gray("No tickets in the backlog"))
		} else {
			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "  ID\tSTATUS\tROUND\tMERGE REQ\tBRANCH")
			for _, t := range tickets {
				mr := t.MergeRequestID
				if mr == "" {
					mr = "-"
				}
				branch := t.Branch
				if branch == "" {
					branch = "-"
				}
				fmt.Fprintf(w, "  %s\t%s\t%d\t%s\t%s\n",
					t.ID, statusLabel(t.Status), t.ReviewRound, mr, branch)
			}
			w.Flush()

			red := color.New(color.FgRed).SprintFunc()
			for _, t := range tickets {
				if t.Status == types.StatusFailed && t.FailureReason != "" {
					fmt.Printf("\n  %s %s: %s\n", red("✗"), t.ID, t.FailureReason)
				}
			}
		}

		events, err := store.RecentEvents(ctx, 15)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load recent events: %v\n", err)
			return nil
		}
		if len(events) > 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Printf("\n%s\n", yellow("Recent activity:"))
			for _, e := range events {
				subject := e.TicketID
				if subject == "" {
					subject = "pass"
				}
				fmt.Printf("  %s %s %s\n",
					gray(e.Timestamp.Local().Format("01-02 15:04:05")), subject, e.Message)
			}
		}
		fmt.Println()
		return nil
	},
}

func statusLabel(s types.TicketStatus) string {
	switch s {
	case types.StatusMerged:
		return color.New(color.FgGreen).Sprint(s)
	case types.StatusFailed:
		return color.New(color.FgRed).Sprint(s)
	case types.StatusInReview, types.StatusApproved:
		return color.New(color.FgYellow).Sprint(s)
	case types.StatusInProgress, types.StatusChangesNeeded:
		return color.New(color.FgCyan).Sprint(s)
	default:
		return string(s)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
