package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestration loop",
	Long: `Start the pass loop over the ticket backlog.

Each pass:
1. Picks up unblocked ready tickets and creates their worktrees
2. Dispatches coding agents in parallel, one worktree each
3. Polls open merge requests for review feedback
4. Requeues tickets whose reviews asked for changes
5. Merges approved tickets one at a time, in ticket order

By default the loop runs until stopped with Ctrl+C; --once runs a single
pass and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")
		interval, _ := cmd.Flags().GetDuration("interval")
		if interval > 0 {
			cfg.PollInterval = interval
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		stop := make(chan struct{})
		sigCh := make(chan os.Signal, 2)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			if once {
				fmt.Println("\nReceived shutdown signal, aborting...")
				cancel()
				return
			}
			fmt.Println("\nReceived shutdown signal, stopping at the next pass boundary (Ctrl+C again to abort now)...")
			close(stop)
			<-sigCh
			fmt.Println("\nAborting")
			cancel()
		}()

		orch, store, err := buildOrchestrator(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if once {
			report, err := orch.RunOnce(ctx)
			if report != nil {
				fmt.Print(report.Summary())
			}
			return err
		}
		return orch.RunContinuous(ctx, stop)
	},
}

func init() {
	runCmd.Flags().Bool("once", false, "run a single pass and exit")
	runCmd.Flags().Duration("interval", 0*time.Second, "delay between passes (overrides config)")
	rootCmd.AddCommand(runCmd)
}
