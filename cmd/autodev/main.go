package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mjankowski/autodev/internal/config"
)

var (
	cfgFile string
	dbPath  string
	dryRun  bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "autodev",
	Short: "Autonomous ticket-to-merge development loop",
	Long: `autodev pulls unblocked tickets from its backlog, dispatches a coding
agent for each one in an isolated git worktree, opens merge requests,
folds review feedback back into the work, and merges approved changes.

Run 'autodev init' once to scaffold the configuration and backlog,
then 'autodev run' to start the loop.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init scaffolds the config file and must run without one
		if cmd.Name() == "init" || cmd.Name() == "help" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}
		if dryRun {
			cfg.DryRun = true
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default .autodev/autodev.toml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "ticket database path (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "report intended actions without performing them")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
