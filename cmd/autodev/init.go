package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mjankowski/autodev/internal/tracker/sqlite"
)

const exampleConfig = `# autodev configuration

# Repository the agents work on
repo_root = "."
main_branch = "main"

# Ticket branches are named <branch_prefix>/<ticket-id>
branch_prefix = "autodev"
worktree_root = ".worktrees"

# Backlog database
db_path = ".autodev/autodev.db"

# Agent invocation
agent_command = "claude"
agent_args = ["--print", "--dangerously-skip-permissions"]
agent_timeout = "30m"
max_concurrent_agents = 4

# Loop timing
poll_interval = "60s"

# Review signals, matched case-insensitively against comment bodies
approval_signals = ["LGTM", "/approve"]
reprocess_signals = ["/rework", "changes requested"]

# Merge strategy: merge, squash, or rebase
merge_strategy = "squash"

[forge]
owner = ""
repo = ""
# token defaults to $GITHUB_TOKEN
token = ""
# Set a model name to draft merge request descriptions (needs ANTHROPIC_API_KEY)
description_model = ""
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold the configuration and ticket backlog",
	Long: `Create the .autodev directory with an example configuration file and
an empty ticket database. Existing files are left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ".autodev"
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}

		green := color.New(color.FgGreen).SprintFunc()

		configPath := filepath.Join(dir, "autodev.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Printf("%s wrote %s\n", green("✓"), configPath)
		} else {
			fmt.Printf("  %s already exists, skipping\n", configPath)
		}

		dbFile := filepath.Join(dir, "autodev.db")
		store, err := sqlite.New(dbFile)
		if err != nil {
			return err
		}
		defer store.Close()
		fmt.Printf("%s initialized backlog at %s\n", green("✓"), dbFile)

		fmt.Println("\nNext steps:")
		fmt.Println("  1. Edit .autodev/autodev.toml (forge owner/repo at minimum)")
		fmt.Println("  2. Add tickets with 'autodev ticket add'")
		fmt.Println("  3. Start the loop with 'autodev run'")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
