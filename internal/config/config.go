// Package config loads and resolves runtime configuration.
//
// The orchestrator core consumes the resolved Config value only; all file
// and environment handling stays here, at the edge.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved runtime configuration
type Config struct {
	// DBPath is the SQLite ticket database path.
	// Special value ":memory:" creates an in-memory database (useful for tests).
	DBPath string `mapstructure:"db_path"`

	// RepoRoot is the path to the repository being worked on
	RepoRoot string `mapstructure:"repo_root"`

	// MainBranch is the integration branch merges target
	MainBranch string `mapstructure:"main_branch"`

	// BranchPrefix prefixes every ticket branch: <prefix>/<ticket-id>
	BranchPrefix string `mapstructure:"branch_prefix"`

	// WorktreeRoot is the directory ticket worktrees are created under
	WorktreeRoot string `mapstructure:"worktree_root"`

	// MaxConcurrentAgents bounds the Execute-phase worker pool
	MaxConcurrentAgents int `mapstructure:"max_concurrent_agents"`

	// PollInterval is the delay between passes in continuous mode
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// AgentCommand is the coding agent executable; AgentArgs its fixed arguments
	AgentCommand string   `mapstructure:"agent_command"`
	AgentArgs    []string `mapstructure:"agent_args"`

	// AgentTimeout bounds a single agent invocation
	AgentTimeout time.Duration `mapstructure:"agent_timeout"`

	// MergeStrategy is one of "merge", "squash", "rebase"
	MergeStrategy string `mapstructure:"merge_strategy"`

	// ApprovalSignals and ReprocessSignals are matched case-insensitively
	// against review comment bodies
	ApprovalSignals  []string `mapstructure:"approval_signals"`
	ReprocessSignals []string `mapstructure:"reprocess_signals"`

	// Forge holds forge provider settings
	Forge ForgeConfig `mapstructure:"forge"`

	// DryRun suppresses all side-effecting actions
	DryRun bool `mapstructure:"dry_run"`
}

// ForgeConfig holds settings for the forge provider
type ForgeConfig struct {
	Owner string `mapstructure:"owner"`
	Repo  string `mapstructure:"repo"`
	Token string `mapstructure:"token"`
	// Model used for drafting merge request descriptions; empty disables drafting
	DescriptionModel string `mapstructure:"description_model"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		DBPath:              ".autodev/autodev.db",
		RepoRoot:            ".",
		MainBranch:          "main",
		BranchPrefix:        "autodev",
		WorktreeRoot:        ".worktrees",
		MaxConcurrentAgents: 4,
		PollInterval:        60 * time.Second,
		AgentCommand:        "claude",
		AgentArgs:           []string{"--print", "--dangerously-skip-permissions"},
		AgentTimeout:        30 * time.Minute,
		MergeStrategy:       "squash",
		ApprovalSignals:     []string{"LGTM", "/approve"},
		ReprocessSignals:    []string{"/rework", "changes requested"},
	}
}

// Load reads configuration from the given TOML file (or the default search
// path when path is empty) with AUTODEV_* environment overrides, layered on
// top of Default().
func Load(path string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("repo_root", def.RepoRoot)
	v.SetDefault("main_branch", def.MainBranch)
	v.SetDefault("branch_prefix", def.BranchPrefix)
	v.SetDefault("worktree_root", def.WorktreeRoot)
	v.SetDefault("max_concurrent_agents", def.MaxConcurrentAgents)
	v.SetDefault("poll_interval", def.PollInterval)
	v.SetDefault("agent_command", def.AgentCommand)
	v.SetDefault("agent_args", def.AgentArgs)
	v.SetDefault("agent_timeout", def.AgentTimeout)
	v.SetDefault("merge_strategy", def.MergeStrategy)
	v.SetDefault("approval_signals", def.ApprovalSignals)
	v.SetDefault("reprocess_signals", def.ReprocessSignals)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("autodev")
		v.SetConfigType("toml")
		v.AddConfigPath(".autodev")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("AUTODEV")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the resolved configuration for values the orchestrator
// cannot run with. Invalid configuration is a fatal condition.
func (c *Config) Validate() error {
	if c.MaxConcurrentAgents < 1 {
		return fmt.Errorf("max_concurrent_agents must be at least 1 (got %d)", c.MaxConcurrentAgents)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive (got %s)", c.PollInterval)
	}
	if c.BranchPrefix == "" {
		return fmt.Errorf("branch_prefix is required")
	}
	if c.MainBranch == "" {
		return fmt.Errorf("main_branch is required")
	}
	switch c.MergeStrategy {
	case "merge", "squash", "rebase":
	default:
		return fmt.Errorf("invalid merge_strategy: %q (want merge, squash, or rebase)", c.MergeStrategy)
	}
	if len(c.ApprovalSignals) == 0 {
		return fmt.Errorf("at least one approval signal is required")
	}
	if len(c.ReprocessSignals) == 0 {
		return fmt.Errorf("at least one reprocess signal is required")
	}
	return nil
}
