package main

import (
	"context"
	"os"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/mjankowski/autodev/internal/agent"
	"github.com/mjankowski/autodev/internal/forge"
	"github.com/mjankowski/autodev/internal/forge/github"
	"github.com/mjankowski/autodev/internal/orchestrator"
	"github.com/mjankowski/autodev/internal/tracker/sqlite"
	"github.com/mjankowski/autodev/internal/worktree"
)

// buildOrchestrator wires the full dependency set from the loaded config.
// The caller owns the returned store and must close it.
func buildOrchestrator(ctx context.Context) (*orchestrator.Orchestrator, *sqlite.Store, error) {
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}

	wts, err := worktree.NewGit(ctx, cfg.RepoRoot, cfg.WorktreeRoot, cfg.MainBranch)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	gh, err := github.New(ctx, github.Config{
		Owner:       cfg.Forge.Owner,
		Repo:        cfg.Forge.Repo,
		Token:       forgeToken(),
		MergeMethod: cfg.MergeStrategy,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	var describer *forge.Describer
	if cfg.Forge.DescriptionModel != "" {
		// The client reads ANTHROPIC_API_KEY from the environment
		client := anthropic.NewClient()
		describer = forge.NewDescriber(&client, cfg.Forge.DescriptionModel)
	}

	orch, err := orchestrator.New(cfg, orchestrator.Deps{
		Tracker:   store,
		Events:    store,
		Agent:     agent.NewCLI(cfg.AgentCommand, cfg.AgentArgs, cfg.AgentTimeout),
		Forge:     gh,
		Worktrees: wts,
		Describer: describer,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return orch, store, nil
}

func forgeToken() string {
	if cfg.Forge.Token != "" {
		return cfg.Forge.Token
	}
	return os.Getenv("GITHUB_TOKEN")
}
