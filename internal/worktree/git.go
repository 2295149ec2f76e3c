package worktree

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mjankowski/autodev/internal/faults"
	"github.com/mjankowski/autodev/internal/types"
)

// Git implements Manager by shelling out to the git CLI
type Git struct {
	gitPath    string
	repoRoot   string
	root       string // directory worktrees are created under
	mainBranch string
}

// NewGit creates a git-backed worktree manager rooted at repoRoot.
// It verifies that git is available and that repoRoot is a repository.
func NewGit(ctx context.Context, repoRoot, worktreeRoot, mainBranch string) (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, faults.Fatal("worktree.init", fmt.Errorf("git not found in PATH: %w", err))
	}

	if _, err := os.Stat(filepath.Join(repoRoot, ".git")); err != nil {
		return nil, faults.Fatal("worktree.init", fmt.Errorf("not a git repository: %s", repoRoot))
	}

	return &Git{
		gitPath:    gitPath,
		repoRoot:   repoRoot,
		root:       worktreeRoot,
		mainBranch: mainBranch,
	}, nil
}

// run executes git with args in dir, returning combined output
func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.gitPath, args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("git %s failed: %w (output: %s)",
			args[0], err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// classifyGit tags a git failure: network unreachability on push/fetch is
// transient, everything else is scoped to the ticket that owns the worktree.
func classifyGit(op, output string, err error) error {
	lower := strings.ToLower(output + " " + err.Error())
	if strings.Contains(lower, "could not resolve host") ||
		strings.Contains(lower, "connection timed out") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "early eof") {
		return faults.Transient(op, err)
	}
	return faults.TicketScoped(op, err)
}

// Create makes a worktree for branch at path, branching off main.
// If the branch already exists (a previous pass created it), the worktree
// is attached to the existing branch instead.
func (g *Git) Create(ctx context.Context, branch, path string) (*Handle, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, faults.TicketScoped("worktree.create", fmt.Errorf("failed to create worktree root: %w", err))
	}
	if _, err := os.Stat(path); err == nil {
		return nil, faults.TicketScoped("worktree.create", fmt.Errorf("worktree path already exists: %s", path))
	}

	// Does the branch already exist?
	_, branchErr := g.run(ctx, g.repoRoot, "rev-parse", "--verify", "refs/heads/"+branch)

	var args []string
	if branchErr == nil {
		args = []string{"worktree", "add", path, branch}
	} else {
		args = []string{"worktree", "add", "-b", branch, path, g.mainBranch}
	}

	if output, err := g.run(ctx, g.repoRoot, args...); err != nil {
		os.RemoveAll(path)
		return nil, classifyGit("worktree.create", output, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		g.Remove(ctx, &Handle{Branch: branch, Path: path})
		return nil, faults.TicketScoped("worktree.create", fmt.Errorf("failed to get absolute path: %w", err))
	}

	return &Handle{Branch: branch, Path: absPath}, nil
}

// Remove deletes the worktree and prunes git's worktree list
func (g *Git) Remove(ctx context.Context, h *Handle) error {
	if _, err := os.Stat(h.Path); os.IsNotExist(err) {
		return nil
	}

	if output, err := g.run(ctx, g.repoRoot, "worktree", "remove", h.Path, "--force"); err != nil {
		// Broken worktrees can defeat git; fall back to manual removal
		_ = output
		if err := os.RemoveAll(h.Path); err != nil {
			return faults.TicketScoped("worktree.remove", fmt.Errorf("failed to remove worktree directory: %w", err))
		}
		g.run(ctx, g.repoRoot, "worktree", "prune") // best effort
	}
	return nil
}

// List returns the worktrees registered under the manager's root
func (g *Git) List(ctx context.Context) ([]*Handle, error) {
	output, err := g.run(ctx, g.repoRoot, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, faults.Fatal("worktree.list", err)
	}

	absRoot, err := filepath.Abs(g.root)
	if err != nil {
		return nil, faults.Fatal("worktree.list", err)
	}

	var handles []*Handle
	var current *Handle
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "worktree "):
			current = &Handle{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch refs/heads/"):
			if current != nil {
				current.Branch = strings.TrimPrefix(line, "branch refs/heads/")
			}
		case line == "":
			// Only report worktrees we manage, not the main checkout
			if current != nil && current.Branch != "" && strings.HasPrefix(current.Path, absRoot) {
				handles = append(handles, current)
			}
			current = nil
		}
	}
	if current != nil && current.Branch != "" && strings.HasPrefix(current.Path, absRoot) {
		handles = append(handles, current)
	}
	return handles, nil
}

// CommitAndPush stages all changes, commits if anything changed, and pushes
func (g *Git) CommitAndPush(ctx context.Context, h *Handle, message string) error {
	if message == "" {
		return faults.TicketScoped("worktree.commit_and_push", fmt.Errorf("commit message is required"))
	}

	if output, err := g.run(ctx, h.Path, "add", "-A"); err != nil {
		return classifyGit("worktree.commit_and_push", output, err)
	}

	// Skip the commit when the tree is clean (the agent may have pushed
	// its own commits); the push below still publishes the branch.
	status, err := g.run(ctx, h.Path, "status", "--porcelain")
	if err != nil {
		return classifyGit("worktree.commit_and_push", status, err)
	}
	if strings.TrimSpace(status) != "" {
		if output, err := g.run(ctx, h.Path, "commit", "-m", message); err != nil {
			return classifyGit("worktree.commit_and_push", output, err)
		}
	}

	if output, err := g.run(ctx, h.Path, "push", "--force-with-lease", "-u", "origin", h.Branch); err != nil {
		return classifyGit("worktree.commit_and_push", output, err)
	}
	return nil
}

// RebaseOnMain fetches the remote main branch and replays the ticket branch
// onto it. A conflicting rebase is aborted before reporting, so the worktree
// is never left mid-rebase.
func (g *Git) RebaseOnMain(ctx context.Context, h *Handle) (*types.RebaseResult, error) {
	if output, err := g.run(ctx, h.Path, "fetch", "origin", g.mainBranch); err != nil {
		return nil, classifyGit("worktree.rebase", output, err)
	}

	output, err := g.run(ctx, h.Path, "rebase", "origin/"+g.mainBranch)
	if err == nil {
		// The rebased branch must be republished before merging
		if pushOut, pushErr := g.run(ctx, h.Path, "push", "--force-with-lease", "origin", h.Branch); pushErr != nil {
			return nil, classifyGit("worktree.rebase", pushOut, pushErr)
		}
		return &types.RebaseResult{Clean: true}, nil
	}

	files := conflictFiles(ctx, g, h.Path)
	if abortOut, abortErr := g.run(ctx, h.Path, "rebase", "--abort"); abortErr != nil {
		return nil, faults.TicketScoped("worktree.rebase",
			fmt.Errorf("rebase failed and abort failed: %w (output: %s)", abortErr, abortOut))
	}
	_ = output
	return &types.RebaseResult{Clean: false, ConflictFiles: files}, nil
}

// conflictFiles lists unmerged paths mid-rebase, best effort
func conflictFiles(ctx context.Context, g *Git, dir string) []string {
	output, err := g.run(ctx, dir, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil
	}
	var files []string
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files
}
