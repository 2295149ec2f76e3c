// Package worktree manages per-ticket git worktrees.
//
// Each ticket gets an exclusive worktree bound to its branch; the main
// branch is only ever written by the merge path, one ticket at a time.
package worktree

import (
	"context"

	"github.com/mjankowski/autodev/internal/types"
)

// Handle identifies one ticket's worktree
type Handle struct {
	// Branch is the ticket branch checked out in this worktree
	Branch string

	// Path is the absolute path to the worktree directory
	Path string
}

// Manager is the worktree capability contract
type Manager interface {
	// Create makes a new worktree for branch at path, creating the branch
	// from the main branch.
	Create(ctx context.Context, branch, path string) (*Handle, error)

	// Remove deletes the worktree and prunes git's worktree list.
	// The branch itself is left for the forge to delete on merge.
	Remove(ctx context.Context, h *Handle) error

	// List returns all worktrees currently registered under the manager's root
	List(ctx context.Context) ([]*Handle, error)

	// CommitAndPush stages everything in the worktree, commits with the
	// given message if there are changes, and pushes the branch.
	CommitAndPush(ctx context.Context, h *Handle, message string) error

	// RebaseOnMain replays the worktree's branch onto the current main
	// branch. A conflicting rebase is aborted and reported, never left
	// half-applied.
	RebaseOnMain(ctx context.Context, h *Handle) (*types.RebaseResult, error)
}
