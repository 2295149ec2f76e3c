// Package forge defines the merge-request platform capability.
// Any provider satisfying Forge is interchangeable; the core never talks to
// a concrete forge directly.
package forge

import (
	"context"

	"github.com/mjankowski/autodev/internal/types"
)

// Forge is the forge capability contract.
//
// Calls fail with errors tagged by the faults package: rate limits and
// server errors are transient, missing merge requests are ticket-scoped,
// authentication problems are fatal.
type Forge interface {
	// CreateMergeRequest opens a merge request and returns its identifier
	CreateMergeRequest(ctx context.Context, mr types.NewMergeRequest) (string, error)

	// GetMergeRequest returns the forge's current view of a merge request
	GetMergeRequest(ctx context.Context, id string) (*types.MergeRequest, error)

	// FindMergeRequestByBranch locates the merge request for a source
	// branch, or returns nil when none exists. Used to re-derive ticket
	// state after a restart.
	FindMergeRequestByBranch(ctx context.Context, branch string) (*types.MergeRequest, error)

	// ListComments returns all review feedback on a merge request,
	// oldest first.
	ListComments(ctx context.Context, id string) ([]types.ReviewComment, error)

	// Merge merges the request using the configured strategy
	Merge(ctx context.Context, id string) error

	// CloseMergeRequest closes the request without merging
	CloseMergeRequest(ctx context.Context, id string) error
}
