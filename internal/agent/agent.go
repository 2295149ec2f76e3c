// Package agent defines the code-agent capability: an automated coding tool
// invoked once per ticket per pass, working inside the ticket's worktree.
package agent

import (
	"context"

	"github.com/mjankowski/autodev/internal/types"
)

// Agent is the code-agent capability contract.
//
// Execute returns a result with Success=false when the agent ran and
// reported failure (a ticket-scoped outcome). An error return means the
// agent could not be invoked at all: tagged transient when the cause may
// clear (spawn failure, timeout budget details aside), fatal when the
// executable is missing entirely.
type Agent interface {
	Execute(ctx context.Context, task *types.AgentTask) (*types.AgentResult, error)
}
