package orchestrator

import (
	"fmt"
	"strings"

	"github.com/mjankowski/autodev/internal/types"
)

// Signals bundles the fresh external observations available for one ticket
// in the current phase. Fields are nil/zero when the corresponding
// observation was not made this phase.
type Signals struct {
	// WorktreeExists reports whether the ticket's worktree is present
	WorktreeExists bool

	// AgentResult is set when an agent invocation just finished
	AgentResult *types.AgentResult

	// NewComments are review comments fetched this phase that have not
	// been seen before
	NewComments []types.ReviewComment

	// ReprocessSignal and ApprovalSignal report which configured markers
	// were found in NewComments
	ReprocessSignal bool
	ApprovalSignal  bool

	// Rebase is set when a rebase onto main was just attempted
	Rebase *types.RebaseResult
}

// ActionKind identifies a side effect the transition function requires
type ActionKind int

const (
	ActionCreateWorktree ActionKind = iota
	ActionPushBranch
	ActionOpenMergeRequest
	ActionCaptureComments
	ActionMerge
	ActionCloseTicket
	ActionRemoveWorktree
)

func (a ActionKind) String() string {
	switch a {
	case ActionCreateWorktree:
		return "create_worktree"
	case ActionPushBranch:
		return "push_branch"
	case ActionOpenMergeRequest:
		return "open_merge_request"
	case ActionCaptureComments:
		return "capture_comments"
	case ActionMerge:
		return "merge"
	case ActionCloseTicket:
		return "close_ticket"
	case ActionRemoveWorktree:
		return "remove_worktree"
	default:
		return "unknown"
	}
}

// Decision is the output of the transition function: the advanced ticket
// plus the side effects the orchestrator must perform.
type Decision struct {
	Ticket  types.Ticket
	Actions []ActionKind
	// Trigger names what drove the transition, for the audit trail
	Trigger string
}

// Decide advances one ticket given the signals observed this phase.
//
// It is a pure function: no collaborator is touched, no hidden state is
// read. The returned ticket is a modified copy; the input is never mutated.
// Statuses only move along the edges of types.TicketStatus.ValidTransitions.
func Decide(t types.Ticket, sig Signals) Decision {
	switch t.Status {
	case types.StatusReady:
		t.Status = types.StatusInProgress
		if !sig.WorktreeExists {
			return Decision{Ticket: t, Actions: []ActionKind{ActionCreateWorktree}, Trigger: "worktree_absent"}
		}
		return Decision{Ticket: t, Trigger: "worktree_present"}

	case types.StatusInProgress:
		if sig.AgentResult == nil {
			// Nothing ran this phase (dry run, or not yet dispatched)
			return Decision{Ticket: t, Trigger: "no_agent_result"}
		}
		if !sig.AgentResult.Success {
			t.Status = types.StatusFailed
			t.FailureReason = failureReason("agent reported failure", sig.AgentResult.Summary)
			return Decision{Ticket: t, Trigger: "agent_failed"}
		}
		t.Status = types.StatusInReview
		actions := []ActionKind{ActionPushBranch}
		if t.MergeRequestID == "" {
			actions = append(actions, ActionOpenMergeRequest)
		}
		return Decision{Ticket: t, Actions: actions, Trigger: "agent_succeeded"}

	case types.StatusInReview:
		// An open change request overrides approval in the same batch
		if sig.ReprocessSignal {
			t.Status = types.StatusChangesNeeded
			return Decision{Ticket: t, Actions: []ActionKind{ActionCaptureComments}, Trigger: "reprocess_signal"}
		}
		if sig.ApprovalSignal {
			t.Status = types.StatusApproved
			return Decision{Ticket: t, Trigger: "approval_signal"}
		}
		return Decision{Ticket: t, Trigger: "no_signal"}

	case types.StatusChangesNeeded:
		t.Status = types.StatusInProgress
		t.ReviewRound++
		return Decision{Ticket: t, Trigger: "reprocess"}

	case types.StatusApproved:
		if sig.Rebase == nil {
			return Decision{Ticket: t, Trigger: "no_rebase_result"}
		}
		if !sig.Rebase.Clean {
			t.Status = types.StatusFailed
			t.FailureReason = fmt.Sprintf("rebase conflict: %s", strings.Join(sig.Rebase.ConflictFiles, ", "))
			return Decision{Ticket: t, Trigger: "rebase_conflict"}
		}
		t.Status = types.StatusMerged
		return Decision{
			Ticket:  t,
			Actions: []ActionKind{ActionMerge, ActionRemoveWorktree, ActionCloseTicket},
			Trigger: "rebase_clean",
		}

	default:
		// Terminal states never advance here
		return Decision{Ticket: t, Trigger: "terminal"}
	}
}

// Fail marks a ticket failed from an unrecoverable collaborator error.
// Valid from every non-terminal status.
func Fail(t types.Ticket, reason string, retries int) types.Ticket {
	t.Status = types.StatusFailed
	t.FailureReason = reason
	t.RetriesUsed = retries
	return t
}

func failureReason(prefix, detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return prefix
	}
	// Keep the tail: agents print their conclusion last
	const maxDetail = 500
	if len(detail) > maxDetail {
		detail = "..." + detail[len(detail)-maxDetail:]
	}
	return prefix + ": " + detail
}

// DetectSignals scans comment bodies for the configured markers,
// case-insensitively.
func DetectSignals(comments []types.ReviewComment, reprocessSignals, approvalSignals []string) (reprocess, approve bool) {
	for _, c := range comments {
		body := strings.ToLower(c.Body)
		for _, s := range reprocessSignals {
			if strings.Contains(body, strings.ToLower(s)) {
				reprocess = true
			}
		}
		for _, s := range approvalSignals {
			if strings.Contains(body, strings.ToLower(s)) {
				approve = true
			}
		}
	}
	return reprocess, approve
}
