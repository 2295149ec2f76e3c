package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Ticket represents a unit of work pulled from the issue tracker.
// Status is mutated exclusively by the orchestrator's transition function;
// Branch is computed once at creation and never changes afterwards.
type Ticket struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Status         TicketStatus `json:"status"`
	Branch         string       `json:"branch"`
	MergeRequestID string       `json:"merge_request_id,omitempty"`
	ReviewRound    int          `json:"review_round"`
	// LastCommentAt is the creation time of the newest review comment whose
	// signals have been applied. Persisted so a restart does not replay old
	// approval or rework signals.
	LastCommentAt time.Time `json:"last_comment_at,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	RetriesUsed    int          `json:"retries_used,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Validate checks if the ticket has valid field values
func (t *Ticket) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if len(t.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", t.Status)
	}
	if t.ReviewRound < 0 {
		return fmt.Errorf("review_round cannot be negative")
	}
	return nil
}

// BranchName derives the deterministic branch for a ticket.
// The branch is a pure function of the configured prefix and the ticket ID,
// never independently chosen.
func BranchName(prefix, ticketID string) string {
	return prefix + "/" + ticketID
}

// TicketStatus represents the current lifecycle state of a ticket
type TicketStatus string

const (
	StatusReady         TicketStatus = "ready"
	StatusInProgress    TicketStatus = "in_progress"
	StatusInReview      TicketStatus = "in_review"
	StatusChangesNeeded TicketStatus = "changes_needed"
	StatusApproved      TicketStatus = "approved"
	StatusMerged        TicketStatus = "merged"
	StatusFailed        TicketStatus = "failed"
)

// IsValid checks if the status value is valid
func (s TicketStatus) IsValid() bool {
	switch s {
	case StatusReady, StatusInProgress, StatusInReview, StatusChangesNeeded,
		StatusApproved, StatusMerged, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends automated processing.
// Merged tickets leave the registry; Failed tickets stay visible but are
// only re-entered by an explicit human re-trigger.
func (s TicketStatus) IsTerminal() bool {
	return s == StatusMerged || s == StatusFailed
}

// ValidTransitions defines the valid edges of the ticket state machine.
//
// State Machine Diagram:
//
//	ready → in_progress → in_review → approved → merged
//	                          ↓ ↑
//	                   changes_needed
//	    (any non-terminal state) → failed
//
// in_review loops on itself while neither a reprocess nor an approval
// signal has been seen. changes_needed always returns to in_progress.
// in_review → merged covers a merge request a human merged outside the
// loop; the ticket retires without passing through approved.
func (s TicketStatus) ValidTransitions() []TicketStatus {
	switch s {
	case StatusReady:
		return []TicketStatus{StatusInProgress, StatusFailed}
	case StatusInProgress:
		return []TicketStatus{StatusInReview, StatusFailed}
	case StatusInReview:
		return []TicketStatus{StatusInReview, StatusChangesNeeded, StatusApproved, StatusMerged, StatusFailed}
	case StatusChangesNeeded:
		return []TicketStatus{StatusInProgress, StatusFailed}
	case StatusApproved:
		return []TicketStatus{StatusMerged, StatusFailed}
	case StatusMerged:
		return []TicketStatus{} // Terminal state
	case StatusFailed:
		// Externally resettable to ready by a human re-trigger
		return []TicketStatus{StatusReady}
	default:
		return []TicketStatus{}
	}
}

// CanTransitionTo checks if a transition from this status to the target is valid
func (s TicketStatus) CanTransitionTo(target TicketStatus) bool {
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// CompareTicketIDs orders ticket identifiers for merge sequencing.
// IDs of the form "PROJ-12" compare by prefix, then by numeric suffix, so
// PROJ-10 sorts after PROJ-9. IDs without a numeric suffix fall back to
// plain string comparison.
func CompareTicketIDs(a, b string) int {
	ap, an, aok := splitID(a)
	bp, bn, bok := splitID(b)
	if aok && bok && ap == bp {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

func splitID(id string) (prefix string, n int, ok bool) {
	i := strings.LastIndex(id, "-")
	if i < 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, false
	}
	return id[:i], n, true
}

// AgentTask is the immutable work order handed to a code agent.
// It is constructed fresh for every invocation; Comments carries all
// review feedback not yet addressed, empty on the first pass.
type AgentTask struct {
	Ticket       Ticket          `json:"ticket"`
	WorktreePath string          `json:"worktree_path"`
	Comments     []ReviewComment `json:"comments,omitempty"`
	Instructions string          `json:"instructions"`
}

// AgentResult is the terminal outcome of one agent invocation
type AgentResult struct {
	Success      bool     `json:"success"`
	Summary      string   `json:"summary"`
	ChangedFiles []string `json:"changed_files,omitempty"`
}

// ReviewComment is a single piece of review feedback fetched from the forge
type ReviewComment struct {
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Path      string    `json:"path,omitempty"`
	Line      int       `json:"line,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RebaseResult reports the outcome of replaying a branch onto main.
// Clean=false carries the conflicting file list.
type RebaseResult struct {
	Clean         bool     `json:"clean"`
	ConflictFiles []string `json:"conflict_files,omitempty"`
}

// MergeRequestState represents the forge-side state of a merge request
type MergeRequestState string

const (
	MergeRequestOpen   MergeRequestState = "open"
	MergeRequestMerged MergeRequestState = "merged"
	MergeRequestClosed MergeRequestState = "closed"
)

// NewMergeRequest holds the fields needed to open a merge request
type NewMergeRequest struct {
	TicketID     string `json:"ticket_id"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	SourceBranch string `json:"source_branch"`
	TargetBranch string `json:"target_branch"`
}

// MergeRequest is the forge's view of an open change
type MergeRequest struct {
	ID           string            `json:"id"`
	State        MergeRequestState `json:"state"`
	SourceBranch string            `json:"source_branch"`
	TargetBranch string            `json:"target_branch"`
	URL          string            `json:"url,omitempty"`
}
