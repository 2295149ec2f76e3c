package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mjankowski/autodev/internal/types"
)

func ticket(id string, status types.TicketStatus) types.Ticket {
	return types.Ticket{
		ID:     id,
		Title:  "Test ticket",
		Status: status,
		Branch: "autodev/" + id,
	}
}

func TestDecideReady(t *testing.T) {
	tests := []struct {
		name           string
		worktreeExists bool
		wantActions    []ActionKind
	}{
		{"no worktree creates one", false, []ActionKind{ActionCreateWorktree}},
		{"existing worktree reused", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(ticket("PROJ-1", types.StatusReady), Signals{WorktreeExists: tt.worktreeExists})
			assert.Equal(t, types.StatusInProgress, d.Ticket.Status)
			assert.Equal(t, tt.wantActions, d.Actions)
		})
	}
}

func TestDecideInProgress(t *testing.T) {
	t.Run("no result stays put", func(t *testing.T) {
		d := Decide(ticket("PROJ-1", types.StatusInProgress), Signals{})
		assert.Equal(t, types.StatusInProgress, d.Ticket.Status)
		assert.Empty(t, d.Actions)
	})

	t.Run("success pushes and opens merge request", func(t *testing.T) {
		d := Decide(ticket("PROJ-1", types.StatusInProgress), Signals{
			AgentResult: &types.AgentResult{Success: true, Summary: "done"},
		})
		assert.Equal(t, types.StatusInReview, d.Ticket.Status)
		assert.Equal(t, []ActionKind{ActionPushBranch, ActionOpenMergeRequest}, d.Actions)
	})

	t.Run("success with existing merge request only pushes", func(t *testing.T) {
		tk := ticket("PROJ-1", types.StatusInProgress)
		tk.MergeRequestID = "42"
		d := Decide(tk, Signals{AgentResult: &types.AgentResult{Success: true}})
		assert.Equal(t, types.StatusInReview, d.Ticket.Status)
		assert.Equal(t, []ActionKind{ActionPushBranch}, d.Actions)
	})

	t.Run("reported failure fails the ticket", func(t *testing.T) {
		d := Decide(ticket("PROJ-1", types.StatusInProgress), Signals{
			AgentResult: &types.AgentResult{Success: false, Summary: "tests kept failing"},
		})
		assert.Equal(t, types.StatusFailed, d.Ticket.Status)
		assert.Contains(t, d.Ticket.FailureReason, "tests kept failing")
		assert.Empty(t, d.Actions)
	})
}

func TestDecideInReview(t *testing.T) {
	t.Run("no signal loops", func(t *testing.T) {
		d := Decide(ticket("PROJ-1", types.StatusInReview), Signals{})
		assert.Equal(t, types.StatusInReview, d.Ticket.Status)
	})

	t.Run("approval advances", func(t *testing.T) {
		d := Decide(ticket("PROJ-1", types.StatusInReview), Signals{ApprovalSignal: true})
		assert.Equal(t, types.StatusApproved, d.Ticket.Status)
	})

	t.Run("reprocess wins over approval in the same batch", func(t *testing.T) {
		d := Decide(ticket("PROJ-1", types.StatusInReview), Signals{
			ApprovalSignal:  true,
			ReprocessSignal: true,
		})
		assert.Equal(t, types.StatusChangesNeeded, d.Ticket.Status)
		assert.Equal(t, []ActionKind{ActionCaptureComments}, d.Actions)
	})
}

func TestDecideChangesNeeded(t *testing.T) {
	tk := ticket("PROJ-1", types.StatusChangesNeeded)
	tk.ReviewRound = 1

	d := Decide(tk, Signals{})
	assert.Equal(t, types.StatusInProgress, d.Ticket.Status)
	assert.Equal(t, 2, d.Ticket.ReviewRound)
}

func TestDecideApproved(t *testing.T) {
	t.Run("clean rebase merges", func(t *testing.T) {
		d := Decide(ticket("PROJ-1", types.StatusApproved), Signals{
			Rebase: &types.RebaseResult{Clean: true},
		})
		assert.Equal(t, types.StatusMerged, d.Ticket.Status)
		assert.Equal(t, []ActionKind{ActionMerge, ActionRemoveWorktree, ActionCloseTicket}, d.Actions)
	})

	t.Run("conflict fails with the file list", func(t *testing.T) {
		d := Decide(ticket("PROJ-1", types.StatusApproved), Signals{
			Rebase: &types.RebaseResult{Clean: false, ConflictFiles: []string{"a.go", "b.go"}},
		})
		assert.Equal(t, types.StatusFailed, d.Ticket.Status)
		assert.Contains(t, d.Ticket.FailureReason, "a.go")
		assert.Contains(t, d.Ticket.FailureReason, "b.go")
		assert.Empty(t, d.Actions)
	})

	t.Run("no rebase result stays put", func(t *testing.T) {
		d := Decide(ticket("PROJ-1", types.StatusApproved), Signals{})
		assert.Equal(t, types.StatusApproved, d.Ticket.Status)
	})
}

func TestDecideTerminalStates(t *testing.T) {
	for _, status := range []types.TicketStatus{types.StatusMerged, types.StatusFailed} {
		d := Decide(ticket("PROJ-1", status), Signals{WorktreeExists: true, ApprovalSignal: true})
		assert.Equal(t, status, d.Ticket.Status)
		assert.Empty(t, d.Actions)
	}
}

func TestDecideDoesNotMutateInput(t *testing.T) {
	tk := ticket("PROJ-1", types.StatusReady)
	_ = Decide(tk, Signals{})
	assert.Equal(t, types.StatusReady, tk.Status)
}

func TestDecideRespectsValidTransitions(t *testing.T) {
	signals := []Signals{
		{},
		{WorktreeExists: true},
		{AgentResult: &types.AgentResult{Success: true}},
		{AgentResult: &types.AgentResult{Success: false}},
		{ApprovalSignal: true},
		{ReprocessSignal: true},
		{Rebase: &types.RebaseResult{Clean: true}},
		{Rebase: &types.RebaseResult{Clean: false}},
	}
	statuses := []types.TicketStatus{
		types.StatusReady, types.StatusInProgress, types.StatusInReview,
		types.StatusChangesNeeded, types.StatusApproved, types.StatusMerged, types.StatusFailed,
	}
	for _, status := range statuses {
		for _, sig := range signals {
			d := Decide(ticket("PROJ-1", status), sig)
			if d.Ticket.Status == status {
				continue
			}
			assert.True(t, status.CanTransitionTo(d.Ticket.Status),
				"illegal edge %s -> %s", status, d.Ticket.Status)
		}
	}
}

func TestDetectSignals(t *testing.T) {
	approval := []string{"LGTM", "/approve"}
	reprocess := []string{"/rework", "changes requested"}

	comment := func(body string) types.ReviewComment {
		return types.ReviewComment{Author: "alice", Body: body, CreatedAt: time.Now()}
	}

	tests := []struct {
		name          string
		comments      []types.ReviewComment
		wantReprocess bool
		wantApprove   bool
	}{
		{"empty", nil, false, false},
		{"plain chatter", []types.ReviewComment{comment("looking at this now")}, false, false},
		{"approval", []types.ReviewComment{comment("LGTM, nice work")}, false, true},
		{"approval case insensitive", []types.ReviewComment{comment("lgtm")}, false, true},
		{"reprocess", []types.ReviewComment{comment("/rework the error handling")}, true, false},
		{"reprocess phrase", []types.ReviewComment{comment("Changes Requested: see inline")}, true, false},
		{"both present", []types.ReviewComment{comment("lgtm"), comment("/rework one more thing")}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotReprocess, gotApprove := DetectSignals(tt.comments, reprocess, approval)
			assert.Equal(t, tt.wantReprocess, gotReprocess)
			assert.Equal(t, tt.wantApprove, gotApprove)
		})
	}
}

func TestFail(t *testing.T) {
	failed := Fail(ticket("PROJ-1", types.StatusInProgress), "agent timed out", 4)
	assert.Equal(t, types.StatusFailed, failed.Status)
	assert.Equal(t, "agent timed out", failed.FailureReason)
	assert.Equal(t, 4, failed.RetriesUsed)
}
