package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjankowski/autodev/internal/events"
	"github.com/mjankowski/autodev/internal/faults"
	"github.com/mjankowski/autodev/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTicket(id, title string) *types.Ticket {
	return &types.Ticket{
		ID:     id,
		Title:  title,
		Status: types.StatusReady,
		Branch: types.BranchName("autodev", id),
	}
}

func TestCreateAndGetTicket(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateTicket(ctx, newTicket("PROJ-1", "Add login page")))

	got, err := store.GetTicket(ctx, "PROJ-1")
	require.NoError(t, err)
	assert.Equal(t, "Add login page", got.Title)
	assert.Equal(t, types.StatusReady, got.Status)
	assert.Equal(t, "autodev/PROJ-1", got.Branch)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetTicketNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetTicket(context.Background(), "PROJ-404")
	require.Error(t, err)
	assert.Equal(t, faults.KindTicketScoped, faults.Classify(err))
}

func TestListUnblocked(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateTicket(ctx, newTicket("PROJ-1", "Base schema")))
	require.NoError(t, store.CreateTicket(ctx, newTicket("PROJ-2", "API on top of schema")))
	require.NoError(t, store.CreateTicket(ctx, newTicket("PROJ-3", "Unrelated work")))
	require.NoError(t, store.AddDependency(ctx, "PROJ-2", "PROJ-1"))

	ids := func(ts []*types.Ticket) []string {
		var out []string
		for _, tk := range ts {
			out = append(out, tk.ID)
		}
		return out
	}

	// PROJ-2 is blocked until PROJ-1 merges
	unblocked, err := store.ListUnblocked(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"PROJ-1", "PROJ-3"}, ids(unblocked))

	require.NoError(t, store.UpdateStatus(ctx, "PROJ-1", types.StatusMerged))

	unblocked, err = store.ListUnblocked(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"PROJ-2", "PROJ-3"}, ids(unblocked))
}

func TestListUnblockedExcludesFailedAndMerged(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateTicket(ctx, newTicket("PROJ-1", "Done already")))
	require.NoError(t, store.CreateTicket(ctx, newTicket("PROJ-2", "Broken")))
	require.NoError(t, store.CreateTicket(ctx, newTicket("PROJ-3", "Live")))
	require.NoError(t, store.UpdateStatus(ctx, "PROJ-1", types.StatusMerged))
	require.NoError(t, store.UpdateStatus(ctx, "PROJ-2", types.StatusFailed))

	unblocked, err := store.ListUnblocked(ctx)
	require.NoError(t, err)
	require.Len(t, unblocked, 1)
	assert.Equal(t, "PROJ-3", unblocked[0].ID)
}

func TestSaveProgress(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tk := newTicket("PROJ-1", "Add login page")
	require.NoError(t, store.CreateTicket(ctx, tk))

	commentAt := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	tk.Status = types.StatusInReview
	tk.MergeRequestID = "42"
	tk.ReviewRound = 2
	tk.LastCommentAt = commentAt
	tk.RetriesUsed = 1
	require.NoError(t, store.SaveProgress(ctx, tk))

	got, err := store.GetTicket(ctx, "PROJ-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInReview, got.Status)
	assert.Equal(t, "42", got.MergeRequestID)
	assert.Equal(t, 2, got.ReviewRound)
	assert.True(t, got.LastCommentAt.Equal(commentAt))
	assert.Equal(t, 1, got.RetriesUsed)
}

func TestUpdateStatusUnknownTicket(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateStatus(context.Background(), "PROJ-404", types.StatusInProgress)
	require.Error(t, err)
	assert.Equal(t, faults.KindTicketScoped, faults.Classify(err))
}

func TestCloseTicket(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateTicket(ctx, newTicket("PROJ-1", "Ship it")))
	require.NoError(t, store.CloseTicket(ctx, "PROJ-1"))

	got, err := store.GetTicket(ctx, "PROJ-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusMerged, got.Status)
}

func TestEventRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e1 := events.NewStatusTransition("pass-1", "PROJ-1", "ready", "in_progress", "worktree_absent")
	e2 := events.NewTicketFailed("pass-1", "PROJ-2", "rebase conflict: main.go")
	require.NoError(t, store.StoreEvent(ctx, e1))
	require.NoError(t, store.StoreEvent(ctx, e2))

	got, err := store.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Newest first
	assert.Equal(t, events.EventTypeTicketFailed, got[0].Type)
	assert.Equal(t, events.SeverityError, got[0].Severity)
	assert.Equal(t, events.EventTypeStatusTransition, got[1].Type)
}
