package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjankowski/autodev/internal/types"
)

func TestRecordCommentsSameSecond(t *testing.T) {
	reg := newRegistry()
	reg.upsert(types.Ticket{ID: "PROJ-1", Status: types.StatusInReview})

	// GitHub reports comment times at second granularity; a burst of review
	// comments routinely shares a timestamp.
	at := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	burst := []types.ReviewComment{
		{Author: "alice", Body: "/rework handle empty input", CreatedAt: at},
		{Author: "bob", Body: "LGTM once that lands", CreatedAt: at},
	}

	fresh := reg.recordComments("PROJ-1", burst)
	require.Len(t, fresh, 2, "equal timestamps are distinct comments")

	// A refetch reports nothing new
	assert.Empty(t, reg.recordComments("PROJ-1", burst))

	// A later comment sharing the watermark second is still new
	late := types.ReviewComment{Author: "carol", Body: "one more thing", CreatedAt: at}
	fresh = reg.recordComments("PROJ-1", append(burst, late))
	require.Len(t, fresh, 1)
	assert.Equal(t, "carol", fresh[0].Author)

	assert.Len(t, reg.pending("PROJ-1"), 3)
	assert.Equal(t, at, reg.commentWatermark("PROJ-1"))
}

func TestSeedPendingStopsAtWatermark(t *testing.T) {
	at := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	reg := newRegistry()
	reg.upsert(types.Ticket{ID: "PROJ-1", Status: types.StatusInReview, LastCommentAt: at})

	reg.seedPending("PROJ-1", []types.ReviewComment{
		{Author: "alice", Body: "inspected before the restart", CreatedAt: at},
		{Author: "bob", Body: "arrived after", CreatedAt: at.Add(time.Minute)},
	})

	pending := reg.pending("PROJ-1")
	require.Len(t, pending, 1)
	assert.Equal(t, "alice", pending[0].Author)

	// The un-seeded comment is fresh when sync fetches it
	fresh := reg.recordComments("PROJ-1", []types.ReviewComment{
		{Author: "alice", Body: "inspected before the restart", CreatedAt: at},
		{Author: "bob", Body: "arrived after", CreatedAt: at.Add(time.Minute)},
	})
	require.Len(t, fresh, 1)
	assert.Equal(t, "bob", fresh[0].Author)
}
