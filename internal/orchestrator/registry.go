package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/mjankowski/autodev/internal/types"
)

// registry is the in-memory working set of tickets for the current process.
//
// It is rebuilt from the tracker, the worktree list, and the forge on every
// pass; nothing in it survives a restart. Alongside each ticket it keeps the
// review comments not yet addressed by the agent and the identities of
// comments already inspected for signals, so the same comment never triggers
// reprocessing twice. The newest inspected comment time is carried on the
// ticket itself (LastCommentAt) and persisted by the tracker, which lets a
// fresh process re-seed this state from the forge.
type registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	ticket    types.Ticket
	pending   []types.ReviewComment
	seen      map[string]bool
	watermark time.Time
}

// commentKey identifies a comment across fetches. Forges report
// second-granularity times, so the timestamp alone is not enough.
func commentKey(c types.ReviewComment) string {
	return c.CreatedAt.UTC().Format(time.RFC3339Nano) + "\x00" + c.Author + "\x00" + c.Body
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

// upsert stores the ticket, preserving any accumulated comment state.
// A new entry starts its watermark from the ticket's persisted
// LastCommentAt, so signals applied before a restart are not replayed.
func (r *registry) upsert(t types.Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[t.ID]; ok {
		e.ticket = t
		return
	}
	r.entries[t.ID] = &entry{
		ticket:    t,
		seen:      make(map[string]bool),
		watermark: t.LastCommentAt,
	}
}

// has reports whether the ticket is already tracked
func (r *registry) has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// ticket returns a copy of the tracked ticket
func (r *registry) ticket(id string) (types.Ticket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return types.Ticket{}, false
	}
	return e.ticket, true
}

// inStatus returns copies of all tickets in the given status, in ascending
// ticket ID order. Merge sequencing depends on this ordering.
func (r *registry) inStatus(status types.TicketStatus) []types.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []types.Ticket
	for _, e := range r.entries {
		if e.ticket.Status == status {
			out = append(out, e.ticket)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return types.CompareTicketIDs(out[i].ID, out[j].ID) < 0
	})
	return out
}

// all returns copies of every tracked ticket, in ascending ID order
func (r *registry) all() []types.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.Ticket, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.ticket)
	}
	sort.Slice(out, func(i, j int) bool {
		return types.CompareTicketIDs(out[i].ID, out[j].ID) < 0
	})
	return out
}

// recordComments folds freshly fetched comments into the entry and returns
// only the ones not inspected before. Identity is the comment itself, not
// its timestamp, so two comments sharing a second are both reported.
// Returned comments are the batch to inspect for signals; all of them join
// the pending set until the ticket merges.
func (r *registry) recordComments(id string, comments []types.ReviewComment) []types.ReviewComment {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil
	}

	var fresh []types.ReviewComment
	for _, c := range comments {
		key := commentKey(c)
		if e.seen[key] {
			continue
		}
		e.seen[key] = true
		fresh = append(fresh, c)
		if c.CreatedAt.After(e.watermark) {
			e.watermark = c.CreatedAt
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	e.pending = append(e.pending, fresh...)
	return fresh
}

// seedPending reconstructs comment state lost across a restart: every
// comment at or before the persisted watermark was inspected in a previous
// process and is still unaddressed, so it re-enters the pending set without
// counting as fresh. Comments beyond the watermark are left for the sync
// phase to pick up.
func (r *registry) seedPending(id string, comments []types.ReviewComment) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || len(e.seen) > 0 || len(e.pending) > 0 {
		return
	}
	for _, c := range comments {
		if c.CreatedAt.After(e.watermark) {
			continue
		}
		e.seen[commentKey(c)] = true
		e.pending = append(e.pending, c)
	}
}

// watermark returns the newest inspected comment time for a ticket
func (r *registry) commentWatermark(id string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e.watermark
	}
	return time.Time{}
}

// pending returns the accumulated unaddressed comments for a ticket
func (r *registry) pending(id string) []types.ReviewComment {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil
	}
	out := make([]types.ReviewComment, len(e.pending))
	copy(out, e.pending)
	return out
}

// retire drops a ticket from the working set (merged, or no longer unblocked)
func (r *registry) retire(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}
