package orchestrator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mjankowski/autodev/internal/events"
	"github.com/mjankowski/autodev/internal/types"
)

// TicketOutcome records what happened to one ticket during a pass
type TicketOutcome struct {
	TicketID      string             `json:"ticket_id"`
	From          types.TicketStatus `json:"from"`
	To            types.TicketStatus `json:"to"`
	Trigger       string             `json:"trigger"`
	FailureReason string             `json:"failure_reason,omitempty"`
	RetriesUsed   int                `json:"retries_used,omitempty"`
}

// PassReport summarizes one full pass over the ticket set.
// It is safe for concurrent recording during the execute phase.
type PassReport struct {
	PassID     string    `json:"pass_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`

	mu       sync.Mutex
	Outcomes []TicketOutcome `json:"outcomes"`
}

func newPassReport(passID string, dryRun bool) *PassReport {
	return &PassReport{
		PassID:    passID,
		StartedAt: time.Now(),
		DryRun:    dryRun,
	}
}

func (r *PassReport) record(o TicketOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Outcomes = append(r.Outcomes, o)
}

// Merged counts tickets that reached merged this pass
func (r *PassReport) Merged() int { return r.count(types.StatusMerged) }

// Failed counts tickets that reached failed this pass
func (r *PassReport) Failed() int { return r.count(types.StatusFailed) }

func (r *PassReport) count(status types.TicketStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.Outcomes {
		if o.To == status && o.From != status {
			n++
		}
	}
	return n
}

// Summary renders the pass outcome as a short human-readable block
func (r *PassReport) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	label := "Pass"
	if r.DryRun {
		label = "Dry-run pass"
	}
	fmt.Fprintf(&b, "%s %s: %d ticket(s) advanced in %s\n",
		label, r.PassID, len(r.Outcomes), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	for _, o := range r.Outcomes {
		if o.FailureReason != "" {
			fmt.Fprintf(&b, "  %s: %s -> %s (%s) — %s\n", o.TicketID, o.From, o.To, o.Trigger, o.FailureReason)
			continue
		}
		fmt.Fprintf(&b, "  %s: %s -> %s (%s)\n", o.TicketID, o.From, o.To, o.Trigger)
	}
	return b.String()
}

// StatusReport is the snapshot returned by the status operation
type StatusReport struct {
	Tickets      []*types.Ticket `json:"tickets"`
	RecentEvents []*events.Event `json:"recent_events,omitempty"`
}
