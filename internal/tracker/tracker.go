// Package tracker defines the issue-tracker capability the orchestrator
// consumes. Any provider satisfying Tracker is interchangeable; the core
// never depends on a concrete implementation.
package tracker

import (
	"context"

	"github.com/mjankowski/autodev/internal/events"
	"github.com/mjankowski/autodev/internal/types"
)

// Tracker is the issue-tracker capability contract.
//
// Calls fail with errors tagged by the faults package: unreachable backends
// are fatal, contention is transient, malformed ticket data is ticket-scoped.
type Tracker interface {
	// ListUnblocked returns tickets with no unfinished blocking dependency,
	// excluding merged and failed tickets.
	ListUnblocked(ctx context.Context) ([]*types.Ticket, error)

	// ListTickets returns every ticket regardless of status
	ListTickets(ctx context.Context) ([]*types.Ticket, error)

	// GetTicket returns a single ticket by ID
	GetTicket(ctx context.Context, id string) (*types.Ticket, error)

	// UpdateStatus records a ticket's new status
	UpdateStatus(ctx context.Context, id string, status types.TicketStatus) error

	// SaveProgress persists the ticket's orchestration fields (branch,
	// merge request ID, review round, failure reason, retries used).
	SaveProgress(ctx context.Context, t *types.Ticket) error

	// CloseTicket marks a ticket finished upstream
	CloseTicket(ctx context.Context, id string) error

	// Lifecycle
	Close() error
}

// EventStore persists audit events. The sqlite provider implements both
// Tracker and EventStore against the same database.
type EventStore interface {
	StoreEvent(ctx context.Context, event *events.Event) error
	RecentEvents(ctx context.Context, limit int) ([]*events.Event, error)
}
