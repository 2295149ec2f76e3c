// Package sqlite implements the tracker capability on a local SQLite
// database. The database is the operator's ticket backlog; the orchestrator
// treats it like any remote tracker.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/mjankowski/autodev/internal/events"
	"github.com/mjankowski/autodev/internal/faults"
	"github.com/mjankowski/autodev/internal/types"
)

// Store implements tracker.Tracker and tracker.EventStore using SQLite
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) the ticket database at path.
// Special value ":memory:" creates an in-memory database for tests.
func New(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, faults.Fatal("tracker.open", fmt.Errorf("failed to create directory: %w", err))
		}
		// WAL for concurrent readers, busy timeout for lock contention
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, faults.Fatal("tracker.open", fmt.Errorf("failed to open database: %w", err))
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, faults.Fatal("tracker.open", fmt.Errorf("failed to ping database: %w", err))
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, faults.Fatal("tracker.open", fmt.Errorf("failed to initialize schema: %w", err))
	}

	return &Store{db: db}, nil
}

// classify maps a database error to the taxonomy: lock contention is
// transient, everything else from a local database is ticket-scoped for
// per-ticket operations (the caller tags fatal conditions itself).
func classify(op string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return faults.Transient(op, err)
	}
	return faults.TicketScoped(op, err)
}

const ticketColumns = "id, title, description, status, branch, merge_request_id, review_round, last_comment_at, failure_reason, retries_used, created_at, updated_at"

func scanTicket(row interface{ Scan(...any) error }) (*types.Ticket, error) {
	var t types.Ticket
	var lastCommentAt, createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Branch,
		&t.MergeRequestID, &t.ReviewRound, &lastCommentAt, &t.FailureReason,
		&t.RetriesUsed, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if lastCommentAt != "" {
		t.LastCommentAt, _ = time.Parse(time.RFC3339Nano, lastCommentAt)
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &t, nil
}

// formatCommentTime keeps the zero time as an empty string in the database
func formatCommentTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

// CreateTicket inserts a new ticket. Used by the init/import surface and
// tests; the orchestrator itself never creates tickets.
func (s *Store) CreateTicket(ctx context.Context, t *types.Ticket) error {
	if err := t.Validate(); err != nil {
		return faults.TicketScoped("tracker.create_ticket", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (id, title, description, status, branch, merge_request_id, review_round, last_comment_at, failure_reason, retries_used, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, string(t.Status), t.Branch,
		t.MergeRequestID, t.ReviewRound, formatCommentTime(t.LastCommentAt),
		t.FailureReason, t.RetriesUsed, now, now)
	if err != nil {
		return classify("tracker.create_ticket", err)
	}
	return nil
}

// AddDependency records that ticketID is blocked by dependsOnID
func (s *Store) AddDependency(ctx context.Context, ticketID, dependsOnID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ticket_deps (ticket_id, depends_on_id) VALUES (?, ?)`,
		ticketID, dependsOnID)
	if err != nil {
		return classify("tracker.add_dependency", err)
	}
	return nil
}

// ListUnblocked returns all tickets eligible for processing: not merged, not
// failed, and with no blocking dependency that has not merged yet.
func (s *Store) ListUnblocked(ctx context.Context) ([]*types.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets t
		WHERE t.status NOT IN ('merged', 'failed')
		  AND NOT EXISTS (
			SELECT 1 FROM ticket_deps d
			JOIN tickets blocker ON blocker.id = d.depends_on_id
			WHERE d.ticket_id = t.id AND blocker.status != 'merged'
		  )
		ORDER BY t.id`)
	if err != nil {
		return nil, classify("tracker.list_unblocked", err)
	}
	defer rows.Close()

	var tickets []*types.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, faults.TicketScoped("tracker.list_unblocked", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("tracker.list_unblocked", err)
	}
	return tickets, nil
}

// ListTickets returns every ticket regardless of status, in ID order
func (s *Store) ListTickets(ctx context.Context) ([]*types.Ticket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets ORDER BY id`)
	if err != nil {
		return nil, classify("tracker.list_tickets", err)
	}
	defer rows.Close()

	var tickets []*types.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, faults.TicketScoped("tracker.list_tickets", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("tracker.list_tickets", err)
	}
	return tickets, nil
}

// GetTicket returns a single ticket by ID
func (s *Store) GetTicket(ctx context.Context, id string) (*types.Ticket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, faults.TicketScoped("tracker.get_ticket", fmt.Errorf("ticket %s not found", id))
		}
		return nil, classify("tracker.get_ticket", err)
	}
	return t, nil
}

// UpdateStatus records a ticket's new status
func (s *Store) UpdateStatus(ctx context.Context, id string, status types.TicketStatus) error {
	if !status.IsValid() {
		return faults.TicketScoped("tracker.update_status", fmt.Errorf("invalid status: %s", status))
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), now, id)
	if err != nil {
		return classify("tracker.update_status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return faults.TicketScoped("tracker.update_status", fmt.Errorf("ticket %s not found", id))
	}
	return nil
}

// SaveProgress persists the orchestration fields of a ticket
func (s *Store) SaveProgress(ctx context.Context, t *types.Ticket) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`UPDATE tickets
		 SET status = ?, branch = ?, merge_request_id = ?, review_round = ?,
		     last_comment_at = ?, failure_reason = ?, retries_used = ?, updated_at = ?
		 WHERE id = ?`,
		string(t.Status), t.Branch, t.MergeRequestID, t.ReviewRound,
		formatCommentTime(t.LastCommentAt), t.FailureReason, t.RetriesUsed, now, t.ID)
	if err != nil {
		return classify("tracker.save_progress", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return faults.TicketScoped("tracker.save_progress", fmt.Errorf("ticket %s not found", t.ID))
	}
	return nil
}

// CloseTicket marks a ticket closed upstream (status merged, closed_at set)
func (s *Store) CloseTicket(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET status = 'merged', closed_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id)
	if err != nil {
		return classify("tracker.close_ticket", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return faults.TicketScoped("tracker.close_ticket", fmt.Errorf("ticket %s not found", id))
	}
	return nil
}

// StoreEvent persists an audit event
func (s *Store) StoreEvent(ctx context.Context, e *events.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, type, ticket_id, pass_id, severity, message, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.TicketID, e.PassID, string(e.Severity),
		e.Message, e.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return classify("tracker.store_event", err)
	}
	return nil
}

// RecentEvents returns the newest events, newest first
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]*events.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, ticket_id, pass_id, severity, message, timestamp
		 FROM events ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, classify("tracker.recent_events", err)
	}
	defer rows.Close()

	var out []*events.Event
	for rows.Next() {
		var e events.Event
		var ts string
		if err := rows.Scan(&e.ID, &e.Type, &e.TicketID, &e.PassID, &e.Severity, &e.Message, &ts); err != nil {
			return nil, faults.TicketScoped("tracker.recent_events", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("tracker.recent_events", err)
	}
	return out, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
