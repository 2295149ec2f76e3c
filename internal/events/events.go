// Package events defines the audit trail records written during a pass.
//
// Events are persisted through the tracker store and surfaced by the status
// command; they are observability only and never drive decisions.
package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes audit trail events
type EventType string

const (
	// EventTypeStatusTransition indicates a ticket moved between statuses
	EventTypeStatusTransition EventType = "status_transition"
	// EventTypeWorktreeCreated indicates a worktree and branch were created
	EventTypeWorktreeCreated EventType = "worktree_created"
	// EventTypeAgentInvoked indicates a coding agent invocation started
	EventTypeAgentInvoked EventType = "agent_invoked"
	// EventTypeAgentCompleted indicates a coding agent invocation finished
	EventTypeAgentCompleted EventType = "agent_completed"
	// EventTypeMergeRequestOpened indicates a merge request was opened
	EventTypeMergeRequestOpened EventType = "merge_request_opened"
	// EventTypeMerged indicates a merge request was merged
	EventTypeMerged EventType = "merged"
	// EventTypeRetryEscalated indicates a transient failure exhausted its retries
	EventTypeRetryEscalated EventType = "retry_escalated"
	// EventTypeTicketFailed indicates a ticket transitioned to failed
	EventTypeTicketFailed EventType = "ticket_failed"
	// EventTypePassCompleted indicates a full pass finished
	EventTypePassCompleted EventType = "pass_completed"
)

// Severity indicates how noteworthy an event is
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is a single audit trail entry
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id,omitempty"`
	PassID    string    `json:"pass_id"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates an event with a fresh ID and the current time
func New(eventType EventType, passID, ticketID string, severity Severity, message string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		TicketID:  ticketID,
		PassID:    passID,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewStatusTransition records a ticket status change
func NewStatusTransition(passID, ticketID, from, to, trigger string) *Event {
	return New(EventTypeStatusTransition, passID, ticketID, SeverityInfo,
		fmt.Sprintf("status transition: %s -> %s (trigger: %s)", from, to, trigger))
}

// NewTicketFailed records a ticket failure with its reason
func NewTicketFailed(passID, ticketID, reason string) *Event {
	return New(EventTypeTicketFailed, passID, ticketID, SeverityError,
		fmt.Sprintf("ticket failed: %s", reason))
}
