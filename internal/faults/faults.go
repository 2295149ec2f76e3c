// Package faults defines the error taxonomy for collaborator calls.
//
// Every failure raised by a capability provider (tracker, agent, forge,
// worktree manager) is tagged with exactly one Kind, which determines how
// the orchestrator reacts: retry, fail the owning ticket, or abort the pass.
// Classification is carried on the error value itself; the orchestrator
// never guesses from message text.
package faults

import (
	"errors"
	"fmt"
)

// Kind categorizes a collaborator failure
type Kind int

const (
	// KindTransient failures (network timeouts, lock contention) are retried
	// with backoff before being escalated to ticket-scoped.
	KindTransient Kind = iota

	// KindTicketScoped failures (agent reported failure, merge conflict,
	// malformed ticket data) fail the owning ticket; the pass continues.
	KindTicketScoped

	// KindFatal failures (tracker/forge/repository unreachable, invalid
	// configuration) abort the entire pass immediately.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindTicketScoped:
		return "ticket-scoped"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a classified collaborator failure
type Error struct {
	Kind     Kind
	Op       string // the collaborator operation that failed, e.g. "forge.merge"
	Attempts int    // retries consumed before this error was surfaced
	Err      error
}

func (e *Error) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s failed after %d attempts (%s): %v", e.Op, e.Attempts, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient tags err as a transient failure of op
func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// TicketScoped tags err as a ticket-scoped failure of op
func TicketScoped(op string, err error) error {
	return &Error{Kind: KindTicketScoped, Op: op, Err: err}
}

// Fatal tags err as a fatal failure of op
func Fatal(op string, err error) error {
	return &Error{Kind: KindFatal, Op: op, Err: err}
}

// Classify returns the Kind carried by err.
// Untagged errors default to ticket-scoped: an unknown failure should never
// take down the whole pass, only the ticket that raised it.
func Classify(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTicketScoped
}

// Attempts returns the retry count recorded on err, or 0 if untagged
func Attempts(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Attempts
	}
	return 0
}

// IsTransient reports whether err is tagged transient
func IsTransient(err error) bool { return err != nil && Classify(err) == KindTransient }

// IsFatal reports whether err is tagged fatal
func IsFatal(err error) bool { return err != nil && Classify(err) == KindFatal }
