package faults

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig holds retry configuration for collaborator calls
type RetryConfig struct {
	MaxRetries        int           // Maximum number of retries (default: 3)
	InitialBackoff    time.Duration // Initial backoff duration (default: 1s)
	MaxBackoff        time.Duration // Maximum backoff duration (default: 30s)
	BackoffMultiplier float64       // Backoff multiplier (default: 2.0)
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// Retry executes fn, retrying transient failures with exponential backoff.
//
// Only errors classified KindTransient are retried. Ticket-scoped and fatal
// errors return immediately with their original classification. When the
// retry budget is exhausted, the transient failure escalates to
// ticket-scoped with the consumed attempt count recorded, per the
// propagation contract: transient failures are never surfaced as such.
func Retry(ctx context.Context, cfg RetryConfig, op string, fn func(context.Context) error) error {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if Classify(err) != KindTransient {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return Fatal(op, fmt.Errorf("context canceled: %w", ctx.Err()))
		}

		select {
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		case <-ctx.Done():
			return Fatal(op, fmt.Errorf("context canceled during backoff: %w", ctx.Err()))
		}
	}

	// Transient budget exhausted: escalate to ticket-scoped
	return &Error{
		Kind:     KindTicketScoped,
		Op:       op,
		Attempts: cfg.MaxRetries + 1,
		Err:      lastErr,
	}
}
