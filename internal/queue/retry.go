package queue

import (
	"context"
	"fmt"
	"time"
)

// DefaultRetryBase is the first backoff delay; each subsequent attempt
// doubles it.
const DefaultRetryBase = 250 * time.Millisecond

// Retry runs fn up to attempts times with bounded exponential backoff.
// The ceiling is fixed: when the last attempt fails the work is abandoned
// and the final error returned for the caller to log.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = DefaultRetryBase
	}

	delay := base
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return fmt.Errorf("abandoned after %d attempts: %w", attempts, err)
}
