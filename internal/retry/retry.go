package retry

import (
	"context"
	"fmt"
	"time"
)

// Options controls how Do re-runs a failing call.
type Options struct {
	// Attempts is the total number of calls, including the first one.
	Attempts int
	// Delay is the wait after the first failure; it doubles after every
	// further failure (Delay, 2*Delay, 4*Delay, ...).
	Delay time.Duration
	// OnRetry, if set, is called with the 1-indexed attempt that just failed.
	OnRetry func(attempt int, err error)
}

// Do runs fn until it succeeds, attempts are exhausted, or ctx is done.
// It returns nil on the first success, otherwise the last error seen.
func Do(ctx context.Context, opts Options, fn func() error) error {
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}

	delay := opts.Delay
	var lastErr error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == opts.Attempts {
			break
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, lastErr)
		}

		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, ctx.Err())
		}
	}
	return lastErr
}
