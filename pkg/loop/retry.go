package loop

import (
	"context"
	"time"
)

// RetryOutboundRead retries fn up to maxAttempts times with exponential
// backoff, per spec §7: "outbound reads (catalog fetches, stats polls)
// retry with exponential backoff up to 3 attempts." Writes are never
// retried by PAPI (spec §7) and must not call this helper.
func RetryOutboundRead(ctx context.Context, maxAttempts int, base time.Duration, fn func() error) error {
	var lastErr error
	backoff := base
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == maxAttempts-1 {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return lastErr
}
