// Package loop implements a generic retry/poll driver, adapted from the
// teacher's pkg/loop. PAPI has exactly two background tasks (spec §5): the
// cluster-stats poller and the hourly catalog refresh. Both are expressed
// as a loop.Task over this driver instead of a bespoke goroutine+ticker
// each, so their backoff/cancellation semantics are uniform and testable.
package loop

import (
	"context"
	"fmt"
	"time"
)

// Next tells Start what to do after one task invocation.
type Next struct {
	err      error
	quit     bool
	interval time.Duration
}

func (n Next) String() string {
	if n.err != nil {
		return fmt.Sprintf("[break] with error: %v", n.err)
	}
	if n.quit {
		return "[break] without error"
	}
	return fmt.Sprintf("[continue] interval: %s", n.interval)
}

// Continue schedules another run after interval.
func Continue(interval time.Duration) Next {
	return Next{interval: interval}
}

// Break stops the loop; err may be nil for a clean stop.
func Break(err error) Next {
	return Next{quit: true, err: err}
}

// Task is one step of a loop: given the context and the last value,
// produce a new value and a Next directive.
type Task[T any] func(context.Context, T) (T, Next)

type loopConfig struct {
	ctx      context.Context
	deferred func()
}

// Option customizes one iteration of Start.
type Option func(*loopConfig) *loopConfig

// WithDeferred registers a cleanup to run after each task invocation,
// before the next sleep. Useful for per-iteration metrics flushes.
func WithDeferred(f func()) Option {
	return func(lc *loopConfig) *loopConfig {
		lc.deferred = f
		return lc
	}
}

// Start runs task repeatedly until it returns Break, or ctx is cancelled.
// It always returns the last value produced, together with a non-nil error
// only when the loop broke with one or ctx was cancelled first.
func Start[T any](ctx context.Context, init T, task Task[T], opts ...Option) (T, error) {
	select {
	case <-ctx.Done():
		return init, ctx.Err()
	default:
	}

	value := init
	for {
		lc := &loopConfig{ctx: ctx}
		for _, opt := range opts {
			lc = opt(lc)
		}

		v, n := func() (T, Next) {
			ctx := lc.ctx
			if lc.deferred != nil {
				defer lc.deferred()
			}
			return task(ctx, value)
		}()

		if n.err != nil {
			return v, n.err
		} else if n.quit {
			return v, nil
		}
		value = v

		timer := time.NewTimer(n.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return value, ctx.Err()
		case <-timer.C:
		}
	}
}
