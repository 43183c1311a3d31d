package backoff

import (
	"context"
	"time"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger/tag"
)

type (
	// Operation is retried until it returns nil.
	Operation func(ctx context.Context) error

	// IsRetriableFunc reports whether err should trigger another attempt.
	IsRetriableFunc func(err error) bool
)

const minInterval = time.Millisecond

// Retry runs op until it succeeds, returns a non-retriable error, the policy
// gives up, or ctx is done. When the policy gives up the last error from op is
// returned. A nil isRetriable treats every error as retriable.
func Retry(ctx context.Context, op Operation, policy RetryPolicy, isRetriable IsRetriableFunc) error {
	if isRetriable == nil {
		isRetriable = func(error) bool { return true }
	}

	r := NewRetrier(policy)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Debug(ctx, "Retried operation succeeded", tag.Attempt(attempt))
			}
			return nil
		}
		if !isRetriable(err) {
			return err
		}

		interval, nerr := r.Next(err)
		if nerr != nil {
			logger.Debug(ctx, "Retry attempts exhausted", tag.Attempt(attempt), tag.Error(err))
			return err
		}

		if err := wait(ctx, max(interval, minInterval)); err != nil {
			return err
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
