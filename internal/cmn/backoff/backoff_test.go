package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoffPolicy(t *testing.T) {
	t.Parallel()

	p := NewExponentialBackoffPolicy(25 * time.Millisecond)
	p.MaxInterval = 150 * time.Millisecond
	p.MaxRetries = 4

	want := []time.Duration{
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		150 * time.Millisecond,
	}
	for i, w := range want {
		got, err := p.ComputeNextInterval(i, 0, nil)
		require.NoError(t, err)
		assert.Equal(t, w, got, "retry %d", i)
	}

	_, err := p.ComputeNextInterval(4, 0, nil)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestRetrier_Reset(t *testing.T) {
	t.Parallel()

	p := NewConstantBackoffPolicy(time.Millisecond)
	p.MaxRetries = 1
	r := NewRetrier(p)

	_, err := r.Next(nil)
	require.NoError(t, err)
	_, err = r.Next(nil)
	require.ErrorIs(t, err, ErrRetriesExhausted)

	r.Reset()
	_, err = r.Next(nil)
	assert.NoError(t, err)
}

func TestRetry(t *testing.T) {
	t.Parallel()

	t.Run("SucceedsAfterFailures", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		op := func(context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("not yet")
			}
			return nil
		}

		err := Retry(context.Background(), op, NewConstantBackoffPolicy(5*time.Millisecond), nil)
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("NonRetriableError", func(t *testing.T) {
		t.Parallel()
		permanent := errors.New("permanent")
		attempts := 0
		op := func(context.Context) error {
			attempts++
			return permanent
		}

		err := Retry(context.Background(), op, NewConstantBackoffPolicy(5*time.Millisecond),
			func(err error) bool { return !errors.Is(err, permanent) })
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, attempts)
	})

	t.Run("ExhaustedReturnsLastError", func(t *testing.T) {
		t.Parallel()
		failure := errors.New("still failing")
		attempts := 0
		op := func(context.Context) error {
			attempts++
			return failure
		}

		p := NewConstantBackoffPolicy(time.Millisecond)
		p.MaxRetries = 2
		err := Retry(context.Background(), op, p, nil)
		assert.ErrorIs(t, err, failure)
		assert.Equal(t, 3, attempts)
	})

	t.Run("DeadlineDuringWait", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		start := time.Now()
		err := Retry(ctx, func(context.Context) error { return errors.New("x") },
			NewConstantBackoffPolicy(time.Second), nil)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("CanceledBeforeFirstAttempt", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		err := Retry(ctx, func(context.Context) error { called = true; return nil },
			NewConstantBackoffPolicy(time.Millisecond), nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})
}
