// Package backoff implements retry policies and a context-aware retry loop.
package backoff

import (
	"errors"
	"math"
	"sync"
	"time"
)

// ErrRetriesExhausted is returned by a policy once its retry budget is spent.
var ErrRetriesExhausted = errors.New("retries exhausted")

type (
	// RetryPolicy computes the wait before the next attempt.
	RetryPolicy interface {
		// ComputeNextInterval returns the interval to wait before retry number
		// retryCount, or an error when no further retry should happen.
		ComputeNextInterval(retryCount int, elapsed time.Duration, err error) (time.Duration, error)
	}

	// Retrier tracks the state of one retry sequence.
	Retrier interface {
		Next(err error) (time.Duration, error)
		Reset()
	}
)

const (
	unlimitedRetries     = 0
	defaultBackoffFactor = 2.0
	defaultMaxInterval   = 10 * time.Second
)

// ExponentialBackoffPolicy multiplies the interval by BackoffFactor after
// every retry, capped at MaxInterval.
type ExponentialBackoffPolicy struct {
	InitialInterval time.Duration
	BackoffFactor   float64
	MaxInterval     time.Duration
	// MaxRetries of 0 means unlimited retries.
	MaxRetries int
}

// NewExponentialBackoffPolicy returns a doubling policy starting at initial.
func NewExponentialBackoffPolicy(initial time.Duration) *ExponentialBackoffPolicy {
	return &ExponentialBackoffPolicy{
		InitialInterval: initial,
		BackoffFactor:   defaultBackoffFactor,
		MaxInterval:     defaultMaxInterval,
		MaxRetries:      unlimitedRetries,
	}
}

func (p *ExponentialBackoffPolicy) ComputeNextInterval(retryCount int, _ time.Duration, _ error) (time.Duration, error) {
	if p.MaxRetries > 0 && retryCount >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}

	interval := float64(p.InitialInterval) * math.Pow(p.BackoffFactor, float64(retryCount))
	if p.MaxInterval > 0 && interval > float64(p.MaxInterval) {
		interval = float64(p.MaxInterval)
	}
	return time.Duration(interval), nil
}

// ConstantBackoffPolicy waits the same Interval between every attempt.
type ConstantBackoffPolicy struct {
	Interval   time.Duration
	MaxRetries int
}

// NewConstantBackoffPolicy returns an unlimited constant policy.
func NewConstantBackoffPolicy(interval time.Duration) *ConstantBackoffPolicy {
	return &ConstantBackoffPolicy{Interval: interval, MaxRetries: unlimitedRetries}
}

func (p *ConstantBackoffPolicy) ComputeNextInterval(retryCount int, _ time.Duration, _ error) (time.Duration, error) {
	if p.MaxRetries > 0 && retryCount >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}
	return p.Interval, nil
}

// NewRetrier creates a Retrier driven by policy.
func NewRetrier(policy RetryPolicy) Retrier {
	return &retrier{policy: policy}
}

type retrier struct {
	mu      sync.Mutex
	policy  RetryPolicy
	count   int
	started time.Time
}

func (r *retrier) Next(err error) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started.IsZero() {
		r.started = time.Now()
	}

	interval, perr := r.policy.ComputeNextInterval(r.count, time.Since(r.started), err)
	if perr != nil {
		return 0, perr
	}
	r.count++
	return interval, nil
}

func (r *retrier) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count = 0
	r.started = time.Time{}
}
