package ingest

import (
	"context"
	"errors"
	"math"
	"time"
)

// RetryPolicy decides whether a failed attempt is retried and how long to wait first.
type RetryPolicy interface {
	ShouldRetry(err error, retries int) bool
	Backoff(retries int) time.Duration
}

// ExponentialRetryPolicy retries transient failures with a doubling delay.
type ExponentialRetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewExponentialRetryPolicy builds a policy allowing maxRetries retries after
// the first attempt, waiting baseDelay, 2*baseDelay, 4*baseDelay and so on.
func NewExponentialRetryPolicy(maxRetries int, baseDelay time.Duration) *ExponentialRetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &ExponentialRetryPolicy{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   time.Minute,
	}
}

// ShouldRetry reports whether err is transient and the budget allows another attempt.
// retries is the number of retries already made.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, retries int) bool {
	if err == nil {
		return false
	}
	if retries >= p.maxRetries {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return !statusErr.Permanent()
	}
	if IsTimeout(err) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Connection refused, DNS failures and other errors without a status.
	return true
}

// Backoff returns the wait before retry number retries+1.
func (p *ExponentialRetryPolicy) Backoff(retries int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(retries))
	if delay > float64(p.maxDelay) {
		return p.maxDelay
	}
	return time.Duration(delay)
}
