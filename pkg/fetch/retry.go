package fetch

import (
	"context"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	fetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_fetch_retries_total",
		Help: "Total number of retry attempts by provider and error kind",
	}, []string{"provider", "kind"})

	fetchRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "etl_fetch_retry_backoff_seconds",
		Help:    "Backoff duration for retries by provider and error kind",
		Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300, 600},
	}, []string{"provider", "kind"})

	fetchRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_fetch_retry_exhausted_total",
		Help: "Total number of page fetches that exhausted their attempts by provider and error kind",
	}, []string{"provider", "kind"})
)

// RetryPolicy holds the per-page retry configuration.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of HTTP attempts per page (including the first).
	MaxAttempts int

	// CourtesyDelay is slept before every attempt, independent of backoff.
	CourtesyDelay time.Duration

	// BaseDelay is the base of the exponential curve: BaseDelay * 2^attempt.
	BaseDelay time.Duration

	// MaxDelay caps the exponential curve. Zero means uncapped.
	MaxDelay time.Duration

	// RateLimitCooldown is the fixed wait after a rate-limit classification.
	RateLimitCooldown time.Duration

	// OverloadMultiplier scales the exponential curve for overload classifications.
	OverloadMultiplier float64

	// RequestTimeout is the hard timeout of a single HTTP attempt.
	RequestTimeout time.Duration
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:        8,
		CourtesyDelay:      200 * time.Millisecond,
		BaseDelay:          5 * time.Second,
		MaxDelay:           0,
		RateLimitCooldown:  30 * time.Second,
		OverloadMultiplier: 2.0,
		RequestTimeout:     60 * time.Second,
	}
}

// normalized fills zero fields from the defaults. Zero delays stay zero.
func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.OverloadMultiplier < 1 {
		p.OverloadMultiplier = def.OverloadMultiplier
	}
	if p.RequestTimeout <= 0 {
		p.RequestTimeout = def.RequestTimeout
	}
	return p
}

// Backoff returns the wait before the attempt following a failed attempt
// (0-indexed) classified as kind. Non-retryable kinds return 0.
func (p RetryPolicy) Backoff(kind ErrorKind, attempt int) time.Duration {
	if !kind.Retryable() {
		return 0
	}
	if kind == KindRateLimit {
		return p.RateLimitCooldown
	}

	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if kind == KindOverload {
		d *= p.OverloadMultiplier
	}
	backoff := time.Duration(math.MaxInt64)
	if d < float64(math.MaxInt64) {
		backoff = time.Duration(d)
	}
	if p.MaxDelay > 0 && backoff > p.MaxDelay {
		backoff = p.MaxDelay
	}
	return backoff
}

// RetryState is the bookkeeping of one page fetch.
type RetryState struct {
	Attempt       int
	NextDelay     time.Duration
	RateLimitHits int
}

// Sleeper suspends the calling goroutine.
type Sleeper interface {
	// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep implements Sleeper.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// ContextSleeper is the real Sleeper.
type ContextSleeper struct{}

// Sleep implements Sleeper.
func (ContextSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
