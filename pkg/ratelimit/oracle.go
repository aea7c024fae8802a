package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for rate-limit hints.
var (
	rateLimitHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_rate_limit_hits_total",
		Help: "Total number of responses classified as rate limited, by provider",
	}, []string{"provider"})

	rateLimitLastHit = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "etl_rate_limit_last_hit_timestamp_seconds",
		Help: "Unix time of the most recent rate-limit hit, by provider",
	}, []string{"provider"})
)

// Oracle stores the "last rate-limit hit" hint. Implementations must be safe for
// concurrent use by many fetchers.
type Oracle interface {
	// RecordHit notes that provider rate limited a request at the given time.
	RecordHit(ctx context.Context, provider string, at time.Time) error

	// State returns the current cooldown state for provider. A provider with no
	// recorded hit yields a zero LastHit.
	State(ctx context.Context, provider string) (CooldownState, error)
}

// MemoryOracle keeps the hint in process memory.
type MemoryOracle struct {
	mu     sync.RWMutex
	hits   map[string]time.Time
	window time.Duration
}

// NewMemoryOracle creates an in-process oracle. window <= 0 uses DefaultWindow.
func NewMemoryOracle(window time.Duration) *MemoryOracle {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryOracle{
		hits:   make(map[string]time.Time),
		window: window,
	}
}

// RecordHit implements Oracle. Older timestamps never overwrite newer ones.
func (o *MemoryOracle) RecordHit(_ context.Context, provider string, at time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if prev, ok := o.hits[provider]; ok && prev.After(at) {
		return nil
	}
	o.hits[provider] = at

	rateLimitHitsTotal.WithLabelValues(provider).Inc()
	rateLimitLastHit.WithLabelValues(provider).Set(float64(at.Unix()))
	return nil
}

// State implements Oracle.
func (o *MemoryOracle) State(_ context.Context, provider string) (CooldownState, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return CooldownState{
		Provider: provider,
		LastHit:  o.hits[provider],
		Window:   o.window,
	}, nil
}
