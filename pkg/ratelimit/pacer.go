package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Pacer caps the request rate of every fetcher sharing it, on top of the
// per-attempt courtesy delay. A nil *Pacer is valid and never waits.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a pacer allowing rps requests per second with the given burst.
// rps <= 0 returns nil (pacing disabled).
func NewPacer(rps float64, burst int) *Pacer {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a request may be issued or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// Limit returns the configured requests per second, 0 when disabled.
func (p *Pacer) Limit() float64 {
	if p == nil {
		return 0
	}
	return float64(p.limiter.Limit())
}
