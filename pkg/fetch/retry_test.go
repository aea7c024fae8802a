package fetch

import (
	"context"
	"testing"
	"time"
)

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()

	if p.MaxAttempts != 8 {
		t.Errorf("MaxAttempts = %d, want 8", p.MaxAttempts)
	}
	if p.CourtesyDelay != 200*time.Millisecond {
		t.Errorf("CourtesyDelay = %v, want 200ms", p.CourtesyDelay)
	}
	if p.BaseDelay != 5*time.Second {
		t.Errorf("BaseDelay = %v, want 5s", p.BaseDelay)
	}
	if p.MaxDelay != 0 {
		t.Errorf("MaxDelay = %v, want 0 (uncapped)", p.MaxDelay)
	}
	if p.RateLimitCooldown != 30*time.Second {
		t.Errorf("RateLimitCooldown = %v, want 30s", p.RateLimitCooldown)
	}
	if p.OverloadMultiplier != 2.0 {
		t.Errorf("OverloadMultiplier = %v, want 2.0", p.OverloadMultiplier)
	}
	if p.RequestTimeout != 60*time.Second {
		t.Errorf("RequestTimeout = %v, want 60s", p.RequestTimeout)
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{
		BaseDelay:          5 * time.Second,
		RateLimitCooldown:  30 * time.Second,
		OverloadMultiplier: 2,
	}

	tests := []struct {
		name     string
		kind     ErrorKind
		attempt  int
		expected time.Duration
	}{
		{"server attempt 0", KindServer, 0, 5 * time.Second},
		{"server attempt 1", KindServer, 1, 10 * time.Second},
		{"server attempt 3", KindServer, 3, 40 * time.Second},
		{"network timeout attempt 2", KindNetworkTimeout, 2, 20 * time.Second},
		{"network attempt 0", KindNetwork, 0, 5 * time.Second},
		{"decode attempt 1", KindDecode, 1, 10 * time.Second},
		{"overload attempt 0", KindOverload, 0, 10 * time.Second},
		{"overload attempt 2", KindOverload, 2, 40 * time.Second},
		{"rate limit ignores attempt", KindRateLimit, 0, 30 * time.Second},
		{"rate limit attempt 5", KindRateLimit, 5, 30 * time.Second},
		{"fatal has no backoff", KindFatalAuthOrNotFound, 0, 0},
		{"cancelled has no backoff", KindCancelled, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Backoff(tt.kind, tt.attempt); got != tt.expected {
				t.Errorf("Backoff(%s, %d) = %v, want %v", tt.kind, tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestRetryPolicy_BackoffCap(t *testing.T) {
	p := RetryPolicy{BaseDelay: 5 * time.Second, MaxDelay: time.Minute, OverloadMultiplier: 2}

	if got := p.Backoff(KindServer, 10); got != time.Minute {
		t.Errorf("Backoff capped = %v, want 1m", got)
	}

	uncapped := RetryPolicy{BaseDelay: time.Second, OverloadMultiplier: 2}
	if got := uncapped.Backoff(KindServer, 200); got <= 0 {
		t.Errorf("Backoff for huge attempt = %v, want positive (no overflow)", got)
	}
}

func TestRetryPolicy_Normalized(t *testing.T) {
	p := RetryPolicy{}.normalized()

	if p.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", p.MaxAttempts)
	}
	if p.OverloadMultiplier != 2 {
		t.Errorf("OverloadMultiplier = %v, want 2", p.OverloadMultiplier)
	}
	if p.RequestTimeout != 60*time.Second {
		t.Errorf("RequestTimeout = %v, want 60s", p.RequestTimeout)
	}
	if p.CourtesyDelay != 0 {
		t.Errorf("CourtesyDelay = %v, want 0", p.CourtesyDelay)
	}
}

func TestContextSleeper(t *testing.T) {
	s := ContextSleeper{}

	start := time.Now()
	if err := s.Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("Sleep returned after %v, want >= 10ms", elapsed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start = time.Now()
	if err := s.Sleep(ctx, time.Hour); err == nil {
		t.Error("Sleep() on cancelled context should fail")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Sleep on cancelled context took %v", elapsed)
	}
}
