package ratelimit

import (
	"testing"
	"time"
)

func TestCooldownState_Active(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		state    CooldownState
		expected bool
	}{
		{
			name:     "no hit recorded",
			state:    CooldownState{Provider: "facebook", Window: time.Minute},
			expected: false,
		},
		{
			name:     "hit inside window",
			state:    CooldownState{Provider: "facebook", LastHit: now.Add(-30 * time.Second), Window: time.Minute},
			expected: true,
		},
		{
			name:     "hit outside window",
			state:    CooldownState{Provider: "facebook", LastHit: now.Add(-2 * time.Minute), Window: time.Minute},
			expected: false,
		},
		{
			name:     "zero window uses default",
			state:    CooldownState{Provider: "google", LastHit: now.Add(-4 * time.Minute)},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Active(now); got != tt.expected {
				t.Errorf("Active() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCooldownState_Remaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	state := CooldownState{LastHit: now.Add(-20 * time.Second), Window: time.Minute}
	if got := state.Remaining(now); got != 40*time.Second {
		t.Errorf("Remaining() = %v, want 40s", got)
	}
	if got := state.Since(now); got != 20*time.Second {
		t.Errorf("Since() = %v, want 20s", got)
	}

	expired := CooldownState{LastHit: now.Add(-time.Hour), Window: time.Minute}
	if got := expired.Remaining(now); got != 0 {
		t.Errorf("Remaining() on expired state = %v, want 0", got)
	}
}

func TestRedisKey(t *testing.T) {
	if got := redisKey("facebook"); got != "etl:ratelimit:facebook:last_hit" {
		t.Errorf("redisKey() = %q", got)
	}
}
