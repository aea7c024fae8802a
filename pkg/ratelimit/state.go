// Package ratelimit holds the process-wide rate-limit hint shared by concurrent fetchers
// and an optional request pacer. The hint is advisory: fetchers log it but never wait on it.
package ratelimit

import (
	"time"
)

// Redis key layout for cooldown state.
const (
	// RedisKeyPrefix prefixes every cooldown key.
	RedisKeyPrefix = "etl:ratelimit"

	// RedisKeyLastHitSuffix is appended to "<prefix>:<provider>".
	RedisKeyLastHitSuffix = "last_hit"
)

// DefaultWindow is how long a rate-limit hit stays interesting.
const DefaultWindow = 5 * time.Minute

// CooldownState describes the most recent rate-limit hit seen for a provider.
type CooldownState struct {
	// Provider is the dialect name ("facebook", "google", ...).
	Provider string `json:"provider"`

	// LastHit is when a fetcher last classified a response as rate limited.
	LastHit time.Time `json:"last_hit"`

	// Window is how long after LastHit the state counts as active.
	Window time.Duration `json:"window"`
}

// Active reports whether the hit is still inside its window at now.
func (s CooldownState) Active(now time.Time) bool {
	if s.LastHit.IsZero() {
		return false
	}
	return now.Before(s.LastHit.Add(s.window()))
}

// Remaining returns how much of the window is left at now, or 0.
func (s CooldownState) Remaining(now time.Time) time.Duration {
	if !s.Active(now) {
		return 0
	}
	return s.LastHit.Add(s.window()).Sub(now)
}

// Since returns the time elapsed since the hit.
func (s CooldownState) Since(now time.Time) time.Duration {
	if s.LastHit.IsZero() {
		return 0
	}
	return now.Sub(s.LastHit)
}

func (s CooldownState) window() time.Duration {
	if s.Window <= 0 {
		return DefaultWindow
	}
	return s.Window
}

func redisKey(provider string) string {
	return RedisKeyPrefix + ":" + provider + ":" + RedisKeyLastHitSuffix
}
