package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisOracle shares the hint between jobs running in different processes.
type RedisOracle struct {
	redis  *redis.Client
	window time.Duration
	logger zerolog.Logger
}

// NewRedisOracle creates a Redis-backed oracle. window <= 0 uses DefaultWindow.
func NewRedisOracle(redisClient *redis.Client, window time.Duration, logger zerolog.Logger) *RedisOracle {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisOracle{
		redis:  redisClient,
		window: window,
		logger: logger,
	}
}

// recordHitScript stores ARGV[1] unless a newer hit is already stored.
// Returns 1 when the value was written.
var recordHitScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]))
if cur and cur > tonumber(ARGV[1]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// RecordHit stores the hit time in unix milliseconds with a TTL of the window.
// A newer value already stored is kept; the check and the write are atomic.
func (o *RedisOracle) RecordHit(ctx context.Context, provider string, at time.Time) error {
	key := redisKey(provider)
	ms := at.UnixMilli()

	written, err := recordHitScript.Run(ctx, o.redis, []string{key},
		strconv.FormatInt(ms, 10), o.window.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("store last hit in redis: %w", err)
	}
	if written == 0 {
		return nil
	}

	rateLimitHitsTotal.WithLabelValues(provider).Inc()
	rateLimitLastHit.WithLabelValues(provider).Set(float64(at.Unix()))

	o.logger.Debug().
		Str("provider", provider).
		Time("last_hit", at).
		Dur("window", o.window).
		Msg("Rate limit hit recorded")

	return nil
}

// State reads the hint. A missing key yields a zero LastHit.
func (o *RedisOracle) State(ctx context.Context, provider string) (CooldownState, error) {
	state := CooldownState{Provider: provider, Window: o.window}

	ms, err := o.redis.Get(ctx, redisKey(provider)).Int64()
	if err == redis.Nil {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("get last hit: %w", err)
	}

	state.LastHit = time.UnixMilli(ms)
	return state, nil
}
