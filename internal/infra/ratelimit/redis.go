package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"datatoken/internal/domain"
)

const defaultKeyPrefix = "datatoken:ratelimit:"

// incrWindow bumps the counter and starts its window on the first hit.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// Redis shares fixed-window counters between replicas.
type Redis struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	return &Redis{client: client, prefix: prefix, now: time.Now}, nil
}

func (r *Redis) Allow(ctx context.Context, key string, limit int, span time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	ms := span.Milliseconds()
	if ms <= 0 {
		ms = 1000
	}
	raw, err := incrWindow.Run(ctx, r.client, []string{r.prefix + key}, ms).Int64Slice()
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(raw) < 2 {
		return domain.RateLimitDecision{}, errors.New("unexpected rate limit reply")
	}
	count, ttl := raw[0], raw[1]
	reset := r.now()
	if ttl > 0 {
		reset = reset.Add(time.Duration(ttl) * time.Millisecond)
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   reset,
	}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

var _ domain.RateLimiter = (*Redis)(nil)
