// Package ratelimit is a Redis fixed-window request counter shared by all
// API instances.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// Decision is the outcome of one Consume call.
type Decision struct {
	Allowed    bool
	Count      int
	RetryAfter time.Duration
}

type Limiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// New allows limit hits per window; limit <= 0 allows everything.
func New(client redis.UniversalClient, prefix string, limit int, window time.Duration) *Limiter {
	p := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if p == "" {
		p = "flipledger:rate"
	}

	if window < time.Second {
		window = time.Second
	}

	return &Limiter{client: client, prefix: p, limit: limit, window: window}
}

func (l *Limiter) Consume(ctx context.Context, scope, subject string) (Decision, error) {
	if l == nil || l.client == nil || l.limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	key := fmt.Sprintf("%s:%s:%s", l.prefix, strings.TrimSpace(scope), strings.TrimSpace(subject))
	windowMs := l.window.Milliseconds()

	raw, err := fixedWindowScript.Run(ctx, l.client, []string{key}, windowMs).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("run limiter script: %w", err)
	}

	values, ok := raw.([]any)
	if !ok || len(values) != 2 {
		return Decision{}, fmt.Errorf("unexpected limiter response shape: %T", raw)
	}

	count, ok := values[0].(int64)
	if !ok {
		return Decision{}, fmt.Errorf("unexpected limiter count type: %T", values[0])
	}

	ttlMs, ok := values[1].(int64)
	if !ok || ttlMs < 0 {
		ttlMs = windowMs
	}

	retry := time.Duration(math.Ceil(float64(ttlMs)/1000.0)) * time.Second
	if retry < time.Second {
		retry = time.Second
	}

	return Decision{
		Allowed:    int(count) <= l.limit,
		Count:      int(count),
		RetryAfter: retry,
	}, nil
}

// Close releases the underlying client.
func (l *Limiter) Close() error {
	if l == nil || l.client == nil {
		return nil
	}

	return l.client.Close()
}
