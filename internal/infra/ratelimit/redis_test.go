package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	err := client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()
		t.Skipf("redis unavailable: %v", err)
	}

	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestLimiter_FixedWindow(t *testing.T) {
	t.Parallel()

	l := New(testClient(t), "flipledger:test:"+uuid.NewString(), 2, time.Minute)

	for i := 1; i <= 3; i++ {
		d, err := l.Consume(t.Context(), "bets", "acc-1")
		require.NoError(t, err)
		assert.Equal(t, i, d.Count)
		assert.Equal(t, i <= 2, d.Allowed, "hit %d", i)
		assert.GreaterOrEqual(t, d.RetryAfter, time.Second)
	}

	d, err := l.Consume(t.Context(), "bets", "acc-2")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "other subjects keep their own window")
}

func TestLimiter_Disabled(t *testing.T) {
	t.Parallel()

	var l *Limiter

	d, err := l.Consume(t.Context(), "bets", "acc-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = New(nil, "", 0, time.Minute).Consume(t.Context(), "bets", "acc-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
