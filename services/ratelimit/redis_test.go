package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisLimiterBoundary(t *testing.T) {
	mr, client := newMiniredis(t)
	lim := NewRedis(client, Config{MaxRequests: 3, Window: 60 * time.Second})

	for i := 1; i <= 3; i++ {
		d := admit(t, lim, "anon-1", epoch)
		require.True(t, d.Allowed, "admission %d", i)
		assert.Equal(t, i, d.Count)
	}

	fourth := admit(t, lim, "anon-1", epoch)
	assert.False(t, fourth.Allowed)
	assert.Equal(t, 3, fourth.Count)
	assert.Greater(t, fourth.RetryAfter, time.Duration(0))

	stored, err := mr.Get("saathi:rl:anon-1")
	require.NoError(t, err)
	assert.Equal(t, "3", stored, "denials must not grow the counter")

	mr.FastForward(61 * time.Second)
	after := admit(t, lim, "anon-1", epoch.Add(61*time.Second))
	assert.True(t, after.Allowed)
	assert.Equal(t, 1, after.Count)
}

func TestRedisLimiterKeyIsolation(t *testing.T) {
	_, client := newMiniredis(t)
	lim := NewRedis(client, Config{MaxRequests: 1, Window: time.Minute})

	require.True(t, admit(t, lim, "a", epoch).Allowed)
	require.False(t, admit(t, lim, "a", epoch).Allowed)
	assert.True(t, admit(t, lim, "b", epoch).Allowed)
}

func TestRedisLimiterConcurrentAdmissions(t *testing.T) {
	_, client := newMiniredis(t)
	const ceiling, extra = 3, 9
	lim := NewRedis(client, Config{MaxRequests: ceiling, Window: time.Minute})
	lim.Timeout = time.Second

	var allowed, denied atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < ceiling+extra; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := lim.Admit(context.Background(), "shared", epoch)
			if err != nil {
				return
			}
			if d.Allowed {
				allowed.Add(1)
			} else {
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, ceiling, allowed.Load())
	assert.EqualValues(t, extra, denied.Load())
}

func TestRedisLimiterUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  5 * time.Millisecond,
		ReadTimeout:  5 * time.Millisecond,
		WriteTimeout: 5 * time.Millisecond,
		MaxRetries:   0,
	})
	defer client.Close()

	lim := NewRedis(client, Config{MaxRequests: 1, Window: time.Second})
	_, err := lim.Admit(context.Background(), "k", epoch)
	assert.Error(t, err)
}

func TestRedisLimiterNilClient(t *testing.T) {
	lim := &RedisLimiter{cfg: Config{}.withDefaults()}
	_, err := lim.Admit(context.Background(), "k", epoch)
	assert.Error(t, err)
}

func TestRedisLimiterUnexpectedReply(t *testing.T) {
	_, client := newMiniredis(t)
	lim := NewRedis(client, Config{MaxRequests: 1, Window: time.Second})

	original := fixedWindowScript
	fixedWindowScript = redis.NewScript(`return "bad-value"`)
	defer func() { fixedWindowScript = original }()

	_, err := lim.Admit(context.Background(), "k", epoch)
	assert.ErrorIs(t, err, ErrUnexpectedReply)
}
