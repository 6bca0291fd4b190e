package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitUnlimitedByDefault(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for range 50 {
		require.NoError(t, l.Wait(ctx, "https://example.com/page"))
	}
}

func TestWaitThrottlesSameHost(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://example.com/a"))
	require.NoError(t, l.Wait(ctx, "https://example.com/b"))
	// Second token on the same host waits for the bucket to refill.
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitSeparateHostsDoNotShareBuckets(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://one.example.com/"))
	require.NoError(t, l.Wait(ctx, "https://two.example.com/"))
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Wait(ctx, "https://slow.example.com/"))
	require.Error(t, l.Wait(ctx, "https://slow.example.com/"))
}

func TestWaitUnparseableURLUsesFallbackBucket(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 100, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "::not-a-url::"))
}
