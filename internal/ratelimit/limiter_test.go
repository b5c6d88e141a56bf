package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allofdaniel/placecrawl/internal/metrics"
)

func TestLimiterWaitPacesSameHost(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	l := New(Config{RPS: 20, Burst: 1}, m)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://place.example/1"))
	require.NoError(t, l.Wait(ctx, "https://place.example/2"))
	require.NoError(t, l.Wait(ctx, "https://place.example/3"))

	// Two refills at 20 rps take at least ~100ms.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, 1, l.Hosts())
	count, err := testutil.GatherAndCount(m.Registry(), "placecrawl_pacing_wait_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 1}, nil)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/1"))
	require.NoError(t, l.Wait(ctx, "https://b.example/1"))
	require.NoError(t, l.Wait(ctx, "::not a url"))
	assert.Equal(t, 3, l.Hosts())
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{}, nil)
	ctx := context.Background()
	start := time.Now()
	for range 100 {
		require.NoError(t, l.Wait(ctx, "https://place.example/x"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 1}, nil)
	require.NoError(t, l.Wait(context.Background(), "https://place.example/1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx, "https://place.example/2")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
