package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/resilience"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBreakerTransitions(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	breaker := resilience.NewBreaker(2, 0.5, 50*time.Millisecond).WithClock(clock.Now)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)

	require.False(t, breaker.Allow(ctx), "breaker should open after threshold exceeded")
	require.Equal(t, resilience.Open, breaker.State())

	clock.Advance(60 * time.Millisecond)
	require.True(t, breaker.Allow(ctx), "breaker should move to half-open after cool off")
	require.Equal(t, resilience.HalfOpen, breaker.State())
	breaker.Report(ctx, true)
	require.True(t, breaker.Allow(ctx), "breaker should close after a successful trial call")
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestBreakerAdmitsSingleTrialCall(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	breaker := resilience.NewBreaker(1, 0.5, time.Second).WithClock(clock.Now)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())

	clock.Advance(time.Second)
	require.True(t, breaker.Allow(ctx))
	require.False(t, breaker.Allow(ctx), "second caller must wait for the trial call")

	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())
	require.False(t, breaker.Allow(ctx), "failed trial call restarts the cool-off")

	clock.Advance(time.Second)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, true)
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestBreakerStaysClosedBelowRatio(t *testing.T) {
	breaker := resilience.NewBreaker(4, 0.5, time.Second)
	ctx := context.Background()

	for _, ok := range []bool{true, false, true, true, false, true, true, true} {
		require.True(t, breaker.Allow(ctx))
		breaker.Report(ctx, ok)
	}
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestBackoffWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, base*4, resilience.Backoff(base, 3, 0))
	require.Equal(t, 5*time.Second, resilience.Backoff(base, 20, 0))

	d := resilience.Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, d, base*2-(base*2/5))
	require.LessOrEqual(t, d, base*2+(base*2/5))
}
