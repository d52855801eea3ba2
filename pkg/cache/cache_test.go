package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T, size int) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c, err := New(size, WithClock(clock.Now))
	require.NoError(t, err)
	return c, clock
}

func TestGetOrCompute_HitWithinTTL(t *testing.T) {
	c, clock := newTestCache(t, 8)
	ctx := context.Background()
	calls := 0
	compute := func(context.Context) (string, error) {
		calls++
		return "value", nil
	}

	v, err := GetOrCompute(ctx, c, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	clock.Advance(30 * time.Second)
	v, err = GetOrCompute(ctx, c, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
	assert.Equal(t, 1, calls)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestGetOrCompute_RecomputesAfterExpiry(t *testing.T) {
	c, clock := newTestCache(t, 8)
	ctx := context.Background()
	calls := 0
	compute := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	v, err := GetOrCompute(ctx, c, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	clock.Advance(time.Minute + time.Second)
	v, err = GetOrCompute(ctx, c, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, calls)
}

func TestGetOrCompute_ErrorsAreNotCached(t *testing.T) {
	c, _ := newTestCache(t, 8)
	ctx := context.Background()
	calls := 0
	failing := func(context.Context) (string, error) {
		calls++
		return "", errors.New("upstream down")
	}

	_, err := GetOrCompute(ctx, c, "k", time.Minute, failing)
	assert.EqualError(t, err, "upstream down")

	v, err := GetOrCompute(ctx, c, "k", time.Minute, func(context.Context) (string, error) {
		calls++
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
	assert.Equal(t, 2, calls)
}

func TestGetOrCompute_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(t, 2)
	ctx := context.Background()
	var calls int32
	compute := func(v string) func(context.Context) (string, error) {
		return func(context.Context) (string, error) {
			atomic.AddInt32(&calls, 1)
			return v, nil
		}
	}

	_, _ = GetOrCompute(ctx, c, "a", time.Hour, compute("a"))
	_, _ = GetOrCompute(ctx, c, "b", time.Hour, compute("b"))
	_, _ = GetOrCompute(ctx, c, "a", time.Hour, compute("a")) // touch a
	_, _ = GetOrCompute(ctx, c, "c", time.Hour, compute("c")) // evicts b
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, 2, c.Stats().Entries)

	_, _ = GetOrCompute(ctx, c, "a", time.Hour, compute("a"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	_, _ = GetOrCompute(ctx, c, "b", time.Hour, compute("b"))
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestGetOrCompute_MergesConcurrentMisses(t *testing.T) {
	c, _ := newTestCache(t, 8)
	ctx := context.Background()
	var calls int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := GetOrCompute(ctx, c, "shared", time.Minute, func(context.Context) (string, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return "once", nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "once", r)
	}
}

func TestKey(t *testing.T) {
	k1 := Key("search", "mountains", "landscape", 15)
	k2 := Key("search", "mountains", "landscape", 15)
	k3 := Key("search", "mountains", "portrait", 15)
	k4 := Key("acquire", "mountains", "landscape", 15)

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, k1, k4)
	assert.Len(t, k1, 64)

	m1 := Key("op", map[string]int{"a": 1, "b": 2})
	m2 := Key("op", map[string]int{"b": 2, "a": 1})
	assert.Equal(t, m1, m2)
}
