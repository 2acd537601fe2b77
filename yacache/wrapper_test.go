package yacache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/YaCodeDev/GoYaAsyncCache/yacache"
	"github.com/YaCodeDev/GoYaAsyncCache/yaclock"
	"github.com/YaCodeDev/GoYaAsyncCache/yastorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type thing struct {
	K int `json:"k"`
}

// observerLog records hook notifications for assertions.
type observerLog struct {
	mu      sync.Mutex
	dedupes []string
	hits    []string
	misses  []string
	errors  []error
}

func (o *observerLog) onDedupe(key string) {
	o.mu.Lock()
	o.dedupes = append(o.dedupes, key)
	o.mu.Unlock()
}

func (o *observerLog) onHit(key string) {
	o.mu.Lock()
	o.hits = append(o.hits, key)
	o.mu.Unlock()
}

func (o *observerLog) onMiss(key string) {
	o.mu.Lock()
	o.misses = append(o.misses, key)
	o.mu.Unlock()
}

func (o *observerLog) onError(err error) {
	o.mu.Lock()
	o.errors = append(o.errors, err)
	o.mu.Unlock()
}

func (o *observerLog) snapshot() (dedupes, hits, misses []string, errs []error) {
	o.mu.Lock()

	defer o.mu.Unlock()

	return append([]string(nil), o.dedupes...),
		append([]string(nil), o.hits...),
		append([]string(nil), o.misses...),
		append([]error(nil), o.errors...)
}

func newTestCache(
	t *testing.T,
	ttl int64,
	stale int64,
	clock yaclock.Clock,
) (*yacache.Cache, *observerLog) {
	t.Helper()

	storage, err := yastorage.NewMemory(yastorage.MemoryOptions{
		Invalidation: true,
		Clock:        clock,
	})

	require.NoError(t, err)

	observed := &observerLog{}

	c, err := yacache.New(yacache.Config{
		Storage:  storage,
		TTL:      ttl,
		Stale:    stale,
		OnDedupe: observed.onDedupe,
		OnHit:    observed.onHit,
		OnMiss:   observed.onMiss,
		OnError:  observed.onError,
	})

	require.NoError(t, err)

	t.Cleanup(c.Close)

	return c, observed
}

func TestHandle_Dedupe_SingleProducerPerKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	c, observed := newTestCache(t, 60, 0, nil)

	var calls atomic.Int64

	gate := make(chan struct{})

	fetchSomething, err := yacache.Define(c, "fetchSomething", nil,
		func(ctx context.Context, args int, key string) (thing, error) {
			calls.Add(1)

			<-gate

			return thing{K: args}, nil
		})

	require.NoError(t, err)

	var wg sync.WaitGroup

	results := make([]thing, 3)

	for i, args := range []int{42, 24, 42} {
		wg.Add(1)

		go func(slot, args int) {
			defer wg.Done()

			result, err := fetchSomething.Call(ctx, args)

			assert.NoError(t, err)

			results[slot] = result
		}(i, args)
	}

	// Let all three callers reach the dedupe table before releasing.
	require.Eventually(t, func() bool {
		dedupes, _, _, _ := observed.snapshot()

		return calls.Load() == 2 && len(dedupes) == 1
	}, time.Second, time.Millisecond)

	close(gate)
	wg.Wait()

	assert.Equal(t, []thing{{K: 42}, {K: 24}, {K: 42}}, results)
	assert.Equal(t, int64(2), calls.Load())

	dedupes, _, _, _ := observed.snapshot()

	assert.Equal(t, []string{"42"}, dedupes)
}

func TestHandle_TTLExpiry_Works(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	clock := yaclock.NewManual(1000)

	c, _ := newTestCache(t, 2, 0, clock)

	var calls atomic.Int64

	fetchSomething, err := yacache.Define(c, "fetchSomething", nil,
		func(ctx context.Context, args int, key string) (thing, error) {
			calls.Add(1)

			return thing{K: args}, nil
		})

	require.NoError(t, err)

	result, err := fetchSomething.Call(ctx, 42)

	require.NoError(t, err)
	assert.Equal(t, thing{K: 42}, result)
	assert.Equal(t, int64(1), calls.Load())

	clock.Advance(1)

	result, err = fetchSomething.Call(ctx, 42)

	require.NoError(t, err)
	assert.Equal(t, thing{K: 42}, result)
	assert.Equal(t, int64(1), calls.Load())

	clock.Advance(3)

	result, err = fetchSomething.Call(ctx, 42)

	require.NoError(t, err)
	assert.Equal(t, thing{K: 42}, result)
	assert.Equal(t, int64(2), calls.Load())
}

func TestHandle_ProducerFailure_NotCached(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	c, observed := newTestCache(t, 60, 0, nil)

	var calls atomic.Int64

	fetchSomething, err := yacache.Define(c, "fetchSomething", nil,
		func(ctx context.Context, args int, key string) (thing, error) {
			if calls.Add(1) == 1 {
				return thing{}, errors.New("kaboom")
			}

			return thing{K: args}, nil
		})

	require.NoError(t, err)

	_, err = fetchSomething.Call(ctx, 42)

	require.ErrorContains(t, err, "kaboom")

	result, err := fetchSomething.Call(ctx, 42)

	require.NoError(t, err)
	assert.Equal(t, thing{K: 42}, result)
	assert.Equal(t, int64(2), calls.Load())

	_, _, _, errs := observed.snapshot()

	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "kaboom")
}

func TestHandle_StaleWhileRevalidate_Works(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	clock := yaclock.NewManual(1000)

	c, _ := newTestCache(t, 1, 9, clock)

	var calls atomic.Int64

	fetchSomething, err := yacache.Define(c, "fetchSomething", nil,
		func(ctx context.Context, args int, key string) (thing, error) {
			return thing{K: int(calls.Add(1))}, nil
		})

	require.NoError(t, err)

	first, err := fetchSomething.Call(ctx, 42)

	require.NoError(t, err)
	assert.Equal(t, thing{K: 1}, first)

	// Stored lifetime is ttl + stale.
	stored, found, err := fetchSomething.Get(ctx, 42)

	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, thing{K: 1}, stored)

	clock.Advance(3)

	// Inside the stale window: the old value is served immediately and a
	// background refresh starts.
	second, err := fetchSomething.Call(ctx, 42)

	require.NoError(t, err)
	assert.Equal(t, thing{K: 1}, second)

	require.Eventually(t, func() bool {
		value, found, err := fetchSomething.Get(ctx, 42)

		return err == nil && found && value == thing{K: 2}
	}, time.Second, time.Millisecond)

	assert.Equal(t, int64(2), calls.Load())
}

func TestHandle_References_Invalidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	c, _ := newTestCache(t, 60, 0, nil)

	var calls atomic.Int64

	fetchUser, err := yacache.Define(c, "fetchUser",
		&yacache.DefineOptions[int, thing]{
			References: func(ctx context.Context, args int, key string, result thing) ([]string, error) {
				return []string{"users", "user:" + key}, nil
			},
		},
		func(ctx context.Context, args int, key string) (thing, error) {
			calls.Add(1)

			return thing{K: args}, nil
		})

	require.NoError(t, err)

	_, err = fetchUser.Call(ctx, 1)

	require.NoError(t, err)

	_, err = fetchUser.Call(ctx, 2)

	require.NoError(t, err)

	removed, err := fetchUser.Invalidate(ctx, []string{"user:1"})

	require.NoError(t, err)
	assert.Equal(t, []string{"fetchUser~1"}, removed)

	// Key 1 is re-produced, key 2 still cached.
	_, err = fetchUser.Call(ctx, 1)

	require.NoError(t, err)

	_, err = fetchUser.Call(ctx, 2)

	require.NoError(t, err)
	assert.Equal(t, int64(3), calls.Load())
}

func TestHandle_TTLFunc_NegativeNotCached(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	c, observed := newTestCache(t, 60, 0, nil)

	var calls atomic.Int64

	fetchSomething, err := yacache.Define(c, "fetchSomething",
		&yacache.DefineOptions[int, thing]{
			TTLFunc: func(result thing) int64 {
				return -1
			},
		},
		func(ctx context.Context, args int, key string) (thing, error) {
			calls.Add(1)

			return thing{K: args}, nil
		})

	require.NoError(t, err)

	result, err := fetchSomething.Call(ctx, 42)

	require.NoError(t, err)
	assert.Equal(t, thing{K: 42}, result)

	_, err = fetchSomething.Call(ctx, 42)

	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())

	_, _, _, errs := observed.snapshot()

	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[0], yacache.ErrTTLNotInteger)
}

func TestHandle_TTLFunc_DerivedFromResult(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	clock := yaclock.NewManual(1000)

	c, _ := newTestCache(t, 0, 0, clock)

	var calls atomic.Int64

	fetchSomething, err := yacache.Define(c, "fetchSomething",
		&yacache.DefineOptions[int, thing]{
			TTLFunc: func(result thing) int64 {
				return int64(result.K)
			},
		},
		func(ctx context.Context, args int, key string) (thing, error) {
			calls.Add(1)

			return thing{K: args}, nil
		})

	require.NoError(t, err)

	_, err = fetchSomething.Call(ctx, 5)

	require.NoError(t, err)

	clock.Advance(4)

	_, err = fetchSomething.Call(ctx, 5)

	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())

	clock.Advance(2)

	_, err = fetchSomething.Call(ctx, 5)

	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestHandle_ReferencesFailure_ResultStillReturned(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	c, observed := newTestCache(t, 60, 0, nil)

	var calls atomic.Int64

	fetchSomething, err := yacache.Define(c, "fetchSomething",
		&yacache.DefineOptions[int, thing]{
			References: func(ctx context.Context, args int, key string, result thing) ([]string, error) {
				return nil, errors.New("refs exploded")
			},
		},
		func(ctx context.Context, args int, key string) (thing, error) {
			calls.Add(1)

			return thing{K: args}, nil
		})

	require.NoError(t, err)

	result, err := fetchSomething.Call(ctx, 42)

	require.NoError(t, err)
	assert.Equal(t, thing{K: 42}, result)

	// Nothing was cached, so the next call produces again.
	_, err = fetchSomething.Call(ctx, 42)

	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())

	_, _, _, errs := observed.snapshot()

	require.NotEmpty(t, errs)
	assert.ErrorContains(t, errs[0], "refs exploded")
}

func TestHandle_Serializer_ShapesKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	c, observed := newTestCache(t, 60, 0, nil)

	var seenKey atomic.Value

	fetchSomething, err := yacache.Define(c, "fetchSomething",
		&yacache.DefineOptions[thing, thing]{
			Serializer: func(args thing) any {
				return args.K
			},
		},
		func(ctx context.Context, args thing, key string) (thing, error) {
			seenKey.Store(key)

			return args, nil
		})

	require.NoError(t, err)

	_, err = fetchSomething.Call(ctx, thing{K: 7})

	require.NoError(t, err)
	assert.Equal(t, "7", seenKey.Load())

	// Same derived key hits the cache.
	_, err = fetchSomething.Call(ctx, thing{K: 7})

	require.NoError(t, err)

	_, hits, misses, _ := observed.snapshot()

	assert.Equal(t, []string{"7"}, hits)
	assert.Equal(t, []string{"7"}, misses)
}

func TestHandle_ObserverFlow_HitAndMiss(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	c, observed := newTestCache(t, 60, 0, nil)

	fetchSomething, err := yacache.Define(c, "fetchSomething", nil,
		func(ctx context.Context, args int, key string) (thing, error) {
			return thing{K: args}, nil
		})

	require.NoError(t, err)

	_, err = fetchSomething.Call(ctx, 1)

	require.NoError(t, err)

	_, err = fetchSomething.Call(ctx, 1)

	require.NoError(t, err)

	dedupes, hits, misses, errs := observed.snapshot()

	assert.Empty(t, dedupes)
	assert.Equal(t, []string{"1"}, misses)
	assert.Equal(t, []string{"1"}, hits)
	assert.Empty(t, errs)
}

func TestHandle_ClearKey_DropsOneEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	c, _ := newTestCache(t, 60, 0, nil)

	var calls atomic.Int64

	fetchSomething, err := yacache.Define(c, "fetchSomething", nil,
		func(ctx context.Context, args int, key string) (thing, error) {
			calls.Add(1)

			return thing{K: args}, nil
		})

	require.NoError(t, err)

	_, _ = fetchSomething.Call(ctx, 1)
	_, _ = fetchSomething.Call(ctx, 2)

	require.NoError(t, fetchSomething.ClearKey(ctx, 1))

	_, _ = fetchSomething.Call(ctx, 1)
	_, _ = fetchSomething.Call(ctx, 2)

	assert.Equal(t, int64(3), calls.Load())
}

func TestHandle_SetGet_Passthrough(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	c, _ := newTestCache(t, 60, 0, nil)

	fetchSomething, err := yacache.Define(c, "fetchSomething", nil,
		func(ctx context.Context, args int, key string) (thing, error) {
			return thing{K: args}, nil
		})

	require.NoError(t, err)

	require.NoError(t, fetchSomething.Set(ctx, 42, thing{K: 99}, 60, nil))

	value, found, err := fetchSomething.Get(ctx, 42)

	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, thing{K: 99}, value)

	// The seeded value answers Call without touching the producer.
	result, err := fetchSomething.Call(ctx, 42)

	require.NoError(t, err)
	assert.Equal(t, thing{K: 99}, result)
}
