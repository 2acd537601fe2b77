package yacache

import (
	"context"
	"fmt"
	"sync"

	"github.com/YaCodeDev/GoYaAsyncCache/threadsafemap"
	"github.com/YaCodeDev/GoYaAsyncCache/yahash"
	"github.com/YaCodeDev/GoYaAsyncCache/yalogger"
	"github.com/YaCodeDev/GoYaAsyncCache/yastorage"
	"golang.org/x/sync/singleflight"
)

// Producer is the user-supplied function whose results are cached. It
// receives the original arguments plus the hashed cache key.
type Producer[P, R any] func(ctx context.Context, args P, key string) (R, error)

// DefineOptions tunes one named function. The zero value inherits the
// cache-level TTL, stale window and observers.
type DefineOptions[P, R any] struct {
	// TTL is the result lifetime in seconds; 0 inherits the cache
	// default.
	TTL int64
	// TTLFunc derives the lifetime from each result and overrides TTL.
	// A negative return is reported through OnError and the result is
	// not cached.
	TTLFunc func(result R) int64
	// Stale is the window in seconds past TTL during which a value is
	// still served while a background refresh runs; 0 inherits the cache
	// default.
	Stale int64
	// StaleFunc derives the stale window from each result and overrides
	// Stale.
	StaleFunc func(result R) int64
	// Serializer turns arguments into the value that is hashed into the
	// cache key. A string result is used verbatim.
	Serializer func(args P) any
	// References tags each stored result for group invalidation. A nil
	// or empty return skips reference bookkeeping; an error is reported
	// through OnError and the result returned uncached.
	References func(ctx context.Context, args P, key string, result R) ([]string, error)
	// Transformer converts results to and from storage form; defaults to
	// [JSON].
	Transformer Transformer[R]
	// Storage overrides the cache default backend for this function and
	// is registered under the function's name for InvalidateAll.
	Storage yastorage.Storage

	// Observer overrides; nil falls back to the cache-level hooks.
	OnDedupe func(key string)
	OnHit    func(key string)
	OnMiss   func(key string)
	OnError  func(err error)
}

// observerSet is the resolved, never-nil set of hooks a handle notifies.
// Hooks run synchronously on the caller's goroutine and must not block.
type observerSet struct {
	dedupe func(key string)
	hit    func(key string)
	miss   func(key string)
	onErr  func(err error)
}

// flight is the shared outcome handle of one in-progress computation.
type flight[R any] struct {
	done   chan struct{}
	result R
	err    error
}

// Handle is one named function registered in the cache: it coalesces
// concurrent calls per key, consults storage, runs the producer at most once
// per key, and refreshes nearly-expired values in the background.
//
// Example:
//
//	handle, err := yacache.Define(c, "fetchUser", nil,
//		func(ctx context.Context, id int64, key string) (User, error) {
//			return repo.Load(ctx, id)
//		})
//	user, err := handle.Call(ctx, 42)
type Handle[P, R any] struct {
	cacheName   string
	producer    Producer[P, R]
	storage     yastorage.Storage
	ttl         int64
	ttlFunc     func(R) int64
	stale       int64
	staleFunc   func(R) int64
	serializer  func(P) any
	references  func(context.Context, P, string, R) ([]string, error)
	transformer Transformer[R]
	observers   observerSet
	log         yalogger.Logger

	// lifetime outlives any single call; background revalidations run on
	// it so they survive the originating caller.
	lifetime context.Context

	flights *threadsafemap.ThreadSafeMap[string, *flight[R]]

	// staleMu guards replacement of the revalidation group on Clear.
	staleMu    sync.Mutex
	staleGroup *singleflight.Group
}

// Name returns the name the handle was defined under.
func (h *Handle[P, R]) Name() string {
	return h.cacheName
}

// key hashes args through the optional serializer.
func (h *Handle[P, R]) key(args P) (string, error) {
	var serializer yahash.Serializer

	if h.serializer != nil {
		serializer = func(raw any) any {
			typed, _ := raw.(P)

			return h.serializer(typed)
		}
	}

	key, err := yahash.Key(args, serializer)
	if err != nil {
		return "", fmt.Errorf("[CACHE] failed to hash arguments for `%s`: %w", h.cacheName, err)
	}

	return key, nil
}

// storageKey namespaces a hashed key per handle so that prefix clears stay
// scoped to one function.
func (h *Handle[P, R]) storageKey(key string) string {
	return h.cacheName + "~" + key
}

// Call executes the named function through the cache. Concurrent calls with
// the same key share one outcome; the producer runs at most once per key at
// any moment.
func (h *Handle[P, R]) Call(ctx context.Context, args P) (R, error) {
	var zero R

	key, err := h.key(args)
	if err != nil {
		return zero, err
	}

	current := &flight[R]{done: make(chan struct{})}

	resident, joined := h.flights.GetOrSet(key, current)
	if joined {
		h.observers.dedupe(key)

		select {
		case <-resident.done:
			return resident.result, resident.err
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	result, err := h.fetch(ctx, args, key)

	current.result = result
	current.err = err

	close(current.done)

	h.flights.Delete(key)

	if err != nil {
		if _, removeErr := h.storage.Remove(h.lifetime, h.storageKey(key)); removeErr != nil {
			h.log.WithError(removeErr).WithField("key", key).
				Error("[CACHE] failed to remove key after producer failure")
		}

		h.observers.onErr(err)
	}

	return result, err
}

// fetch is the storage-then-producer pipeline behind Call.
func (h *Handle[P, R]) fetch(ctx context.Context, args P, key string) (R, error) {
	storageKey := h.storageKey(key)

	if h.cacheable() {
		stored, found, err := h.storage.Get(ctx, storageKey)
		if err != nil {
			h.log.WithError(err).WithField("key", key).Error("[CACHE] storage get failed")
			h.observers.onErr(err)

			found = false
		}

		if found {
			value, err := h.decode(stored)
			if err == nil {
				h.observers.hit(key)
				h.maybeRevalidate(ctx, args, key, storageKey, value)

				return value, nil
			}

			h.observers.onErr(err)
		}

		h.observers.miss(key)
	}

	return h.produceAndStore(ctx, args, key, storageKey)
}

// cacheable reports whether storage participates at all for this handle.
func (h *Handle[P, R]) cacheable() bool {
	return h.ttl > 0 || h.ttlFunc != nil
}

// decode rebuilds a result from its stored form.
func (h *Handle[P, R]) decode(stored any) (R, error) {
	var zero R

	switch typed := stored.(type) {
	case string:
		return h.transformer.Deserialize(typed)
	case []byte:
		return h.transformer.Deserialize(string(typed))
	default:
		return zero, fmt.Errorf(
			"[CACHE] unexpected stored type `%T` for `%s`",
			stored,
			h.cacheName,
		)
	}
}

// produceAndStore runs the producer and writes the result back unless the
// effective TTL disables caching. Every failure past the producer itself is
// absorbed: the freshly produced result is always returned.
func (h *Handle[P, R]) produceAndStore(
	ctx context.Context,
	args P,
	key string,
	storageKey string,
) (R, error) {
	var zero R

	result, err := h.producer(ctx, args, key)
	if err != nil {
		return zero, err
	}

	ttl := h.ttl

	if h.ttlFunc != nil {
		ttl = h.ttlFunc(result)
		if ttl < 0 {
			h.observers.onErr(ErrTTLNotInteger)

			return result, nil
		}
	}

	stale := h.effectiveStale(result)

	// The stale window extends the stored lifetime so nearly-expired
	// values stay servable while a refresh runs.
	effectiveTTL := ttl + stale
	if effectiveTTL < 1 {
		return result, nil
	}

	var references []string

	if h.references != nil {
		references, err = h.references(ctx, args, key, result)
		if err != nil {
			h.observers.onErr(fmt.Errorf(
				"[CACHE] references failed for `%s`: %w",
				h.cacheName,
				err,
			))

			return result, nil
		}
	}

	stored, err := h.transformer.Serialize(result)
	if err != nil {
		h.observers.onErr(err)

		return result, nil
	}

	if err := h.storage.Set(ctx, storageKey, stored, effectiveTTL, references); err != nil {
		h.log.WithError(err).WithField("key", key).Error("[CACHE] storage set failed")
		h.observers.onErr(err)
	}

	return result, nil
}

func (h *Handle[P, R]) effectiveStale(result R) int64 {
	stale := h.stale

	if h.staleFunc != nil {
		stale = h.staleFunc(result)
	}

	if stale < 0 {
		stale = 0
	}

	return stale
}

// maybeRevalidate launches a background refresh when the remaining storage
// TTL has sunk into the stale window. Refreshes are deduplicated per key, so
// stale hits keep being served by exactly one producer run.
func (h *Handle[P, R]) maybeRevalidate(
	ctx context.Context,
	args P,
	key string,
	storageKey string,
	value R,
) {
	stale := h.effectiveStale(value)
	if stale <= 0 {
		return
	}

	remaining, err := h.storage.GetTTL(ctx, storageKey)
	if err != nil || remaining > stale {
		return
	}

	group := h.revalidationGroup()

	go func() {
		results := group.DoChan(key, func() (any, error) {
			_, err := h.produceAndStore(h.lifetime, args, key, storageKey)

			return nil, err
		})

		if outcome := <-results; outcome.Err != nil {
			h.observers.onErr(outcome.Err)
		}
	}()
}

func (h *Handle[P, R]) revalidationGroup() *singleflight.Group {
	h.staleMu.Lock()

	defer h.staleMu.Unlock()

	return h.staleGroup
}

// Clear removes every stored result of this handle and drops its dedupe and
// revalidation markers.
func (h *Handle[P, R]) Clear(ctx context.Context) error {
	h.flights.Clear()

	h.staleMu.Lock()
	h.staleGroup = &singleflight.Group{}
	h.staleMu.Unlock()

	return h.storage.Clear(ctx, h.cacheName+"~")
}

// ClearKey removes the stored result for one set of arguments together with
// its markers.
func (h *Handle[P, R]) ClearKey(ctx context.Context, args P) error {
	key, err := h.key(args)
	if err != nil {
		return err
	}

	h.flights.Delete(key)
	h.revalidationGroup().Forget(key)

	_, err = h.storage.Remove(ctx, h.storageKey(key))

	return err
}

// Get reads the stored result for args without touching the producer.
func (h *Handle[P, R]) Get(ctx context.Context, args P) (R, bool, error) {
	var zero R

	key, err := h.key(args)
	if err != nil {
		return zero, false, err
	}

	stored, found, err := h.storage.Get(ctx, h.storageKey(key))
	if err != nil || !found {
		return zero, false, err
	}

	value, err := h.decode(stored)
	if err != nil {
		return zero, false, err
	}

	return value, true, nil
}

// Set stores value under the key derived from args, bypassing the producer.
func (h *Handle[P, R]) Set(
	ctx context.Context,
	args P,
	value R,
	ttl int64,
	references []string,
) error {
	key, err := h.key(args)
	if err != nil {
		return err
	}

	stored, err := h.transformer.Serialize(value)
	if err != nil {
		return err
	}

	return h.storage.Set(ctx, h.storageKey(key), stored, ttl, references)
}

// Invalidate removes every stored result tagged with the given references on
// this handle's storage.
func (h *Handle[P, R]) Invalidate(ctx context.Context, references []string) ([]string, error) {
	return h.storage.Invalidate(ctx, references)
}
