// Package yacache implements an asynchronous function-result cache with
// request coalescing, tag-based invalidation and stale-while-revalidate.
//
// Named functions are registered once and called through the cache:
// concurrent calls with equivalent arguments join a single producer run,
// completed results are stored with a TTL in a pluggable backend
// ([yastorage.Storage]), and values inside their stale window keep being
// served while one background refresh replaces them.
//
// # Generic design
//
// Registration is typed: [Define] is parameterised by the argument and
// result types of the producer, and returns a [Handle] whose Call, Get and
// Set keep those types. The [Cache] facade keeps the registry and offers the
// dynamic, any-typed surface ([Cache.Call], [Cache.Invalidate], …) for
// callers that only know a function by name.
//
// # Error model
//
// Once its arguments are hashed, the caller of a wrapped function only sees
// its producer's error, or its own context's error when it cancels while
// waiting on a joined computation. Arguments that cannot be hashed (cyclic
// values, for example) fail the call before storage is consulted. Everything
// else — storage failures, reference-builder failures, invalid dynamic TTLs —
// is absorbed: reported through the OnError hook, logged, and the call still
// returns the freshly produced result.
//
// # Quick start
//
//	storage, _ := yastorage.New(yastorage.Options{Type: yastorage.TypeMemory})
//
//	c, err := yacache.New(yacache.Config{Storage: storage, TTL: 60})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	fetchUser, err := yacache.Define(c, "fetchUser", nil,
//		func(ctx context.Context, id int64, key string) (User, error) {
//			return repo.Load(ctx, id)
//		})
//	if err != nil {
//		return err
//	}
//
//	user, err := fetchUser.Call(ctx, 42)
package yacache

import (
	"context"
	"fmt"
	"sync"

	"github.com/YaCodeDev/GoYaAsyncCache/threadsafemap"
	"github.com/YaCodeDev/GoYaAsyncCache/yalogger"
	"github.com/YaCodeDev/GoYaAsyncCache/yastorage"
	"golang.org/x/sync/singleflight"
)

// DefaultStorageName addresses the cache-level backend in
// [Cache.InvalidateAll].
const DefaultStorageName = "_default"

// reservedNames are facade operations a function may not shadow.
var reservedNames = map[string]struct{}{
	"define":        {},
	"clear":         {},
	"get":           {},
	"set":           {},
	"invalidate":    {},
	"invalidateAll": {},
}

// Config configures [New].
type Config struct {
	// Storage is the default backend every handle uses unless overridden
	// at Define time. Required.
	Storage yastorage.Storage
	// TTL is the default result lifetime in seconds; 0 disables caching
	// for handles that do not set their own.
	TTL int64
	// Stale is the default stale window in seconds.
	Stale int64

	// OnDedupe fires when a call joins an already-running computation.
	OnDedupe func(key string)
	// OnHit fires when a call is answered from storage.
	OnHit func(key string)
	// OnMiss fires when storage was consulted and had nothing.
	OnMiss func(key string)
	// OnError receives every absorbed error and every producer failure.
	OnError func(err error)

	// Log defaults to [yalogger.Nop].
	Log yalogger.Logger
}

// definition is the untyped view the facade keeps of each handle.
type definition interface {
	callAny(ctx context.Context, args any) (any, error)
	getAny(ctx context.Context, args any) (any, bool, error)
	setAny(ctx context.Context, args any, value any, ttl int64, references []string) error
	invalidateAny(ctx context.Context, references []string) ([]string, error)
	clearAll(ctx context.Context) error
	clearOne(ctx context.Context, args any) error
}

// Cache is the facade holding the named handles and their storages.
type Cache struct {
	config Config
	log    yalogger.Logger

	// lifetime bounds background revalidations; Close cancels it.
	lifetime context.Context
	cancel   context.CancelFunc

	mu       sync.RWMutex
	handles  map[string]definition
	storages map[string]yastorage.Storage
}

// New validates the configuration and builds an empty cache.
//
// Example:
//
//	c, err := yacache.New(yacache.Config{Storage: storage, TTL: 10, Stale: 5})
func New(config Config) (*Cache, error) {
	if config.Storage == nil {
		return nil, ErrMissingStorage
	}

	if config.TTL < 0 {
		return nil, ErrInvalidTTL
	}

	if config.Stale < 0 {
		return nil, ErrInvalidStale
	}

	if config.Log == nil {
		config.Log = yalogger.Nop()
	}

	lifetime, cancel := context.WithCancel(context.Background())

	return &Cache{
		config:   config,
		log:      config.Log,
		lifetime: lifetime,
		cancel:   cancel,
		handles:  make(map[string]definition),
		storages: map[string]yastorage.Storage{DefaultStorageName: config.Storage},
	}, nil
}

// Close stops background revalidation. Stored data is left untouched.
func (c *Cache) Close() {
	c.cancel()
}

// Define registers producer under name and returns its typed handle.
//
// Names must be unique and must not shadow a facade operation. A nil opts
// inherits every cache-level default.
//
// Example:
//
//	fetchSomething, err := yacache.Define(c, "fetchSomething",
//		&yacache.DefineOptions[int, Thing]{TTL: 30},
//		func(ctx context.Context, id int, key string) (Thing, error) {
//			return load(ctx, id)
//		})
func Define[P, R any](
	c *Cache,
	name string,
	opts *DefineOptions[P, R],
	producer Producer[P, R],
) (*Handle[P, R], error) {
	if name == "" {
		return nil, ErrInvalidName
	}

	if _, reserved := reservedNames[name]; reserved {
		return nil, fmt.Errorf("%w: %q", ErrReservedName, name)
	}

	if producer == nil {
		return nil, ErrMissingProducer
	}

	if opts == nil {
		opts = &DefineOptions[P, R]{}
	}

	if opts.TTL < 0 {
		return nil, ErrInvalidTTL
	}

	if opts.Stale < 0 {
		return nil, ErrInvalidStale
	}

	handle := &Handle[P, R]{
		cacheName:   name,
		producer:    producer,
		storage:     c.config.Storage,
		ttl:         c.config.TTL,
		ttlFunc:     opts.TTLFunc,
		stale:       c.config.Stale,
		staleFunc:   opts.StaleFunc,
		serializer:  opts.Serializer,
		references:  opts.References,
		transformer: opts.Transformer,
		observers: observerSet{
			dedupe: resolveObserver(opts.OnDedupe, c.config.OnDedupe),
			hit:    resolveObserver(opts.OnHit, c.config.OnHit),
			miss:   resolveObserver(opts.OnMiss, c.config.OnMiss),
			onErr:  resolveErrorObserver(opts.OnError, c.config.OnError),
		},
		log:        c.log.WithField("function", name),
		lifetime:   c.lifetime,
		flights:    threadsafemap.New[string, *flight[R]](),
		staleGroup: &singleflight.Group{},
	}

	if opts.TTL > 0 {
		handle.ttl = opts.TTL
	}

	if opts.Stale > 0 {
		handle.stale = opts.Stale
	}

	if opts.Storage != nil {
		handle.storage = opts.Storage
	}

	if handle.transformer == nil {
		handle.transformer = JSON[R]()
	}

	c.mu.Lock()

	defer c.mu.Unlock()

	if _, taken := c.handles[name]; taken {
		return nil, fmt.Errorf("%w: %q", ErrNameTaken, name)
	}

	c.handles[name] = handle

	if opts.Storage != nil {
		c.storages[name] = opts.Storage
	}

	return handle, nil
}

// lookup resolves a handle by name.
func (c *Cache) lookup(name string) (definition, error) {
	c.mu.RLock()

	handle, ok := c.handles[name]

	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("[CACHE] %s %w", name, ErrNotDefined)
	}

	return handle, nil
}

// Call invokes the named function through the cache with dynamically typed
// arguments. Prefer calling the [Handle] directly when it is in scope.
//
// Example:
//
//	result, err := c.Call(ctx, "fetchSomething", 42)
func (c *Cache) Call(ctx context.Context, name string, args any) (any, error) {
	handle, err := c.lookup(name)
	if err != nil {
		return nil, err
	}

	return handle.callAny(ctx, args)
}

// Get reads the stored result of the named function for args.
func (c *Cache) Get(ctx context.Context, name string, args any) (any, bool, error) {
	handle, err := c.lookup(name)
	if err != nil {
		return nil, false, err
	}

	return handle.getAny(ctx, args)
}

// Set stores value as the named function's result for args.
func (c *Cache) Set(
	ctx context.Context,
	name string,
	args any,
	value any,
	ttl int64,
	references []string,
) error {
	handle, err := c.lookup(name)
	if err != nil {
		return err
	}

	return handle.setAny(ctx, args, value, ttl, references)
}

// Invalidate removes results of the named function tagged with the given
// references.
//
// Example:
//
//	removed, err := c.Invalidate(ctx, "fetchSomething", []string{"user:42"})
func (c *Cache) Invalidate(ctx context.Context, name string, references []string) ([]string, error) {
	handle, err := c.lookup(name)
	if err != nil {
		return nil, err
	}

	return handle.invalidateAny(ctx, references)
}

// InvalidateAll invalidates references on a storage picked by name:
// [DefaultStorageName] (or "") for the cache-level backend, a function name
// for its Define-time override.
func (c *Cache) InvalidateAll(
	ctx context.Context,
	references []string,
	storageName string,
) ([]string, error) {
	if storageName == "" {
		storageName = DefaultStorageName
	}

	c.mu.RLock()

	storage, ok := c.storages[storageName]

	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("[CACHE] %s %w", storageName, ErrNotDefined)
	}

	return storage.Invalidate(ctx, references)
}

// Clear empties every registered function's stored results and markers.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.RLock()

	handles := make([]definition, 0, len(c.handles))
	for _, handle := range c.handles {
		handles = append(handles, handle)
	}

	c.mu.RUnlock()

	for _, handle := range handles {
		if err := handle.clearAll(ctx); err != nil {
			return err
		}
	}

	return nil
}

// ClearName empties one function's stored results and markers.
func (c *Cache) ClearName(ctx context.Context, name string) error {
	handle, err := c.lookup(name)
	if err != nil {
		return err
	}

	return handle.clearAll(ctx)
}

// ClearKey removes the stored result of the named function for args.
func (c *Cache) ClearKey(ctx context.Context, name string, args any) error {
	handle, err := c.lookup(name)
	if err != nil {
		return err
	}

	return handle.clearOne(ctx, args)
}

func resolveObserver(override, fallback func(string)) func(string) {
	if override != nil {
		return override
	}

	if fallback != nil {
		return fallback
	}

	return func(string) {}
}

func resolveErrorObserver(override, fallback func(error)) func(error) {
	if override != nil {
		return override
	}

	if fallback != nil {
		return fallback
	}

	return func(error) {}
}
