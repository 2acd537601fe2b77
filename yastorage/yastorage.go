// Package yastorage provides the pluggable storage backends of the cache: a
// bounded in-memory LRU and a Redis-backed store, both with an optional
// reference (tag) index for group invalidation, behind one [Storage]
// interface. Callers that bring their own backend plug it in through the
// custom type.
//
// # Reference semantics
//
// A reference is an opaque string attached to one or more data keys. Writing
// a key with a reference set replaces its previous set: references present
// before and not after are detached, new ones are added. Invalidating a
// reference removes every key attached to it; references that become empty
// are garbage-collected. Patterns containing `*` match any substring during
// invalidation, with the single exception that `**` matches nothing.
//
// # Quick start
//
//	storage, err := yastorage.New(yastorage.Options{
//		Type:         yastorage.TypeMemory,
//		Size:         1024,
//		Invalidation: true,
//	})
//	if err != nil {
//		return err
//	}
//
//	_ = storage.Set(ctx, "user~42", profile, 60, []string{"user:42"})
//	removed, _ := storage.Invalidate(ctx, []string{"user:42"})
package yastorage

import (
	"context"
	"fmt"

	"github.com/YaCodeDev/GoYaAsyncCache/yaclock"
	"github.com/YaCodeDev/GoYaAsyncCache/yalogger"
	"github.com/redis/go-redis/v9"
)

// Type selects a concrete backend in [New].
type Type string

const (
	// TypeMemory is the bounded in-memory LRU backend.
	TypeMemory Type = "memory"
	// TypeRedis is the Redis-backed backend.
	TypeRedis Type = "redis"
	// TypeCustom wraps a caller-supplied [Storage].
	TypeCustom Type = "custom"
)

const (
	// DefaultMemorySize bounds the memory backend when no size is given.
	DefaultMemorySize = 1024
	// DefaultReferencesTTL is the lifetime in seconds of Redis reference
	// sets, refreshed on every write touching them.
	DefaultReferencesTTL = 60
)

// Storage is the contract every cache backend implements.
//
// TTLs are whole seconds. Backends absorb their own infrastructure failures
// where the contract says so (the Redis backend logs and returns safe
// defaults); errors returned here are meant for caller-supplied backends and
// are absorbed by the cache core, never propagated to wrapped-function
// callers.
type Storage interface {
	// Get returns the value stored under key and whether it was present.
	// Expired entries are reported absent.
	Get(ctx context.Context, key string) (any, bool, error)

	// Set stores value under key for ttl seconds, attaching the given
	// references. A ttl below 1 makes the call a no-op. Empty references
	// leave the key's existing reference set untouched.
	Set(ctx context.Context, key string, value any, ttl int64, references []string) error

	// Remove deletes key and reports whether it was present.
	Remove(ctx context.Context, key string) (bool, error)

	// Invalidate removes every key attached to the given references
	// (exact strings or `*` wildcards) and returns the removed keys.
	// Empty input is a no-op returning empty.
	Invalidate(ctx context.Context, references []string) ([]string, error)

	// Clear empties the store. A non-empty prefix restricts removal to
	// keys whose textual key starts with it.
	Clear(ctx context.Context, prefix string) error

	// GetTTL returns the remaining lifetime of key in seconds, 0 when the
	// key is absent or expired.
	GetTTL(ctx context.Context, key string) (int64, error)

	// Refresh reinitializes the backend to an empty state.
	Refresh(ctx context.Context) error
}

// Options configures [New].
type Options struct {
	// Type selects the backend.
	Type Type
	// Size bounds the memory backend; defaults to [DefaultMemorySize].
	Size int
	// Invalidation enables the reference index. Without it, references
	// passed to Set are ignored with a warning and Invalidate is a no-op.
	Invalidation bool
	// Client is the Redis connection the redis backend issues commands on.
	Client redis.UniversalClient
	// ReferencesTTL overrides the Redis reference-set lifetime in seconds.
	ReferencesTTL int64
	// Custom is the caller-supplied backend for [TypeCustom].
	Custom Storage
	// Log receives debug/warn/error messages; defaults to [yalogger.Nop].
	Log yalogger.Logger
	// Clock stamps memory entries; defaults to [yaclock.System].
	Clock yaclock.Clock
}

// New builds a storage backend from the given options.
//
// Example:
//
//	storage, err := yastorage.New(yastorage.Options{
//		Type:          yastorage.TypeRedis,
//		Client:        client,
//		Invalidation:  true,
//		ReferencesTTL: 120,
//	})
func New(opts Options) (Storage, error) {
	switch opts.Type {
	case TypeMemory:
		return NewMemory(MemoryOptions{
			Size:         opts.Size,
			Invalidation: opts.Invalidation,
			Log:          opts.Log,
			Clock:        opts.Clock,
		})
	case TypeRedis:
		return NewRedis(RedisOptions{
			Client:        opts.Client,
			Invalidation:  opts.Invalidation,
			ReferencesTTL: opts.ReferencesTTL,
			Log:           opts.Log,
		})
	case TypeCustom:
		if opts.Custom == nil {
			return nil, ErrMissingCustomStorage
		}

		return opts.Custom, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStorageType, opts.Type)
	}
}
