package yastorage

import (
	"context"
	"errors"
	"time"

	"github.com/YaCodeDev/GoYaAsyncCache/yahash"
	"github.com/YaCodeDev/GoYaAsyncCache/yalogger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// keyReferencesPrefix holds, for data key K, the set of references
	// attached to K under `k:K`.
	keyReferencesPrefix = "k:"
	// referenceKeysPrefix holds, for reference R, the inverse set of data
	// keys under `r:R`.
	referenceKeysPrefix = "r:"
)

// Redis is the Redis-backed storage: values live in plain strings with `EX`
// TTLs, the reference index in two families of sets (`k:<key>` and
// `r:<reference>`).
//
// Infrastructure failures are absorbed: commands that fail are logged with
// this instance's id and the operation falls back to a safe default (`Get`
// reports absent, `Invalidate` returns empty). The cache stays live when
// Redis does not.
type Redis struct {
	client        redis.UniversalClient
	invalidation  bool
	referencesTTL int64
	log           yalogger.Logger
}

// RedisOptions configures [NewRedis].
type RedisOptions struct {
	// Client is the connection commands are issued on. Required.
	Client redis.UniversalClient
	// Invalidation enables the reference index.
	Invalidation bool
	// ReferencesTTL is the reference-set lifetime in seconds, refreshed on
	// every write touching a reference; defaults to
	// [DefaultReferencesTTL].
	ReferencesTTL int64
	// Log defaults to [yalogger.Nop].
	Log yalogger.Logger
}

// NewRedis builds a Redis backend over an existing client.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	storage, err := yastorage.NewRedis(yastorage.RedisOptions{
//		Client:       client,
//		Invalidation: true,
//	})
func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.Client == nil {
		return nil, ErrMissingRedisClient
	}

	if opts.ReferencesTTL < 0 {
		return nil, ErrInvalidReferencesTTL
	}

	if opts.ReferencesTTL == 0 {
		opts.ReferencesTTL = DefaultReferencesTTL
	}

	if opts.Log == nil {
		opts.Log = yalogger.Nop()
	}

	return &Redis{
		client:        opts.Client,
		invalidation:  opts.Invalidation,
		referencesTTL: opts.ReferencesTTL,
		log:           opts.Log.WithField("storage", "redis").WithField("instance", uuid.NewString()),
	}, nil
}

// serialize renders value in its transport form. Strings and byte slices
// pass through, everything else is canonical-stringified.
func serialize(value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return typed, nil
	case []byte:
		return string(typed), nil
	default:
		return yahash.CanonicalString(value)
	}
}

// Get implements [Storage]. A miss with invalidation enabled detaches the
// key's dangling references before returning, so a Set that follows the miss
// cannot have its fresh reference sets cleared afterwards.
func (r *Redis) Get(ctx context.Context, key string) (any, bool, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			if r.invalidation {
				r.clearReferences(ctx, key)
			}

			return nil, false, nil
		}

		r.log.WithError(err).WithField("key", key).Error("[REDIS] failed `GET`")

		return nil, false, nil
	}

	return value, true, nil
}

// Set implements [Storage].
func (r *Redis) Set(ctx context.Context, key string, value any, ttl int64, references []string) error {
	if ttl < 1 {
		return nil
	}

	serialized, err := serialize(value)
	if err != nil {
		r.log.WithError(err).WithField("key", key).Error("[REDIS] failed to serialize value")

		return nil
	}

	expiry := time.Duration(ttl) * time.Second

	if len(references) == 0 {
		if err := r.client.Set(ctx, key, serialized, expiry).Err(); err != nil {
			r.log.WithError(err).WithField("key", key).Error("[REDIS] failed `SET`")
		}

		return nil
	}

	if !r.invalidation {
		r.log.WithField("key", key).
			Warn("[REDIS] invalidation is disabled, references are ignored")

		if err := r.client.Set(ctx, key, serialized, expiry).Err(); err != nil {
			r.log.WithError(err).WithField("key", key).Error("[REDIS] failed `SET`")
		}

		return nil
	}

	references = dedupeSorted(references)

	previous, err := r.client.SMembers(ctx, keyReferencesPrefix+key).Result()
	if err != nil {
		r.log.WithError(err).WithField("key", key).Error("[REDIS] failed `SMEMBERS`")

		previous = nil
	}

	previous = dedupeSorted(previous)

	pipe := r.client.Pipeline()

	pipe.Set(ctx, key, serialized, expiry)

	for _, reference := range diffSorted(previous, references) {
		pipe.SRem(ctx, referenceKeysPrefix+reference, key)
	}

	for _, reference := range references {
		pipe.SAdd(ctx, referenceKeysPrefix+reference, key)
		pipe.Expire(ctx, referenceKeysPrefix+reference, time.Duration(r.referencesTTL)*time.Second)
	}

	if len(previous) > 0 {
		pipe.Del(ctx, keyReferencesPrefix+key)
	}

	pipe.SAdd(ctx, keyReferencesPrefix+key, toAnySlice(references)...)
	pipe.Expire(ctx, keyReferencesPrefix+key, expiry)

	if _, err := pipe.Exec(ctx); err != nil {
		r.log.WithError(err).WithField("key", key).Error("[REDIS] failed reference pipeline")
	}

	return nil
}

// Remove implements [Storage].
func (r *Redis) Remove(ctx context.Context, key string) (bool, error) {
	removed, err := r.client.Del(ctx, key).Result()
	if err != nil {
		r.log.WithError(err).WithField("key", key).Error("[REDIS] failed `DEL`")

		return false, nil
	}

	if r.invalidation {
		r.clearReferences(ctx, key)
	}

	return removed > 0, nil
}

// Invalidate implements [Storage].
func (r *Redis) Invalidate(ctx context.Context, references []string) ([]string, error) {
	if len(references) == 0 {
		return nil, nil
	}

	if !r.invalidation {
		r.log.Warn("[REDIS] invalidation is disabled")

		return nil, nil
	}

	referenceSets := make([]string, 0, len(references))

	for _, reference := range references {
		resolved, err := r.resolveReferenceSets(ctx, reference)
		if err != nil {
			r.log.WithError(err).WithField("reference", reference).
				Error("[REDIS] failed to resolve reference pattern")

			continue
		}

		referenceSets = append(referenceSets, resolved...)
	}

	if len(referenceSets) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()

	memberCommands := make([]*redis.StringSliceCmd, 0, len(referenceSets))

	for _, set := range referenceSets {
		memberCommands = append(memberCommands, pipe.SMembers(ctx, set))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		r.log.WithError(err).Error("[REDIS] failed `SMEMBERS` pipeline")

		return nil, nil
	}

	removed := make([]string, 0)

	for _, command := range memberCommands {
		for _, key := range command.Val() {
			removed = insertSorted(removed, key)
		}
	}

	if len(removed) > 0 {
		if err := r.client.Del(ctx, removed...).Err(); err != nil {
			r.log.WithError(err).Error("[REDIS] failed `DEL`")

			return nil, nil
		}
	}

	if err := r.client.Del(ctx, referenceSets...).Err(); err != nil {
		r.log.WithError(err).Error("[REDIS] failed reference set `DEL`")
	}

	r.clearReferences(ctx, removed...)

	return removed, nil
}

// resolveReferenceSets expands a reference (or `*` pattern) into the matching
// `r:` set keys.
func (r *Redis) resolveReferenceSets(ctx context.Context, reference string) ([]string, error) {
	if !isWildcard(reference) {
		return []string{referenceKeysPrefix + reference}, nil
	}

	// `**` matches nothing.
	if !matchesAnything(reference) {
		return nil, nil
	}

	return r.client.Keys(ctx, referenceKeysPrefix+reference).Result()
}

// clearReferences detaches keys from every reference set they appear in and
// drops their `k:` sets.
func (r *Redis) clearReferences(ctx context.Context, keys ...string) {
	for _, key := range keys {
		references, err := r.client.SMembers(ctx, keyReferencesPrefix+key).Result()
		if err != nil {
			r.log.WithError(err).WithField("key", key).
				Error("[REDIS] failed `SMEMBERS` while clearing references")

			continue
		}

		pipe := r.client.Pipeline()

		for _, reference := range references {
			pipe.SRem(ctx, referenceKeysPrefix+reference, key)
		}

		pipe.Del(ctx, keyReferencesPrefix+key)

		if _, err := pipe.Exec(ctx); err != nil {
			r.log.WithError(err).WithField("key", key).
				Error("[REDIS] failed to clear references")
		}
	}
}

// Clear implements [Storage].
func (r *Redis) Clear(ctx context.Context, prefix string) error {
	if prefix == "" {
		return r.Refresh(ctx)
	}

	keys, err := r.client.Keys(ctx, prefix+"*").Result()
	if err != nil {
		r.log.WithError(err).WithField("prefix", prefix).Error("[REDIS] failed `KEYS`")

		return nil
	}

	if len(keys) == 0 {
		return nil
	}

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.log.WithError(err).WithField("prefix", prefix).Error("[REDIS] failed `DEL`")

		return nil
	}

	if r.invalidation {
		r.clearReferences(ctx, keys...)
	}

	return nil
}

// GetTTL implements [Storage]. `PTTL` is rounded up to whole seconds and
// negative answers collapse to 0.
func (r *Redis) GetTTL(ctx context.Context, key string) (int64, error) {
	remaining, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		r.log.WithError(err).WithField("key", key).Error("[REDIS] failed `PTTL`")

		return 0, nil
	}

	if remaining <= 0 {
		return 0, nil
	}

	milliseconds := remaining.Milliseconds()

	return (milliseconds + 999) / 1000, nil
}

// Refresh implements [Storage].
func (r *Redis) Refresh(ctx context.Context) error {
	if err := r.client.FlushAll(ctx).Err(); err != nil {
		r.log.WithError(err).Error("[REDIS] failed `FLUSHALL`")
	}

	return nil
}

func toAnySlice(values []string) []any {
	result := make([]any, len(values))

	for i, value := range values {
		result[i] = value
	}

	return result
}
