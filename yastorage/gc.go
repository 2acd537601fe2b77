package yastorage

import (
	"context"
	"math/rand/v2"

	"github.com/redis/go-redis/v9"
)

// GCMode selects how much of the reference keyspace one [Redis.GC] run
// covers.
type GCMode string

const (
	// GCModeStrict walks every reference set before returning.
	GCModeStrict GCMode = "strict"
	// GCModeLazy reconciles one sampled chunk per invocation; repeated
	// runs from the returned cursor cover the keyspace probabilistically.
	GCModeLazy GCMode = "lazy"
)

// DefaultGCChunk is the SCAN count used when no chunk is configured.
const DefaultGCChunk = 64

// GCOptions tunes a [Redis.GC] run.
type GCOptions struct {
	// Chunk is the SCAN count per loop; defaults to [DefaultGCChunk].
	Chunk int64
	// Lazy configures [GCModeLazy] runs.
	Lazy LazyGCOptions
}

// LazyGCOptions carries the lazy-mode scan window.
type LazyGCOptions struct {
	// Chunk bounds how many reference sets one lazy run may visit;
	// defaults to [DefaultGCChunk].
	Chunk int64
	// Cursor is the SCAN cursor to resume from, 0 to start over. Negative
	// cursors are rejected.
	Cursor int64
}

// GCReport is the outcome of one [Redis.GC] run. Errors are captured, not
// thrown, so a failed run still reports how far it got.
type GCReport struct {
	ReferencesScanned int64
	ReferencesRemoved int64
	KeysScanned       int64
	KeysRemoved       int64
	Loops             int64
	Cursor            uint64
	Error             error
}

// GC reconciles reference sets against data keys that have expired or been
// evicted: dangling members are removed and exhausted sets deleted.
//
// Example:
//
//	report := storage.GC(ctx, yastorage.GCModeLazy, yastorage.GCOptions{
//		Lazy: yastorage.LazyGCOptions{Chunk: 128, Cursor: cursor},
//	})
//	if report.Error != nil {
//		log.WithError(report.Error).Warn("gc run failed")
//	}
//	cursor = report.Cursor
func (r *Redis) GC(ctx context.Context, mode GCMode, opts GCOptions) *GCReport {
	report := &GCReport{}

	if mode != GCModeStrict && mode != GCModeLazy {
		report.Error = ErrInvalidGCMode

		return report
	}

	if opts.Chunk == 0 {
		opts.Chunk = DefaultGCChunk
	}

	if opts.Lazy.Chunk == 0 {
		opts.Lazy.Chunk = DefaultGCChunk
	}

	if opts.Chunk < 0 || opts.Lazy.Chunk < 0 {
		report.Error = ErrInvalidGCChunk

		return report
	}

	if opts.Lazy.Cursor < 0 {
		report.Error = ErrInvalidGCCursor

		return report
	}

	if mode == GCModeLazy {
		r.gcLazy(ctx, opts, report)
	} else {
		r.gcStrict(ctx, opts, report)
	}

	return report
}

// gcStrict loops SCAN until the cursor wraps to zero or a loop makes no
// progress, then reconciles every collected set. Deleting sets only after the
// scan has finished keeps deletions from shifting sets past the cursor.
func (r *Redis) gcStrict(ctx context.Context, opts GCOptions, report *GCReport) {
	cursor := uint64(0)
	sets := make([]string, 0)

	for {
		batch, next, err := r.client.Scan(ctx, cursor, referenceKeysPrefix+"*", opts.Chunk).Result()
		if err != nil {
			report.Error = err

			return
		}

		report.Loops++

		for _, set := range batch {
			sets = insertSorted(sets, set)
		}

		if next == 0 || (next == cursor && len(batch) == 0) {
			break
		}

		cursor = next
	}

	report.Cursor = 0

	if err := r.reconcileReferenceSets(ctx, sets, report); err != nil {
		report.Error = err
	}
}

// gcLazy visits one sampled chunk starting at the caller's cursor.
func (r *Redis) gcLazy(ctx context.Context, opts GCOptions, report *GCReport) {
	sets, next, err := r.client.Scan(
		ctx,
		uint64(opts.Lazy.Cursor),
		referenceKeysPrefix+"*",
		opts.Lazy.Chunk,
	).Result()
	if err != nil {
		report.Error = err

		return
	}

	report.Loops = 1
	report.Cursor = next

	sets = sampleSets(sets, opts.Lazy.Chunk)

	if err := r.reconcileReferenceSets(ctx, sets, report); err != nil {
		report.Error = err
	}
}

// sampleSets returns up to limit elements of sets in random order, so that
// successive lazy runs probe different parts of a batch.
func sampleSets(sets []string, limit int64) []string {
	permutation := rand.Perm(len(sets))

	if limit > int64(len(sets)) {
		limit = int64(len(sets))
	}

	sampled := make([]string, 0, limit)

	for _, index := range permutation[:limit] {
		sampled = append(sampled, sets[index])
	}

	return sampled
}

// reconcileReferenceSets drops members whose data key no longer exists and
// deletes sets that end up empty.
func (r *Redis) reconcileReferenceSets(ctx context.Context, sets []string, report *GCReport) error {
	for _, set := range sets {
		report.ReferencesScanned++

		members, err := r.client.SMembers(ctx, set).Result()
		if err != nil {
			return err
		}

		if len(members) == 0 {
			report.ReferencesRemoved++

			if err := r.client.Del(ctx, set).Err(); err != nil {
				return err
			}

			continue
		}

		pipe := r.client.Pipeline()

		existsCommands := make([]*redis.IntCmd, 0, len(members))

		for _, member := range members {
			existsCommands = append(existsCommands, pipe.Exists(ctx, member))
		}

		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}

		dangling := make([]any, 0)

		for i, command := range existsCommands {
			report.KeysScanned++

			if command.Val() == 0 {
				dangling = append(dangling, members[i])
			}
		}

		if len(dangling) == 0 {
			continue
		}

		report.KeysRemoved += int64(len(dangling))

		if len(dangling) == len(members) {
			report.ReferencesRemoved++

			if err := r.client.Del(ctx, set).Err(); err != nil {
				return err
			}

			continue
		}

		if err := r.client.SRem(ctx, set, dangling...).Err(); err != nil {
			return err
		}
	}

	return nil
}
