package yastorage_test

import (
	"context"
	"testing"

	"github.com/YaCodeDev/GoYaAsyncCache/yastorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGC_InvalidOptions_ReportedNotThrown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	storage, _, _ := newTestRedis(t, true)

	t.Run("[GC] - unknown mode", func(t *testing.T) {
		report := storage.GC(ctx, "eager", yastorage.GCOptions{})

		require.ErrorIs(t, report.Error, yastorage.ErrInvalidGCMode)
		assert.Zero(t, report.ReferencesScanned)
	})

	t.Run("[GC] - negative chunk", func(t *testing.T) {
		report := storage.GC(ctx, yastorage.GCModeStrict, yastorage.GCOptions{Chunk: -1})

		require.ErrorIs(t, report.Error, yastorage.ErrInvalidGCChunk)
	})

	t.Run("[GC] - negative lazy chunk", func(t *testing.T) {
		report := storage.GC(ctx, yastorage.GCModeLazy, yastorage.GCOptions{
			Lazy: yastorage.LazyGCOptions{Chunk: -5},
		})

		require.ErrorIs(t, report.Error, yastorage.ErrInvalidGCChunk)
	})

	t.Run("[GC] - negative lazy cursor", func(t *testing.T) {
		report := storage.GC(ctx, yastorage.GCModeLazy, yastorage.GCOptions{
			Lazy: yastorage.LazyGCOptions{Cursor: -1},
		})

		require.ErrorIs(t, report.Error, yastorage.ErrInvalidGCCursor)
	})
}

func TestGC_Strict_ReconcilesDanglingReferences(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	storage, mr, client := newTestRedis(t, true)

	require.NoError(t, storage.Set(ctx, "foo~1", "1", yattl, []string{"fooers", "foo:1"}))
	require.NoError(t, storage.Set(ctx, "foo~2", "2", yattl, []string{"fooers"}))
	require.NoError(t, storage.Set(ctx, "boo~1", "3", yattl, []string{"booers"}))

	// Expire foo~1 behind the index's back, as TTL or eviction would.
	mr.Del("foo~1")

	report := storage.GC(ctx, yastorage.GCModeStrict, yastorage.GCOptions{Chunk: 10})

	require.NoError(t, report.Error)

	assert.Equal(t, int64(3), report.ReferencesScanned)
	assert.GreaterOrEqual(t, report.Loops, int64(1))
	assert.Equal(t, uint64(0), report.Cursor)

	t.Run("[GC] - dangling member dropped from shared set", func(t *testing.T) {
		members, err := client.SMembers(ctx, "r:fooers").Result()

		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"foo~2"}, members)
	})

	t.Run("[GC] - exhausted set removed entirely", func(t *testing.T) {
		exists, err := client.Exists(ctx, "r:foo:1").Result()

		require.NoError(t, err)
		assert.Equal(t, int64(0), exists)
	})

	t.Run("[GC] - healthy set untouched", func(t *testing.T) {
		members, err := client.SMembers(ctx, "r:booers").Result()

		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"boo~1"}, members)
	})

	t.Run("[GC] - report counts removals", func(t *testing.T) {
		assert.Equal(t, int64(2), report.KeysRemoved)
		assert.Equal(t, int64(1), report.ReferencesRemoved)
	})
}

func TestGC_Strict_PostCondition_NoDanglingMembers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	storage, mr, client := newTestRedis(t, true)

	for _, key := range []string{"a~1", "a~2", "a~3", "a~4"} {
		require.NoError(t, storage.Set(ctx, key, "v", yattl, []string{"grp:" + key, "all"}))
	}

	mr.Del("a~2")
	mr.Del("a~4")

	report := storage.GC(ctx, yastorage.GCModeStrict, yastorage.GCOptions{Chunk: 2})

	require.NoError(t, report.Error)

	sets, err := client.Keys(ctx, "r:*").Result()

	require.NoError(t, err)

	for _, set := range sets {
		members, err := client.SMembers(ctx, set).Result()

		require.NoError(t, err)
		require.NotEmpty(t, members)

		for _, member := range members {
			exists, err := client.Exists(ctx, member).Result()

			require.NoError(t, err)
			assert.Equal(t, int64(1), exists, "set %s still references %s", set, member)
		}
	}
}

func TestGC_Lazy_ScansOneChunk(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	storage, mr, _ := newTestRedis(t, true)

	for _, key := range []string{"a~1", "a~2", "a~3"} {
		require.NoError(t, storage.Set(ctx, key, "v", yattl, []string{"grp:" + key}))
	}

	mr.Del("a~1")

	report := storage.GC(ctx, yastorage.GCModeLazy, yastorage.GCOptions{
		Lazy: yastorage.LazyGCOptions{Chunk: 100, Cursor: 0},
	})

	require.NoError(t, report.Error)
	assert.Equal(t, int64(1), report.Loops)
	assert.LessOrEqual(t, report.ReferencesScanned, int64(3))
	assert.GreaterOrEqual(t, report.ReferencesScanned, int64(1))
}

func TestGC_EmptyKeyspace_Works(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	storage, _, _ := newTestRedis(t, true)

	report := storage.GC(ctx, yastorage.GCModeStrict, yastorage.GCOptions{})

	require.NoError(t, report.Error)
	assert.Zero(t, report.ReferencesScanned)
	assert.Zero(t, report.KeysRemoved)
}
