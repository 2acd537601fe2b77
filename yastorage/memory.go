package yastorage

import (
	"container/list"
	"context"
	"slices"
	"sync"

	"github.com/YaCodeDev/GoYaAsyncCache/yaclock"
	"github.com/YaCodeDev/GoYaAsyncCache/yalogger"
)

// Memory is the bounded in-memory backend: an LRU of TTL-stamped entries
// plus, when invalidation is enabled, a bidirectional key ↔ reference index.
//
// The LRU pairs a map with a doubly linked list so that lookups, promotions
// and evictions are all O(1). Reference lists are kept sorted and
// duplicate-free, which makes the set difference on re-set and the removal of
// single elements a binary search plus one copy.
//
// All state is guarded by one mutex; no operation performs I/O while holding
// it.
type Memory struct {
	size         int
	invalidation bool
	clock        yaclock.Clock
	log          yalogger.Logger

	mutex     sync.Mutex
	entries   map[string]*list.Element
	lru       *list.List
	keyToRefs map[string][]string
	refToKeys map[string][]string
}

// MemoryOptions configures [NewMemory].
type MemoryOptions struct {
	// Size bounds the number of live entries; defaults to
	// [DefaultMemorySize].
	Size int
	// Invalidation enables the reference index.
	Invalidation bool
	// Log defaults to [yalogger.Nop].
	Log yalogger.Logger
	// Clock defaults to [yaclock.System].
	Clock yaclock.Clock
}

// memoryEntry is the unit stored in the LRU list.
type memoryEntry struct {
	key        string
	value      any
	ttl        int64
	insertedAt int64
}

func (e *memoryEntry) expiresAt() int64 {
	return e.insertedAt + e.ttl
}

// NewMemory builds an empty memory backend.
//
// Example:
//
//	storage, err := yastorage.NewMemory(yastorage.MemoryOptions{
//		Size:         256,
//		Invalidation: true,
//	})
func NewMemory(opts MemoryOptions) (*Memory, error) {
	if opts.Size < 0 {
		return nil, ErrInvalidSize
	}

	if opts.Size == 0 {
		opts.Size = DefaultMemorySize
	}

	if opts.Log == nil {
		opts.Log = yalogger.Nop()
	}

	if opts.Clock == nil {
		opts.Clock = yaclock.System()
	}

	memory := &Memory{
		size:         opts.Size,
		invalidation: opts.Invalidation,
		clock:        opts.Clock,
		log:          opts.Log,
	}

	memory.reset()

	return memory, nil
}

// reset reinitializes every container. Callers hold the mutex, except during
// construction.
func (m *Memory) reset() {
	m.entries = make(map[string]*list.Element)
	m.lru = list.New()
	m.keyToRefs = make(map[string][]string)
	m.refToKeys = make(map[string][]string)
}

// Get implements [Storage]. A hit promotes the entry to most recently used.
// Expired entries are reported absent and scheduled for removal off the
// caller's path.
func (m *Memory) Get(ctx context.Context, key string) (any, bool, error) {
	m.mutex.Lock()

	element, ok := m.entries[key]
	if !ok {
		m.mutex.Unlock()

		return nil, false, nil
	}

	entry, _ := element.Value.(*memoryEntry)

	if entry.expiresAt() <= m.clock.Now() {
		m.mutex.Unlock()

		go m.removeExpired(key, entry.insertedAt)

		return nil, false, nil
	}

	m.lru.MoveToFront(element)

	value := entry.value

	m.mutex.Unlock()

	return value, true, nil
}

// removeExpired drops key if it still holds the entry observed at read time.
func (m *Memory) removeExpired(key string, insertedAt int64) {
	m.mutex.Lock()

	defer m.mutex.Unlock()

	element, ok := m.entries[key]
	if !ok {
		return
	}

	entry, _ := element.Value.(*memoryEntry)

	if entry.insertedAt != insertedAt {
		return
	}

	m.dropKeyLocked(key)
}

// Set implements [Storage].
func (m *Memory) Set(ctx context.Context, key string, value any, ttl int64, references []string) error {
	if ttl < 1 {
		return nil
	}

	m.mutex.Lock()

	defer m.mutex.Unlock()

	now := m.clock.Now()

	if element, ok := m.entries[key]; ok {
		entry, _ := element.Value.(*memoryEntry)
		entry.value = value
		entry.ttl = ttl
		entry.insertedAt = now

		m.lru.MoveToFront(element)
	} else {
		m.entries[key] = m.lru.PushFront(&memoryEntry{
			key:        key,
			value:      value,
			ttl:        ttl,
			insertedAt: now,
		})

		if m.lru.Len() > m.size {
			m.evictOldestLocked()
		}
	}

	if len(references) == 0 {
		return nil
	}

	if !m.invalidation {
		m.log.WithField("key", key).
			Warn("[MEMORY] invalidation is disabled, references are ignored")

		return nil
	}

	m.relinkReferencesLocked(key, dedupeSorted(references))

	return nil
}

// relinkReferencesLocked replaces the reference set of key with next, which
// must already be sorted and duplicate-free.
func (m *Memory) relinkReferencesLocked(key string, next []string) {
	previous := m.keyToRefs[key]

	for _, reference := range diffSorted(previous, next) {
		m.detachReferenceLocked(key, reference)
	}

	for _, reference := range diffSorted(next, previous) {
		m.refToKeys[reference] = insertSorted(m.refToKeys[reference], key)
	}

	m.keyToRefs[key] = next
}

// detachReferenceLocked unlinks key from reference on the reference side and
// garbage-collects the list when it empties.
func (m *Memory) detachReferenceLocked(key, reference string) {
	keys := removeSorted(m.refToKeys[reference], key)

	if len(keys) == 0 {
		delete(m.refToKeys, reference)
	} else {
		m.refToKeys[reference] = keys
	}
}

// evictOldestLocked removes the least-recently-used entry together with its
// references.
func (m *Memory) evictOldestLocked() {
	element := m.lru.Back()
	if element == nil {
		return
	}

	entry, _ := element.Value.(*memoryEntry)

	m.log.WithField("key", entry.key).Debug("[MEMORY] evicting least recently used entry")

	m.dropKeyLocked(entry.key)
}

// dropKeyLocked removes the entry and detaches every reference it held.
func (m *Memory) dropKeyLocked(key string) {
	element, ok := m.entries[key]
	if !ok {
		return
	}

	m.lru.Remove(element)
	delete(m.entries, key)

	for _, reference := range m.keyToRefs[key] {
		m.detachReferenceLocked(key, reference)
	}

	delete(m.keyToRefs, key)
}

// Remove implements [Storage].
func (m *Memory) Remove(ctx context.Context, key string) (bool, error) {
	m.mutex.Lock()

	defer m.mutex.Unlock()

	_, ok := m.entries[key]
	if !ok {
		return false, nil
	}

	m.dropKeyLocked(key)

	return true, nil
}

// Invalidate implements [Storage].
func (m *Memory) Invalidate(ctx context.Context, references []string) ([]string, error) {
	if len(references) == 0 {
		return nil, nil
	}

	if !m.invalidation {
		m.log.Warn("[MEMORY] invalidation is disabled")

		return nil, nil
	}

	m.mutex.Lock()

	defer m.mutex.Unlock()

	removed := make([]string, 0)

	for _, reference := range references {
		for _, resolved := range m.resolveReferenceLocked(reference) {
			keys := slices.Clone(m.refToKeys[resolved])

			for _, key := range keys {
				removed = insertSorted(removed, key)

				m.dropKeyLocked(key)
			}
		}
	}

	return removed, nil
}

// resolveReferenceLocked expands a wildcard pattern against the reference
// index; an exact reference resolves to itself when present.
func (m *Memory) resolveReferenceLocked(reference string) []string {
	if _, ok := m.refToKeys[reference]; ok {
		return []string{reference}
	}

	matched := make([]string, 0)

	for candidate := range m.refToKeys {
		if matchReference(reference, candidate) {
			matched = insertSorted(matched, candidate)
		}
	}

	return matched
}

// Clear implements [Storage].
func (m *Memory) Clear(ctx context.Context, prefix string) error {
	m.mutex.Lock()

	defer m.mutex.Unlock()

	if prefix == "" {
		m.reset()

		return nil
	}

	keys := make([]string, 0)

	for key := range m.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}

	for _, key := range keys {
		m.dropKeyLocked(key)
	}

	return nil
}

// GetTTL implements [Storage]. It does not touch LRU order.
func (m *Memory) GetTTL(ctx context.Context, key string) (int64, error) {
	m.mutex.Lock()

	defer m.mutex.Unlock()

	element, ok := m.entries[key]
	if !ok {
		return 0, nil
	}

	entry, _ := element.Value.(*memoryEntry)

	remaining := entry.expiresAt() - m.clock.Now()
	if remaining < 0 {
		remaining = 0
	}

	return remaining, nil
}

// Refresh implements [Storage].
func (m *Memory) Refresh(ctx context.Context) error {
	m.mutex.Lock()

	defer m.mutex.Unlock()

	m.reset()

	return nil
}

// Len reports the number of live entries, expired or not.
func (m *Memory) Len() int {
	m.mutex.Lock()

	defer m.mutex.Unlock()

	return m.lru.Len()
}

// References returns a snapshot of the reference index sides for key, used by
// tests to check the inversion invariant.
func (m *Memory) References(key string) []string {
	m.mutex.Lock()

	defer m.mutex.Unlock()

	return slices.Clone(m.keyToRefs[key])
}

// ReferencedKeys returns a snapshot of the keys attached to reference.
func (m *Memory) ReferencedKeys(reference string) []string {
	m.mutex.Lock()

	defer m.mutex.Unlock()

	return slices.Clone(m.refToKeys[reference])
}
