// Package threadsafemap implements a small generic map safe for concurrent
// use. The cache core keys its in-flight coalescing tables with it: the
// compare-and-install semantics of [ThreadSafeMap.GetOrSet] decide in one
// critical section whether a caller starts a computation or joins a running
// one.
package threadsafemap

import (
	"sync"
)

// ThreadSafeMap is a generic map guarded by an RWMutex.
type ThreadSafeMap[K comparable, V any] struct {
	data map[K]V
	mu   sync.RWMutex
}

// New returns an empty thread-safe map ready for use.
func New[K comparable, V any]() *ThreadSafeMap[K, V] {
	return &ThreadSafeMap[K, V]{
		data: make(map[K]V),
	}
}

// Get retrieves the value for a key and whether it was present.
func (m *ThreadSafeMap[K, V]) Get(key K) (V, bool) {
	m.safetyCheck()
	m.mu.RLock()
	value, exists := m.data[key]
	m.mu.RUnlock()

	return value, exists
}

// GetOrSet installs value under key unless the key is already present.
// It returns the resident value and true when the key was already there,
// making it the building block for "first caller wins" coordination.
func (m *ThreadSafeMap[K, V]) GetOrSet(key K, value V) (V, bool) {
	m.safetyCheck()
	m.mu.Lock()

	existing, exists := m.data[key]
	if exists {
		m.mu.Unlock()

		return existing, true
	}

	m.data[key] = value
	m.mu.Unlock()

	return value, false
}

// Set unconditionally stores value under key.
func (m *ThreadSafeMap[K, V]) Set(key K, value V) {
	m.safetyCheck()
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
}

// Delete removes the key if it exists.
func (m *ThreadSafeMap[K, V]) Delete(key K) {
	m.safetyCheck()
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
}

// Clear drops every entry, resetting the map to its initial state.
func (m *ThreadSafeMap[K, V]) Clear() {
	m.safetyCheck()
	m.mu.Lock()
	m.data = make(map[K]V)
	m.mu.Unlock()
}

// Len reports the number of stored entries.
func (m *ThreadSafeMap[K, V]) Len() int {
	m.safetyCheck()
	m.mu.RLock()
	length := len(m.data)
	m.mu.RUnlock()

	return length
}

// Keys returns a snapshot of the currently stored keys.
func (m *ThreadSafeMap[K, V]) Keys() []K {
	m.safetyCheck()
	m.mu.RLock()

	keys := make([]K, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}

	m.mu.RUnlock()

	return keys
}
