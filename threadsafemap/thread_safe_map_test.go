package threadsafemap_test

import (
	"sync"
	"testing"

	"github.com/YaCodeDev/GoYaAsyncCache/threadsafemap"
	"github.com/stretchr/testify/assert"
)

func TestThreadSafeMap_GetOrSet_FirstCallerWins(t *testing.T) {
	t.Parallel()

	m := threadsafemap.New[string, int]()

	value, existed := m.GetOrSet("key", 1)

	assert.False(t, existed)
	assert.Equal(t, 1, value)

	value, existed = m.GetOrSet("key", 2)

	assert.True(t, existed)
	assert.Equal(t, 1, value)
}

func TestThreadSafeMap_GetOrSet_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	m := threadsafemap.New[string, int]()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)

	for i := range 64 {
		wg.Add(1)

		go func(value int) {
			defer wg.Done()

			if _, existed := m.GetOrSet("key", value); !existed {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, m.Len())
}

func TestThreadSafeMap_DeleteAndClear_Works(t *testing.T) {
	t.Parallel()

	m := threadsafemap.New[string, string]()

	m.Set("a", "1")
	m.Set("b", "2")

	m.Delete("a")

	_, exists := m.Get("a")

	assert.False(t, exists)
	assert.ElementsMatch(t, []string{"b"}, m.Keys())

	m.Clear()

	assert.Equal(t, 0, m.Len())
}

func TestThreadSafeMap_ZeroValue_Usable(t *testing.T) {
	t.Parallel()

	var m threadsafemap.ThreadSafeMap[string, int]

	m.Set("a", 1)

	value, exists := m.Get("a")

	assert.True(t, exists)
	assert.Equal(t, 1, value)
}
