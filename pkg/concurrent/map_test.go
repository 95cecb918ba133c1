package concurrent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_LoadStore(t *testing.T) {
	m := NewMap[string, int]()

	_, ok := m.Load("a")
	assert.False(t, ok)

	m.Store("a", 1)
	m.Store("b", 2)

	val, ok := m.Load("a")
	assert.True(t, ok)
	assert.Equal(t, 1, val)
	assert.Equal(t, 2, m.Length())
}

func TestMap_Delete(t *testing.T) {
	m := NewMap[string, int]()
	m.Store("a", 1)

	m.Delete("a")
	_, ok := m.Load("a")
	assert.False(t, ok)

	// Deleting an absent key is a no-op.
	m.Delete("a")
	assert.Equal(t, 0, m.Length())
}

func TestMap_Range(t *testing.T) {
	m := NewMap[string, int]()
	m.Store("a", 1)
	m.Store("b", 2)
	m.Store("c", 3)

	sum := 0
	m.Range(func(_ string, v int) bool {
		sum += v
		return true
	})
	assert.Equal(t, 6, sum)

	// Test early termination
	count := 0
	m.Range(func(_ string, _ int) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}

func TestMap_Concurrent(t *testing.T) {
	m := NewMap[int, int]()
	var wg sync.WaitGroup

	for i := range 100 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m.Store(n, n)
		}(i)
	}

	wg.Wait()
	require.Equal(t, 100, m.Length())
}
