package concurrent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlice_Append(t *testing.T) {
	s := NewSlice[int]()

	s.Append(1)
	s.Append(2)
	s.Append(3)

	assert.Equal(t, 3, s.Length())
	assert.Equal(t, []int{1, 2, 3}, s.All())
}

func TestSlice_All(t *testing.T) {
	s := NewSlice[int]()
	s.Append(1)
	s.Append(2)

	all := s.All()
	assert.Equal(t, []int{1, 2}, all)

	// Verify it's a copy
	all[0] = 100
	assert.Equal(t, []int{1, 2}, s.All())
}

func TestSlice_Range(t *testing.T) {
	s := NewSlice[int]()
	s.Append(10)
	s.Append(20)
	s.Append(30)

	var collected []int
	s.Range(func(_, v int) bool {
		collected = append(collected, v)
		return true
	})
	assert.Equal(t, []int{10, 20, 30}, collected)

	// Test early termination
	collected = nil
	s.Range(func(i, v int) bool {
		collected = append(collected, v)
		return i < 1
	})
	assert.Equal(t, []int{10, 20}, collected)
}

func TestSlice_Concurrent(t *testing.T) {
	s := NewSlice[int]()
	var wg sync.WaitGroup

	for i := range 100 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Append(n)
		}(i)
	}

	wg.Wait()
	require.Equal(t, 100, s.Length())
}
