package concurrent

import "sync"

type Slice[V any] struct {
	mu     sync.RWMutex
	values []V
}

func NewSlice[V any]() *Slice[V] {
	return &Slice[V]{}
}

func (s *Slice[V]) Append(value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values = append(s.values, value)
}

func (s *Slice[V]) Length() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.values)
}

func (s *Slice[V]) All() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]V(nil), s.values...)
}

func (s *Slice[V]) Range(f func(index int, value V) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, v := range s.values {
		if !f(i, v) {
			break
		}
	}
}
