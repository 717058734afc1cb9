package lnutils

import "sync"

// SyncMap is a typed map that is safe for concurrent use. The zero value is
// ready to use.
type SyncMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// Store sets the value for key.
func (s *SyncMap[K, V]) Store(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.m == nil {
		s.m = make(map[K]V)
	}
	s.m[key] = value
}

// Load returns the value stored for key.
func (s *SyncMap[K, V]) Load(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.m[key]

	return v, ok
}

// Delete removes key.
func (s *SyncMap[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.m, key)
}

// Values returns a snapshot of the stored values in no particular order.
// Callers may modify the map while iterating the snapshot.
func (s *SyncMap[K, V]) Values() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make([]V, 0, len(s.m))
	for _, v := range s.m {
		values = append(values, v)
	}

	return values
}

// Len returns the number of entries.
func (s *SyncMap[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.m)
}
