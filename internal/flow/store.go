package flow

import (
	"sort"
	"sync"
)

// Store is the shared key/value context threaded through every stage of a
// run. Reads of missing keys never fail; they return the caller's default.
type Store struct {
	mu      sync.RWMutex
	values  map[string]any
	version uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]any)}
}

// Get returns the value stored under key, or def when the key is absent.
func (s *Store) Get(key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// Set stores value under key, overwriting any previous value.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	s.version++
	s.mu.Unlock()
}

// Version increases by one on every Set.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Keys returns the populated keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Key is a typed handle for a store entry. Declare one per entry so that
// producer and consumer stages agree on both the name and the type.
type Key[T any] struct {
	name string
}

// NewKey declares a typed key.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

func (k Key[T]) Name() string { return k.name }

// Lookup returns the value for k and whether it was present with type T.
func Lookup[T any](s *Store, k Key[T]) (T, bool) {
	v, ok := s.Get(k.name, nil).(T)
	return v, ok
}

// Get returns the value for k, or the zero value of T when the key is
// missing or holds a different type.
func Get[T any](s *Store, k Key[T]) T {
	v, _ := Lookup(s, k)
	return v
}

// GetOr returns the value for k, or def when it is missing.
func GetOr[T any](s *Store, k Key[T], def T) T {
	if v, ok := Lookup(s, k); ok {
		return v
	}
	return def
}

// Set writes v under k.
func Set[T any](s *Store, k Key[T], v T) {
	s.Set(k.name, v)
}
