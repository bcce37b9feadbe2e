package cache

import (
	lru "github.com/hashicorp/golang-lru"
)

// Memo is a bounded, least-recently-used memo table for pure computations
// such as import rewriting.
type Memo[V any] struct {
	cache *lru.Cache
}

// NewMemo creates a memo holding at most size results. A size below one
// yields a memo that stores nothing.
func NewMemo[V any](size int) (*Memo[V], error) {
	if size < 1 {
		return &Memo[V]{}, nil
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Memo[V]{cache: c}, nil
}

// Get returns the memoized value for key.
func (m *Memo[V]) Get(key string) (V, bool) {
	var zero V
	if m == nil || m.cache == nil {
		return zero, false
	}
	v, ok := m.cache.Get(key)
	if !ok {
		return zero, false
	}
	val, ok := v.(V)
	return val, ok
}

// Add stores value under key, evicting the oldest result when full.
func (m *Memo[V]) Add(key string, value V) {
	if m == nil || m.cache == nil {
		return
	}
	m.cache.Add(key, value)
}

// Purge drops every memoized result.
func (m *Memo[V]) Purge() {
	if m == nil || m.cache == nil {
		return
	}
	m.cache.Purge()
}

// Len returns the number of memoized results.
func (m *Memo[V]) Len() int {
	if m == nil || m.cache == nil {
		return 0
	}
	return m.cache.Len()
}
