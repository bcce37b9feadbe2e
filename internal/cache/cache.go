// Package cache provides the keyed state cache shared by page renders.
//
// A StateCache holds one entry per key. Concurrent Load calls for the same
// key join a single in-flight loader, and the loader decides the expiration
// of the entry it produces through Control.MaxAge. Page results, client
// props and state modules all live in StateCaches owned by the build
// context.
package cache

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Control is handed to a loader. Setting MaxAge (seconds) while the loader
// runs fixes the expiration of the produced entry. A negative MaxAge, the
// default, means the entry never expires.
type Control struct {
	MaxAge int
}

// Entry is a cached state together with the arguments that produced it.
type Entry[T any] struct {
	State     T
	Args      []any
	Timestamp time.Time
	// ExpiresAt is zero for entries that never expire
	ExpiresAt time.Time
}

// Expired reports whether the entry is stale at now.
func (e *Entry[T]) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Loader produces the state for a key. The context is detached from the
// cancellation of the caller that started the load, since other callers
// may have joined it.
type Loader[T any] func(ctx context.Context, ctl *Control) (T, error)

// Option configures a StateCache.
type Option func(*options)

type options struct {
	name    string
	clock   func() time.Time
	metrics *Metrics
}

// WithName sets the cache label used in metrics and logs.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithClock replaces time.Now. Tests use it to simulate expiry.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithMetrics records hits, misses and loads on m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// StateCache is a keyed async cache with at most one in-flight loader per key.
type StateCache[T any] struct {
	name    string
	now     func() time.Time
	metrics *Metrics

	mutex    sync.RWMutex
	entries  map[string]*Entry[T]
	inflight map[string]int
	// epoch is bumped when a key is cleared so that a load started before
	// the clear does not store its stale result.
	epoch map[string]uint64
	group singleflight.Group
}

// New creates an empty StateCache.
func New[T any](opts ...Option) *StateCache[T] {
	o := options{name: "state", clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &StateCache[T]{
		name:     o.name,
		now:      o.clock,
		metrics:  o.metrics,
		entries:  make(map[string]*Entry[T]),
		inflight: make(map[string]int),
		epoch:    make(map[string]uint64),
	}
}

// Name returns the cache label.
func (c *StateCache[T]) Name() string {
	return c.name
}

// Has reports whether key has an unexpired entry or a load in flight.
func (c *StateCache[T]) Has(key string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if c.inflight[key] > 0 {
		return true
	}
	e, ok := c.entries[key]
	return ok && !e.Expired(c.now())
}

// Get returns the cached state for key without loading.
func (c *StateCache[T]) Get(key string) (T, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	e, ok := c.entries[key]
	if !ok || e.Expired(c.now()) {
		var zero T
		return zero, false
	}
	return e.State, true
}

// Access returns a copy of the current entry for key, if it is unexpired.
// It never triggers a load.
func (c *StateCache[T]) Access(key string) (Entry[T], bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	e, ok := c.entries[key]
	if !ok || e.Expired(c.now()) {
		return Entry[T]{}, false
	}
	return *e, true
}

// Load returns the cached state for key, joining an in-flight load or
// starting one with loader when neither exists. Loader errors reach every
// joined caller and leave no entry behind. ctx only bounds how long this
// caller waits.
func (c *StateCache[T]) Load(ctx context.Context, key string, loader Loader[T], args ...any) (T, error) {
	var zero T

	c.mutex.RLock()
	e, ok := c.entries[key]
	joined := c.inflight[key] > 0
	c.mutex.RUnlock()

	if ok && !e.Expired(c.now()) {
		c.metrics.hit(c.name)
		return e.State, nil
	}
	if joined {
		c.metrics.join(c.name)
	} else {
		c.metrics.miss(c.name)
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.run(ctx, key, loader, args)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		state, _ := res.Val.(T)
		return state, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *StateCache[T]) run(ctx context.Context, key string, loader Loader[T], args []any) (val interface{}, err error) {
	c.mutex.Lock()
	// A load that finished between the caller's lookup and this flight
	// already produced a usable entry.
	if e, ok := c.entries[key]; ok && !e.Expired(c.now()) {
		c.mutex.Unlock()
		return e.State, nil
	}
	c.inflight[key]++
	epoch := c.epoch[key]
	c.mutex.Unlock()

	c.metrics.load(c.name)
	ctl := &Control{MaxAge: -1}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader for %q panicked: %v\n%s", key, r, debug.Stack())
		}

		c.mutex.Lock()
		defer c.mutex.Unlock()
		if c.inflight[key]--; c.inflight[key] <= 0 {
			delete(c.inflight, key)
		}
		if err != nil {
			c.metrics.loadError(c.name)
			return
		}
		if c.epoch[key] != epoch {
			return
		}
		now := c.now()
		state, _ := val.(T)
		entry := &Entry[T]{State: state, Args: args, Timestamp: now}
		if ctl.MaxAge >= 0 {
			entry.ExpiresAt = now.Add(time.Duration(ctl.MaxAge) * time.Second)
		}
		c.entries[key] = entry
	}()

	state, err := loader(context.WithoutCancel(ctx), ctl)
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Set stores state under key directly, replacing any entry.
func (c *StateCache[T]) Set(key string, state T, maxAge int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	now := c.now()
	entry := &Entry[T]{State: state, Timestamp: now}
	if maxAge >= 0 {
		entry.ExpiresAt = now.Add(time.Duration(maxAge) * time.Second)
	}
	c.entries[key] = entry
}

// Clear removes the given keys. Loads in flight for those keys still
// resolve for their callers but their results are not stored.
func (c *StateCache[T]) Clear(keys ...string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for _, key := range keys {
		c.clearLocked(key)
	}
}

// ClearFunc removes every key for which filter returns true.
func (c *StateCache[T]) ClearFunc(filter func(key string) bool) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	removed := 0
	for key := range c.entries {
		if filter(key) {
			c.clearLocked(key)
			removed++
		}
	}
	for key := range c.inflight {
		if filter(key) {
			c.clearLocked(key)
		}
	}
	return removed
}

// Reset removes every entry.
func (c *StateCache[T]) Reset() {
	c.ClearFunc(func(string) bool { return true })
}

func (c *StateCache[T]) clearLocked(key string) {
	delete(c.entries, key)
	c.epoch[key]++
	c.group.Forget(key)
}

// ForEach calls fn for every unexpired entry in key order until fn returns
// false.
func (c *StateCache[T]) ForEach(fn func(key string, entry Entry[T]) bool) {
	c.mutex.RLock()
	now := c.now()
	keys := make([]string, 0, len(c.entries))
	snapshot := make(map[string]Entry[T], len(c.entries))
	for key, e := range c.entries {
		if e.Expired(now) {
			continue
		}
		keys = append(keys, key)
		snapshot[key] = *e
	}
	c.mutex.RUnlock()

	sort.Strings(keys)
	for _, key := range keys {
		if !fn(key, snapshot[key]) {
			return
		}
	}
}

// Len returns the number of stored entries, expired or not.
func (c *StateCache[T]) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}
