package pagestate

import (
	"context"
	"fmt"
	"time"

	"github.com/conneroisu/pagewright/internal/cache"
)

// Load resolves a bound module through the state cache. Concurrent pages
// that include the same bound module share one load.
func Load(ctx context.Context, states *cache.StateCache[any], b Bound) (*Loaded, error) {
	if b.Module == nil || b.Module.Load == nil {
		return nil, fmt.Errorf("state module has no loader")
	}
	key := b.Key()

	state, err := states.Load(ctx, key, func(ctx context.Context, ctl *cache.Control) (any, error) {
		return b.Module.Load(ctx, ctl, b.Args...)
	}, b.Args...)
	if err != nil {
		return nil, fmt.Errorf("loading state module %q: %w", key, err)
	}

	loaded := &Loaded{Bound: b, State: state, Timestamp: time.Now()}
	if entry, ok := states.Access(key); ok {
		loaded.Timestamp = entry.Timestamp
		loaded.ExpiresAt = entry.ExpiresAt
	}
	return loaded, nil
}

// LoadAll loads every bound module in order, stopping at the first error.
func LoadAll(ctx context.Context, states *cache.StateCache[any], include []Bound) ([]*Loaded, error) {
	loaded := make([]*Loaded, 0, len(include))
	seen := make(map[string]bool, len(include))
	for _, b := range include {
		if seen[b.Key()] {
			continue
		}
		seen[b.Key()] = true
		l, err := Load(ctx, states, b)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, l)
	}
	return loaded, nil
}
