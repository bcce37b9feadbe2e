// Package pagestate serializes page props and state modules into the ES
// modules loaded by the client before hydration.
package pagestate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/conneroisu/pagewright/internal/cache"
)

// LoadFunc computes the state of a module for the given arguments. It may
// set ctl.MaxAge to bound how long the state stays cached.
type LoadFunc func(ctx context.Context, ctl *cache.Control, args ...any) (any, error)

// Module is a named unit of server-computed state that the client can
// import on its own.
type Module struct {
	Name string
	Load LoadFunc
	// Inline modules are written into the page state module instead of
	// being fetched from their own file.
	Inline bool
}

// Bind returns the module bound to args.
func (m *Module) Bind(args ...any) Bound {
	return Bound{Module: m, Args: args}
}

// Bound is a module together with its load arguments.
type Bound struct {
	Module *Module
	Args   []any
}

// Key identifies the bound module in caches and output file names.
func (b Bound) Key() string {
	return Key(b.Module.Name, b.Args)
}

// Key returns name when args is empty, else name followed by a short hash
// of the JSON encoded arguments.
func Key(name string, args []any) string {
	if len(args) == 0 {
		return name
	}
	data, err := json.Marshal(args)
	if err != nil {
		data = []byte(fmt.Sprint(args...))
	}
	sum := sha256.Sum256(data)
	return name + "." + hex.EncodeToString(sum[:])[:8]
}

// Loaded is the result of loading a bound module.
type Loaded struct {
	Bound
	State     any
	Timestamp time.Time
	// ExpiresAt is zero when the state never expires
	ExpiresAt time.Time
}

// MaxAge returns the remaining lifetime in whole seconds relative to the
// load time, or -1 for state that never expires.
func (l *Loaded) MaxAge() int {
	if l.ExpiresAt.IsZero() {
		return -1
	}
	return int(l.ExpiresAt.Sub(l.Timestamp) / time.Second)
}

// Import marks a nested value in client props as a reference to another
// state module. The page state module imports it lazily instead of
// embedding its state.
type Import struct {
	Key string
}

// ImportOf returns the reference for a bound module.
func ImportOf(b Bound) Import {
	return Import{Key: b.Key()}
}

// importKey reports whether value is a nested state reference. Both Import
// values and decoded {"@import": key} objects are recognized.
func importKey(value any) (string, bool) {
	switch v := value.(type) {
	case Import:
		return v.Key, v.Key != ""
	case *Import:
		if v != nil {
			return v.Key, v.Key != ""
		}
	case map[string]any:
		if len(v) == 1 {
			if key, ok := v["@import"].(string); ok {
				return key, key != ""
			}
		}
	}
	return "", false
}

// RenderStateModule renders the code that registers loaded state with the
// client cache. The inline form is a bare setState call for embedding in a
// page state module; otherwise a standalone module importing setState from
// cacheURL is returned.
func RenderStateModule(loaded *Loaded, cacheURL string, inline bool) string {
	args := loaded.Args
	if args == nil {
		args = []any{}
	}

	call := fmt.Sprintf("setState(%s,%s%s,%s%s,%s%d",
		quote(loaded.Module.Name),
		space, compactESM(args),
		space, DataToESM(loaded.State, nil),
		space, loaded.Timestamp.UnixMilli(),
	)
	if maxAge := loaded.MaxAge(); maxAge >= 0 {
		call += fmt.Sprintf(",%s%d", space, maxAge)
	}
	call += ")"

	if inline {
		return call
	}
	return fmt.Sprintf("import {%ssetState%s} from %s\nexport default %s", space, space, quote(cacheURL), call)
}

// compactESM renders short values such as argument lists on one line.
func compactESM(value any) string {
	code := DataToESM(value, nil)
	if !strings.Contains(code, ret) {
		return code
	}
	lines := strings.Split(code, ret)
	for i := range lines {
		lines[i] = strings.TrimLeft(lines[i], " ")
	}
	return strings.Join(lines, "")
}
