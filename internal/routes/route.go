// Package routes declares the site's routes and enumerates the concrete
// page paths a build renders.
package routes

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/conneroisu/pagewright/internal/pagestate"
	"github.com/conneroisu/pagewright/internal/types"
)

// Params maps route keys to their values for one concrete page.
type Params map[string]string

// WildKey names the parameter captured by a "*" segment.
const WildKey = "wild"

// PathsFunc enumerates the param sets of a dynamic route. Each element is a
// map keyed by param name, a tuple aligned with the route keys, or a single
// scalar for one-key routes.
type PathsFunc func(ctx context.Context) ([]any, error)

// StateFunc loads the props of a page.
type StateFunc func(ctx context.Context, params Params, query url.Values) (map[string]any, error)

// IncludeFunc selects the state modules a page needs.
type IncludeFunc func(u types.ParsedURL, params Params) []pagestate.Bound

// Route is a declared URL pattern. Routes are immutable once loaded.
type Route struct {
	Path string
	Keys []string

	pattern  *regexp.Regexp
	optional map[string]bool

	// Paths enumerates static pages for routes with keys
	Paths PathsFunc
	// ModuleID is the client module hydrating pages of this route
	ModuleID string
	State    StateFunc
	Include  []pagestate.Bound
	// IncludeFunc adds state modules that depend on the page
	IncludeFunc IncludeFunc
	// Layout names the layout that renders the route
	Layout string
	// Meta carries layout-specific values such as a title
	Meta map[string]string
}

// Parse compiles a route pattern. Supported segments are static text,
// ":name", optional ":name?" and a trailing wildcard "*".
func Parse(path string) (*Route, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("route %q must start with a slash", path)
	}

	var (
		sb       strings.Builder
		keys     []string
		optional = map[string]bool{}
		seen     = map[string]bool{}
	)
	sb.WriteString("^")

	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		switch {
		case seg == "*":
			if i != len(segments)-1 {
				return nil, fmt.Errorf("route %q: wildcard must be the last segment", path)
			}
			keys = append(keys, WildKey)
			sb.WriteString("/(.*)")
		case strings.HasPrefix(seg, ":"):
			name := strings.TrimPrefix(seg, ":")
			opt := strings.HasSuffix(name, "?")
			name = strings.TrimSuffix(name, "?")
			if name == "" {
				return nil, fmt.Errorf("route %q: empty parameter name", path)
			}
			if seen[name] {
				return nil, fmt.Errorf("route %q: duplicate parameter %q", path, name)
			}
			seen[name] = true
			keys = append(keys, name)
			if opt {
				optional[name] = true
				sb.WriteString("(?:/([^/]+?))?")
			} else {
				sb.WriteString("/([^/]+?)")
			}
		default:
			sb.WriteString("/" + regexp.QuoteMeta(seg))
		}
	}
	sb.WriteString("/?$")

	pattern, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("route %q: %w", path, err)
	}

	return &Route{
		Path:     path,
		Keys:     keys,
		pattern:  pattern,
		optional: optional,
	}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(path string) *Route {
	r, err := Parse(path)
	if err != nil {
		panic(err)
	}
	return r
}

// Match reports whether pagePath matches the route and returns its params.
func (r *Route) Match(pagePath string) (Params, bool) {
	if r.pattern == nil {
		return nil, false
	}
	m := r.pattern.FindStringSubmatch(pagePath)
	if m == nil {
		return nil, false
	}
	params := make(Params, len(r.Keys))
	for i, key := range r.Keys {
		if v := m[i+1]; v != "" {
			if decoded, err := url.PathUnescape(v); err == nil {
				v = decoded
			}
			params[key] = v
		}
	}
	return params, true
}

// IsDynamic reports whether the route declares params.
func (r *Route) IsDynamic() bool {
	return len(r.Keys) > 0
}

// Includes returns the state modules a page of this route needs.
func (r *Route) Includes(u types.ParsedURL, params Params) []pagestate.Bound {
	out := append([]pagestate.Bound(nil), r.Include...)
	if r.IncludeFunc != nil {
		out = append(out, r.IncludeFunc(u, params)...)
	}
	return out
}
