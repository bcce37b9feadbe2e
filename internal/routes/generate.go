package routes

import (
	"context"
	"fmt"
	"reflect"
	"strconv"

	"github.com/conneroisu/pagewright/internal/types"
)

// Set is the ordered list of declared routes plus the optional default
// route rendered for unmatched paths.
type Set struct {
	Routes      []*Route
	Default     *Route
	DefaultPath string
}

// Match returns the first route matching pagePath in declaration order,
// falling back to the default route.
func (s *Set) Match(pagePath string) (*Route, Params, bool) {
	for _, r := range s.Routes {
		if params, ok := r.Match(pagePath); ok {
			return r, params, true
		}
	}
	if s.Default != nil {
		return s.Default, Params{}, true
	}
	return nil, nil, false
}

// DefaultPagePath returns the page path of the default route.
func (s *Set) DefaultPagePath() string {
	if s.DefaultPath != "" {
		return s.DefaultPath
	}
	return DefaultPath
}

// Handlers receive the results of GenerateRoutePaths. params is nil for
// routes without keys.
type Handlers struct {
	Path  func(routePath string, params Params)
	Error func(failure types.FailedPage)
}

// GenerateRoutePaths walks the routes in declaration order and reports every
// static page path. Dynamic routes emit one path per generated param set,
// dynamic routes without a paths generator are skipped, and a paths
// generator on a route without keys is reported through Error. The default
// route is emitted last. Only cancellation of ctx stops the walk.
func GenerateRoutePaths(ctx context.Context, set *Set, h Handlers) error {
	for _, route := range set.Routes {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch {
		case route.Paths != nil && len(route.Keys) == 0:
			h.Error(types.FailedPage{
				Path:   route.Path,
				Reason: `route with "paths" needs a route parameter`,
			})

		case route.Paths != nil:
			results, err := route.Paths(ctx)
			if err != nil {
				h.Error(types.FailedPage{Path: route.Path, Reason: err.Error()})
				continue
			}
			for _, result := range results {
				params, err := NormalizeParams(route.Keys, result)
				if err != nil {
					h.Error(types.FailedPage{Path: route.Path, Reason: err.Error()})
					continue
				}
				h.Path(route.Path, params)
			}

		case len(route.Keys) == 0:
			h.Path(route.Path, nil)
		}
	}

	if set.Default != nil {
		h.Path(set.DefaultPagePath(), nil)
	}
	return nil
}

// NormalizeParams converts one generated param set into Params. Tuples are
// aligned positionally with keys.
func NormalizeParams(keys []string, result any) (Params, error) {
	params := make(Params, len(keys))

	switch v := result.(type) {
	case Params:
		for _, k := range keys {
			params[k] = v[k]
		}
		return params, nil
	case map[string]string:
		for _, k := range keys {
			params[k] = v[k]
		}
		return params, nil
	case map[string]any:
		for _, k := range keys {
			if val, ok := v[k]; ok && val != nil {
				params[k] = scalar(val)
			}
		}
		return params, nil
	}

	rv := reflect.ValueOf(result)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if rv.Len() < len(keys) {
			return nil, fmt.Errorf("param tuple has %d values for %d keys", rv.Len(), len(keys))
		}
		for i, k := range keys {
			params[k] = scalar(rv.Index(i).Interface())
		}
		return params, nil
	}

	if len(keys) != 1 {
		return nil, fmt.Errorf("scalar param %v needs a route with exactly one key", result)
	}
	params[keys[0]] = scalar(result)
	return params, nil
}

func scalar(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case int:
		return strconv.Itoa(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
