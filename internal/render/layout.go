// Package render turns page URLs into rendered pages.
//
// A PageFactory matches the route of a URL, loads its props and state
// modules and hands a Request to the route's Layout. The Renderer then
// assembles the client side of the page: the module graph, the page state
// module, state modules, the hydrate script and the head tags. A Worker
// wraps a Renderer and reports each result as events so the build
// coordinator never waits on a return value.
package render

import (
	"context"
	"net/url"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/pagewright/internal/routes"
)

// Request is what a layout renders.
type Request struct {
	// Path is the page path without the site base
	Path   string
	Query  url.Values
	Params routes.Params
	Route  *routes.Route
	Props  map[string]any
	// Base is the production base path. Client code imports local modules
	// by base-prefixed URL.
	Base string
}

// Layout renders a request to an HTML document.
type Layout interface {
	Render(ctx context.Context, req *Request) (string, error)
}

// LayoutFunc adapts a function to Layout.
type LayoutFunc func(ctx context.Context, req *Request) (string, error)

// Render calls f.
func (f LayoutFunc) Render(ctx context.Context, req *Request) (string, error) {
	return f(ctx, req)
}

// ClientEntry is the generated module that hydrates a page. Its ID is
// relative to the assets directory.
type ClientEntry struct {
	ID   string
	Code string
}

// Hydrator is implemented by layouts whose pages hydrate on the client.
// A nil entry means the page ships no scripts.
type Hydrator interface {
	ClientEntry(req *Request) *ClientEntry
}

// TemplLayout renders pages with a templ component.
type TemplLayout struct {
	Component func(req *Request) templ.Component
	// Entry is optional
	Entry func(req *Request) *ClientEntry
}

// Render renders the component for req.
func (l *TemplLayout) Render(ctx context.Context, req *Request) (string, error) {
	var sb strings.Builder
	if err := l.Component(req).Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// ClientEntry implements Hydrator.
func (l *TemplLayout) ClientEntry(req *Request) *ClientEntry {
	if l.Entry == nil {
		return nil
	}
	return l.Entry(req)
}

// Layouts maps layout names to layouts. Routes without a layout name use
// the fallback.
type Layouts struct {
	named    map[string]Layout
	fallback Layout
}

// NewLayouts creates a registry with the given fallback layout.
func NewLayouts(fallback Layout) *Layouts {
	return &Layouts{named: make(map[string]Layout), fallback: fallback}
}

// Register adds a named layout. It returns the registry for chaining.
func (l *Layouts) Register(name string, layout Layout) *Layouts {
	l.named[name] = layout
	return l
}

// Lookup returns the layout for name.
func (l *Layouts) Lookup(name string) (Layout, bool) {
	if name == "" {
		return l.fallback, l.fallback != nil
	}
	layout, ok := l.named[name]
	return layout, ok
}
