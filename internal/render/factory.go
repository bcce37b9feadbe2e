package render

import (
	"context"
	"fmt"

	"github.com/conneroisu/pagewright/internal/cache"
	"github.com/conneroisu/pagewright/internal/errors"
	"github.com/conneroisu/pagewright/internal/html"
	"github.com/conneroisu/pagewright/internal/logging"
	"github.com/conneroisu/pagewright/internal/pagestate"
	"github.com/conneroisu/pagewright/internal/routes"
	"github.com/conneroisu/pagewright/internal/site"
	"github.com/conneroisu/pagewright/internal/types"
)

// Page is a rendered document before its client modules are assembled.
// Cached pages are shared, so a Page must not be modified.
type Page struct {
	Path   string
	Route  *routes.Route
	Params routes.Params
	HTML   string
	Head   types.HeadMetadata
	Props  map[string]any
	// States holds every state module the page included
	States []*pagestate.Loaded
	Client *ClientEntry
	Files  []types.OutputFile
}

// PageFactory renders the documents of a site.
type PageFactory struct {
	site    *site.Context
	layouts *Layouts
	pages   *cache.StateCache[*Page]
	logger  logging.Logger
}

// NewPageFactory creates a factory. Its page cache is emptied whenever the
// site reloads.
func NewPageFactory(sc *site.Context, layouts *Layouts) *PageFactory {
	f := &PageFactory{
		site:    sc,
		layouts: layouts,
		pages:   cache.New[*Page](cache.WithName("pages"), cache.WithMetrics(sc.Metrics), cache.WithClock(sc.Clock())),
		logger:  sc.Logger.WithComponent("pages"),
	}
	sc.OnReload(f.pages.Reset)
	return f
}

// Cached reports whether a page for path is cached or being rendered.
func (f *PageFactory) Cached(path string) bool {
	return f.pages.Has(path)
}

// Render renders the page at u. It returns nil when no route matches. When
// a page max age is configured, pages are cached by path.
func (f *PageFactory) Render(ctx context.Context, u types.ParsedURL) (*Page, error) {
	maxAge := f.site.Config.Build.PageMaxAge
	if maxAge < 0 {
		return f.render(ctx, u)
	}
	return f.pages.Load(ctx, u.Path, func(ctx context.Context, ctl *cache.Control) (*Page, error) {
		page, err := f.render(ctx, u)
		ctl.MaxAge = maxAge
		return page, err
	})
}

func (f *PageFactory) render(ctx context.Context, u types.ParsedURL) (*Page, error) {
	route, params, ok := f.site.Routes().Match(u.Path)
	if !ok {
		f.logger.Debug(ctx, "no route matches page", "path", u.Path)
		return nil, nil
	}

	layout, ok := f.layouts.Lookup(route.Layout)
	if !ok {
		return nil, errors.NewRenderError(errors.ErrCodeRenderFailed,
			fmt.Sprintf("route %s uses unknown layout %q", route.Path, route.Layout), nil).WithPath(u.Path)
	}

	props, err := f.loadProps(ctx, u, route, params)
	if err != nil {
		return nil, errors.NewRenderError(errors.ErrCodeRenderFailed, "loading page props", err).WithPath(u.Path)
	}

	states, err := pagestate.LoadAll(ctx, f.site.States, route.Includes(u, params))
	if err != nil {
		return nil, errors.NewRenderError(errors.ErrCodeRenderFailed, "loading state modules", err).WithPath(u.Path)
	}

	req := &Request{
		Path:   u.Path,
		Query:  u.Query,
		Params: params,
		Route:  route,
		Props:  props,
		Base:   f.site.Base(),
	}
	doc, err := layout.Render(ctx, req)
	if err != nil {
		return nil, errors.NewRenderError(errors.ErrCodeRenderFailed, "rendering layout", err).WithPath(u.Path)
	}

	page := &Page{
		Path:   u.Path,
		Route:  route,
		Params: params,
		HTML:   doc,
		Props:  props,
		States: states,
	}
	if doc == "" {
		return page, nil
	}

	if page.Head, err = html.ExtractHead(doc); err != nil {
		return nil, errors.NewRenderError(errors.ErrCodeRenderFailed, "reading page head", err).WithPath(u.Path)
	}
	if h, ok := layout.(Hydrator); ok {
		page.Client = h.ClientEntry(req)
	}
	return page, nil
}

// loadProps runs the route's state function, caching the result by path
// when a props max age is configured.
func (f *PageFactory) loadProps(ctx context.Context, u types.ParsedURL, route *routes.Route, params routes.Params) (map[string]any, error) {
	if route.State == nil {
		return map[string]any{}, nil
	}
	maxAge := f.site.Config.Build.PropsMaxAge
	if maxAge < 0 {
		return route.State(ctx, params, u.Query)
	}
	return f.site.Props.Load(ctx, "props:"+u.Path, func(ctx context.Context, ctl *cache.Control) (map[string]any, error) {
		props, err := route.State(ctx, params, u.Query)
		ctl.MaxAge = maxAge
		return props, err
	})
}
