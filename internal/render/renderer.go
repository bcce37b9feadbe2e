package render

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/conneroisu/pagewright/internal/errors"
	"github.com/conneroisu/pagewright/internal/html"
	"github.com/conneroisu/pagewright/internal/logging"
	"github.com/conneroisu/pagewright/internal/modules"
	"github.com/conneroisu/pagewright/internal/pagestate"
	"github.com/conneroisu/pagewright/internal/routes"
	"github.com/conneroisu/pagewright/internal/site"
	"github.com/conneroisu/pagewright/internal/types"
)

// Renderer assembles rendered pages for the production and debug views.
type Renderer struct {
	site       *site.Context
	factory    *PageFactory
	processors []html.Processor
	logger     logging.Logger
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithProcessors adds HTML post processors run on every page before the
// built-in ones.
func WithProcessors(processors ...html.Processor) RendererOption {
	return func(r *Renderer) {
		r.processors = append(r.processors, processors...)
	}
}

// NewRenderer creates a renderer with its own page factory.
func NewRenderer(sc *site.Context, layouts *Layouts, opts ...RendererOption) *Renderer {
	r := &Renderer{
		site:    sc,
		factory: NewPageFactory(sc, layouts),
		logger:  sc.Logger.WithComponent("render"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Factory returns the page factory of the renderer.
func (r *Renderer) Factory() *PageFactory {
	return r.factory
}

// RenderPage renders the page at pageURL, a URL starting with the site
// base or the debug base. It returns nil without error for URLs outside
// the base and for paths no route matches.
func (r *Renderer) RenderPage(ctx context.Context, pageURL string) (*types.RenderedPage, error) {
	base := r.site.Base()
	if !strings.HasPrefix(pageURL, base) {
		return nil, nil
	}

	debug := false
	if debugBase := r.site.DebugBase(); debugBase != "" && strings.HasPrefix(pageURL, debugBase) {
		base = debugBase
		debug = true
	}

	u := types.ParseURL(pageURL[len(base)-1:])
	publicPath := base + strings.TrimPrefix(u.Path, "/")

	page, err := r.factory.Render(ctx, u)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, nil
	}

	// The debug base stays in the filename, the production base does not.
	pagePath := strings.Replace(publicPath, r.site.Base(), "/", 1)
	filename := routes.PageFilename(pagePath)

	if page.HTML == "" {
		return &types.RenderedPage{
			ID:      filename,
			Route:   page.Route.Path,
			Files:   page.Files,
			Modules: types.NewModuleSet(),
			Assets:  types.NewModuleSet(),
		}, nil
	}

	g := modules.NewGraph(r.site.Modules, modules.GraphOptions{
		Base:     r.site.Base(),
		DebugDir: r.site.DebugDir(),
		Debug:    debug,
		Rewrites: r.site.Rewrites,
		Logger:   r.logger,
	})

	var routeModule *types.ClientModule
	if page.Route.ModuleID != "" {
		routeModule = g.AddModule(page.Route.ModuleID)
	}

	var bodyTags []html.Tag
	switch {
	case page.Client == nil:
	case routeModule == nil:
		r.logger.Warn(ctx, nil, "page has a client entry but no route module", "path", u.Path)
	default:
		script, err := r.hydrate(g, page, u, filename, routeModule, debug)
		if err != nil {
			return nil, err
		}
		bodyTags = append(bodyTags, html.ModuleScript(script))
	}

	var headTags []html.Tag
	for _, m := range g.Modules.All() {
		headTags = append(headTags, html.ModulePreload(g.URL(m.ID)))
	}
	for _, a := range g.Assets.All() {
		if url := r.site.Base() + a.ID; html.IsCSS(url) {
			headTags = append(headTags, html.Stylesheet(url))
		}
	}

	doc, err := html.InjectToHead(page.HTML, headTags)
	if err != nil {
		return nil, errors.NewRenderError(errors.ErrCodeRenderFailed, "injecting head tags", err).WithPath(u.Path)
	}
	if len(bodyTags) > 0 {
		if doc, err = html.InjectToBody(doc, bodyTags); err != nil {
			return nil, errors.NewRenderError(errors.ErrCodeRenderFailed, "injecting body tags", err).WithPath(u.Path)
		}
	}

	doc, err = html.Apply(ctx, doc, r.postProcessors(debug, base), r.site.Config.Build.HTMLTimeout)
	if err != nil {
		return nil, err
	}

	return &types.RenderedPage{
		ID:      filename,
		HTML:    doc,
		Head:    page.Head,
		Props:   page.Props,
		Route:   page.Route.Path,
		Files:   page.Files,
		Modules: g.Modules,
		Assets:  g.Assets,
	}, nil
}

// hydrate adds the entry module, the page state module and the state
// modules of page to g and returns the inline script that hydrates it.
func (r *Renderer) hydrate(g *modules.Graph, page *Page, u types.ParsedURL, filename string, routeModule *types.ClientModule, debug bool) (string, error) {
	base := r.site.Base()
	helpersID := r.site.HelpersID()

	entryID := path.Join(r.site.Config.Build.AssetsDir, page.Client.ID)
	if debug {
		entryID = r.site.DebugDir() + entryID
	}
	entry := &types.ClientModule{Kind: types.ModuleReferenced, ID: entryID, Text: page.Client.Code}
	rewritten := g.RewriteImports(entry)
	entry.Text = rewritten.Text
	entry.Imports = rewritten.Imported
	for _, id := range entry.Imports {
		g.AddModule(id)
	}
	g.Modules.Add(entry)

	preload := g.PreloadList(routeModule, entry)

	helpers := g.AddModule(helpersID)
	if helpers == nil {
		return "", errors.NewModuleError(errors.ErrCodeUnknownModule,
			fmt.Sprintf("client runtime %q is not registered", helpersID))
	}

	pageStateID := filename + ".js"
	stateText := pagestate.RenderPageState(&pagestate.Page{
		Path:        u.Path,
		ClientProps: page.Props,
		Head:        page.Head,
		Included:    page.States,
	}, pagestate.Options{
		Base:       base,
		HelpersID:  helpers.ID,
		CacheID:    helpers.ID,
		PreloadIDs: preload,
	})
	g.Modules.Add(&types.ClientModule{
		Kind:    types.ModuleReferenced,
		ID:      pageStateID,
		Text:    stateText,
		Exports: []string{"default"},
		Imports: localImports(stateText, base),
	})

	// State modules keep their id in the debug view.
	for i := len(page.States) - 1; i >= 0; i-- {
		loaded := page.States[i]
		g.Modules.Add(&types.ClientModule{
			Kind:    types.ModuleReferenced,
			ID:      "state/" + loaded.Key() + ".js",
			Text:    pagestate.RenderStateModule(loaded, base+helpersID, false),
			Exports: []string{"default"},
		})
	}

	hydrateModule, ok := r.site.Modules.Get(site.HydrateImport)
	if !ok {
		return "", errors.NewModuleError(errors.ErrCodeUnknownModule, "hydrate module is not registered")
	}
	hydrateText := hydrateModule.Text
	if debug {
		hydrateText = g.RewriteImports(hydrateModule).Text
	}
	hydrateText = modules.RemoveSourceMapURLs(hydrateText)
	for _, id := range hydrateModule.Imports {
		g.AddModule(id)
	}

	routeURL := g.URL(routeModule.ID)
	entryURL := g.URL(entry.ID)

	var sb strings.Builder
	sb.WriteString("import pageState from " + strconv.Quote(base+pageStateID) + "\n")
	sb.WriteString(hydrateText + "\n\n")
	sb.WriteString("Promise.all([\n")
	sb.WriteString("  import(" + strconv.Quote(routeURL) + "),\n")
	sb.WriteString("  import(" + strconv.Quote(entryURL) + ")\n")
	sb.WriteString("]).then(([routeModule]) =>\n")
	sb.WriteString("  hydrate(pageState, routeModule, " + strconv.Quote(routeURL) + ")\n")
	sb.WriteString(")")
	return sb.String(), nil
}

func (r *Renderer) postProcessors(debug bool, debugBase string) []html.Processor {
	processors := append([]html.Processor(nil), r.processors...)
	switch {
	case debug:
		processors = append(processors, html.DebugBase(r.site.Base(), debugBase))
	case r.site.Config.Build.Minify:
		processors = append(processors, html.Minify())
	}
	return processors
}

// localImports returns the module ids a generated module imports by
// base-prefixed URL.
func localImports(text, base string) []string {
	var ids []string
	for _, stmt := range modules.ParseImports(text) {
		if strings.HasPrefix(stmt.Source, base) {
			ids = append(ids, strings.TrimPrefix(stmt.Source, base))
		}
	}
	return ids
}
