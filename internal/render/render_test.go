package render

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/pagewright/internal/cache"
	"github.com/conneroisu/pagewright/internal/config"
	"github.com/conneroisu/pagewright/internal/errors"
	"github.com/conneroisu/pagewright/internal/events"
	"github.com/conneroisu/pagewright/internal/pagestate"
	"github.com/conneroisu/pagewright/internal/routes"
	"github.com/conneroisu/pagewright/internal/site"
	"github.com/conneroisu/pagewright/internal/types"
)

const testDoc = `<!DOCTYPE html><html><head><title>%s</title></head><body><a href="/about">About</a></body></html>`

// testLayout renders a fixed document and hydrates with an entry that
// imports the route module.
type testLayout struct {
	calls atomic.Int32
	err   error
	empty bool
	panic bool
}

func (l *testLayout) Render(ctx context.Context, req *Request) (string, error) {
	l.calls.Add(1)
	switch {
	case l.panic:
		panic("layout exploded")
	case l.err != nil:
		return "", l.err
	case l.empty:
		return "", nil
	}
	title, _ := req.Props["title"].(string)
	return fmt.Sprintf(testDoc, title), nil
}

func (l *testLayout) ClientEntry(req *Request) *ClientEntry {
	if req.Route.ModuleID == "" {
		return nil
	}
	code := `import route from "` + req.Base + req.Route.ModuleID + `"` + "\nexport default route\n"
	return &ClientEntry{ID: "entry.js", Code: code}
}

func testRoute(path string) *routes.Route {
	r := routes.MustParse(path)
	r.ModuleID = "assets/home.js"
	r.State = func(ctx context.Context, params routes.Params, query url.Values) (map[string]any, error) {
		return map[string]any{"title": "Home"}, nil
	}
	return r
}

type siteOptions struct {
	debug  bool
	minify bool
	build  func(*config.BuildConfig)
	clock  func() time.Time
}

func newTestSite(t *testing.T, set *routes.Set, opts siteOptions) *site.Context {
	t.Helper()
	cfg := &config.Config{
		Root:       t.TempDir(),
		Base:       "/",
		RoutesFile: "routes.yml",
		Build: config.BuildConfig{
			AssetsDir:   "assets",
			HelpersID:   "pagewright/client.js",
			PageMaxAge:  -1,
			PropsMaxAge: -1,
			Minify:      opts.minify,
		},
	}
	if opts.debug {
		cfg.DebugBase = "/_debug/"
	}
	if opts.build != nil {
		opts.build(&cfg.Build)
	}

	siteOpts := []site.Option{site.WithRoutes(set)}
	if opts.clock != nil {
		siteOpts = append(siteOpts, site.WithClock(opts.clock))
	}
	sc, err := site.New(cfg, siteOpts...)
	require.NoError(t, err)

	shared := types.NewReferencedModule("assets/shared.js", "export const s=1", []string{"s"})
	shared.DebugText = "export const s = 1\n"
	sc.Modules.Register(shared)
	sc.Modules.Register(types.NewReferencedModule("assets/site.css", "body{}", nil))
	sc.Modules.Register(types.NewReferencedModule("assets/home.js", "export default 1", []string{"default"},
		"assets/shared.js", "assets/site.css"))
	return sc
}

func moduleIDs(set *types.ModuleSet) []string {
	var out []string
	for _, m := range set.All() {
		out = append(out, m.ID)
	}
	return out
}

func TestRenderPageProduction(t *testing.T) {
	set := &routes.Set{Routes: []*routes.Route{testRoute("/")}}
	sc := newTestSite(t, set, siteOptions{})
	r := NewRenderer(sc, NewLayouts(&testLayout{}))

	page, err := r.RenderPage(context.Background(), "/")
	require.NoError(t, err)
	require.NotNil(t, page)

	assert.Equal(t, "index.html", page.ID)
	assert.Equal(t, "/", page.Route)
	assert.Equal(t, "Home", page.Head.Title)
	assert.Equal(t, map[string]any{"title": "Home"}, page.Props)

	assert.Equal(t, []string{
		"assets/shared.js",
		"assets/home.js",
		"assets/entry.js",
		"pagewright/client.js",
		"index.html.js",
	}, moduleIDs(page.Modules))
	assert.Equal(t, []string{"assets/site.css"}, moduleIDs(page.Assets))

	assert.Contains(t, page.HTML, `<link rel="modulepreload" href="/assets/shared.js"/>`)
	assert.Contains(t, page.HTML, `<link rel="modulepreload" href="/index.html.js"/>`)
	assert.Contains(t, page.HTML, `<link rel="stylesheet" href="/assets/site.css"/>`)
	assert.Contains(t, page.HTML, `import pageState from "/index.html.js"`)
	assert.Contains(t, page.HTML, `import { hydrate } from "/pagewright/client.js"`)
	assert.Contains(t, page.HTML, `import("/assets/entry.js")`)
	assert.Contains(t, page.HTML, `hydrate(pageState, routeModule, "/assets/home.js")`)
	assert.Contains(t, page.HTML, `<a href="/about">About</a>`)

	state, ok := page.Modules.Get("index.html.js")
	require.True(t, ok)
	assert.Contains(t, state.Text, `import { describeHead, preloadModules } from "/pagewright/client.js"`)
	assert.Contains(t, state.Text, `"/assets/home.js"`)
	assert.Contains(t, state.Text, `"/assets/entry.js"`)
	assert.Contains(t, state.Text, "export default Promise.resolve(")
	assert.Equal(t, []string{"pagewright/client.js"}, state.Imports)
}

func TestRenderPageDebugView(t *testing.T) {
	set := &routes.Set{Routes: []*routes.Route{testRoute("/about")}}
	sc := newTestSite(t, set, siteOptions{debug: true, minify: true})
	r := NewRenderer(sc, NewLayouts(&testLayout{}))

	page, err := r.RenderPage(context.Background(), "/_debug/about")
	require.NoError(t, err)
	require.NotNil(t, page)

	assert.Equal(t, "_debug/about.html", page.ID)
	assert.Contains(t, moduleIDs(page.Modules), "_debug/assets/shared.js")
	assert.Contains(t, moduleIDs(page.Modules), "_debug/assets/entry.js")
	assert.Contains(t, moduleIDs(page.Modules), "_debug/pagewright/client.js")
	// Assets and modules without a debug variant keep their id.
	assert.Contains(t, moduleIDs(page.Modules), "assets/home.js")
	assert.Equal(t, []string{"assets/site.css"}, moduleIDs(page.Assets))

	assert.Contains(t, page.HTML, `<a href="/_debug/about">About</a>`)
	assert.Contains(t, page.HTML, `import pageState from "/_debug/about.html.js"`)
	assert.Contains(t, page.HTML, `import { hydrate } from "/_debug/pagewright/client.js"`)
	assert.Contains(t, page.HTML, `<link rel="modulepreload" href="/_debug/assets/shared.js"/>`)

	prod, err := r.RenderPage(context.Background(), "/about")
	require.NoError(t, err)
	assert.Equal(t, "about.html", prod.ID)
	assert.Contains(t, moduleIDs(prod.Modules), "assets/shared.js")
	assert.NotContains(t, prod.HTML, "/_debug/")
}

func TestRenderPageSkipped(t *testing.T) {
	set := &routes.Set{Routes: []*routes.Route{testRoute("/")}}

	t.Run("outside base", func(t *testing.T) {
		sc := newTestSite(t, set, siteOptions{})
		sc.Config.Base = "/docs/"
		page, err := NewRenderer(sc, NewLayouts(&testLayout{})).RenderPage(context.Background(), "/other")
		require.NoError(t, err)
		assert.Nil(t, page)
	})

	t.Run("no route", func(t *testing.T) {
		sc := newTestSite(t, set, siteOptions{})
		page, err := NewRenderer(sc, NewLayouts(&testLayout{})).RenderPage(context.Background(), "/missing")
		require.NoError(t, err)
		assert.Nil(t, page)
	})
}

func TestRenderPageEmptyHTML(t *testing.T) {
	set := &routes.Set{Routes: []*routes.Route{testRoute("/feed")}}
	sc := newTestSite(t, set, siteOptions{})
	r := NewRenderer(sc, NewLayouts(&testLayout{empty: true}))

	page, err := r.RenderPage(context.Background(), "/feed")
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, "feed.html", page.ID)
	assert.Empty(t, page.HTML)
	assert.Equal(t, 0, page.Modules.Len())
	assert.Equal(t, 0, page.Assets.Len())
}

func TestRenderPageWithoutRouteModule(t *testing.T) {
	route := testRoute("/")
	route.ModuleID = ""
	sc := newTestSite(t, &routes.Set{Routes: []*routes.Route{route}}, siteOptions{})

	page, err := NewRenderer(sc, NewLayouts(&testLayout{})).RenderPage(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, 0, page.Modules.Len())
	assert.NotContains(t, page.HTML, "<script")
}

func TestRenderPageStateModules(t *testing.T) {
	nav := &pagestate.Module{
		Name: "nav",
		Load: func(ctx context.Context, ctl *cache.Control, args ...any) (any, error) {
			return map[string]any{"links": []any{"/", "/about"}}, nil
		},
	}
	theme := &pagestate.Module{
		Name:   "theme",
		Inline: true,
		Load: func(ctx context.Context, ctl *cache.Control, args ...any) (any, error) {
			return "dark", nil
		},
	}
	route := testRoute("/")
	route.Include = []pagestate.Bound{nav.Bind(), theme.Bind()}
	sc := newTestSite(t, &routes.Set{Routes: []*routes.Route{route}}, siteOptions{})

	page, err := NewRenderer(sc, NewLayouts(&testLayout{})).RenderPage(context.Background(), "/")
	require.NoError(t, err)

	ids := moduleIDs(page.Modules)
	assert.Equal(t, []string{"state/theme.js", "state/nav.js"}, ids[len(ids)-2:])

	navModule, ok := page.Modules.Get("state/nav.js")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(navModule.Text, `import { setState } from "/pagewright/client.js"`))
	assert.Contains(t, navModule.Text, `setState("nav", [],`)

	state, ok := page.Modules.Get("index.html.js")
	require.True(t, ok)
	assert.Contains(t, state.Text, `setState("theme", [], "dark",`)
	assert.Contains(t, state.Text, "await preCacheState(\n  \"nav\"\n)")

	assert.True(t, sc.States.Has("nav"))
}

func TestRenderPageUnknownLayout(t *testing.T) {
	route := testRoute("/")
	route.Layout = "missing"
	sc := newTestSite(t, &routes.Set{Routes: []*routes.Route{route}}, siteOptions{})

	_, err := NewRenderer(sc, NewLayouts(&testLayout{})).RenderPage(context.Background(), "/")
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.Error{Type: errors.ErrorTypeRender, Code: errors.ErrCodeRenderFailed})
}

func TestRenderPageMinified(t *testing.T) {
	set := &routes.Set{Routes: []*routes.Route{testRoute("/")}}
	sc := newTestSite(t, set, siteOptions{minify: true})

	page, err := NewRenderer(sc, NewLayouts(&testLayout{})).RenderPage(context.Background(), "/")
	require.NoError(t, err)
	assert.Contains(t, page.HTML, "<title>Home</title>")

	r := NewRenderer(sc, NewLayouts(&testLayout{}), WithProcessors(func(ctx context.Context, doc string) (string, error) {
		return doc, nil
	}))
	assert.Len(t, r.postProcessors(false, "/"), 2)
	assert.Len(t, r.postProcessors(true, "/_debug/"), 2)

	sc.Config.Build.Minify = false
	assert.Len(t, r.postProcessors(false, "/"), 1)
}

func TestPageCache(t *testing.T) {
	layout := &testLayout{}
	set := &routes.Set{Routes: []*routes.Route{testRoute("/")}}
	sc := newTestSite(t, set, siteOptions{build: func(b *config.BuildConfig) { b.PageMaxAge = 60 }})
	r := NewRenderer(sc, NewLayouts(layout))

	for i := 0; i < 3; i++ {
		_, err := r.RenderPage(context.Background(), "/")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), layout.calls.Load())
	assert.True(t, r.Factory().Cached("/"))

	require.NoError(t, sc.Reload(context.Background()))
	assert.False(t, r.Factory().Cached("/"))

	_, err := r.RenderPage(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, int32(2), layout.calls.Load())
}

func TestPageCacheExpires(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	layout := &testLayout{}
	set := &routes.Set{Routes: []*routes.Route{testRoute("/")}}
	sc := newTestSite(t, set, siteOptions{
		build: func(b *config.BuildConfig) { b.PageMaxAge = 60 },
		clock: clock,
	})
	r := NewRenderer(sc, NewLayouts(layout))

	_, err := r.RenderPage(context.Background(), "/")
	require.NoError(t, err)

	advance(59 * time.Second)
	assert.True(t, r.Factory().Cached("/"))
	_, err = r.RenderPage(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, int32(1), layout.calls.Load())

	advance(2 * time.Second)
	assert.False(t, r.Factory().Cached("/"))
	_, err = r.RenderPage(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, int32(2), layout.calls.Load())
}

func TestPropsCache(t *testing.T) {
	var loads atomic.Int32
	route := testRoute("/")
	route.State = func(ctx context.Context, params routes.Params, query url.Values) (map[string]any, error) {
		loads.Add(1)
		return map[string]any{"title": "Cached"}, nil
	}
	sc := newTestSite(t, &routes.Set{Routes: []*routes.Route{route}},
		siteOptions{build: func(b *config.BuildConfig) { b.PropsMaxAge = 30 }})
	r := NewRenderer(sc, NewLayouts(&testLayout{}))

	for i := 0; i < 2; i++ {
		page, err := r.RenderPage(context.Background(), "/")
		require.NoError(t, err)
		assert.Equal(t, "Cached", page.Head.Title)
	}
	assert.Equal(t, int32(1), loads.Load())

	entry, ok := sc.Props.Access("props:/")
	require.True(t, ok)
	assert.False(t, entry.ExpiresAt.IsZero())
}

func TestDocumentLayout(t *testing.T) {
	route := routes.MustParse("/")
	route.Meta = map[string]string{"title": "A & B", "content": "<p>hello</p>"}
	req := &Request{Path: "/", Route: route, Base: "/"}

	doc, err := Document().Render(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, doc, "<title>A &amp; B</title>")
	assert.Contains(t, doc, "<body><p>hello</p></body>")

	assert.Nil(t, Document().ClientEntry(req))

	route.ModuleID = "assets/home.js"
	entry := Document().ClientEntry(req)
	require.NotNil(t, entry)
	assert.Regexp(t, `^entry\.[0-9a-f]{8}\.js$`, entry.ID)
	assert.Contains(t, entry.Code, `import * as route from "/assets/home.js"`)
	assert.Equal(t, entry.ID, EntryID(entry.Code))
}

type recorder struct {
	mutex  sync.Mutex
	events []events.Event
}

func (r *recorder) record(ev events.Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []events.Kind {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var out []events.Kind
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func runWorker(t *testing.T, layout *testLayout, jobs ...Job) *recorder {
	t.Helper()
	set := &routes.Set{Routes: []*routes.Route{testRoute("/")}}
	sc := newTestSite(t, set, siteOptions{})

	rec := &recorder{}
	hub := events.NewHub()
	hub.On(events.KindPage, rec.record).
		On(events.KindError, rec.record).
		On(events.KindProfile, rec.record)

	ch, err := hub.NewChannel()
	require.NoError(t, err)
	w := NewWorker(NewRenderer(sc, NewLayouts(layout)), ch)
	for _, job := range jobs {
		require.NoError(t, w.RenderPage(context.Background(), job))
	}
	w.Close()
	hub.Close()
	return rec
}

func TestWorkerEmitsPage(t *testing.T) {
	rec := runWorker(t, &testLayout{}, Job{PagePath: "/", URL: "/"})

	assert.Equal(t, []events.Kind{events.KindProfile, events.KindPage}, rec.kinds())
	assert.Equal(t, ProfileRender, rec.events[0].Profile.Type)
	assert.Equal(t, "/", rec.events[1].PagePath)
	require.NotNil(t, rec.events[1].Page)
	assert.Equal(t, "index.html", rec.events[1].Page.ID)
}

func TestWorkerEmitsSkippedPage(t *testing.T) {
	rec := runWorker(t, &testLayout{}, Job{PagePath: "/missing", URL: "/missing"})

	assert.Equal(t, []events.Kind{events.KindPage}, rec.kinds())
	assert.Nil(t, rec.events[0].Page)
}

func TestWorkerEmitsError(t *testing.T) {
	rec := runWorker(t, &testLayout{err: fmt.Errorf("template broke")}, Job{PagePath: "/", URL: "/"})

	assert.Equal(t, []events.Kind{events.KindProfile, events.KindError}, rec.kinds())
	assert.Equal(t, ProfileError, rec.events[0].Profile.Type)
	assert.Contains(t, rec.events[1].Reason, "template broke")
}

func TestWorkerRecoversPanic(t *testing.T) {
	rec := runWorker(t, &testLayout{panic: true}, Job{PagePath: "/", URL: "/"})

	assert.Equal(t, []events.Kind{events.KindProfile, events.KindError}, rec.kinds())
	assert.Contains(t, rec.events[1].Reason, "layout exploded")
}
