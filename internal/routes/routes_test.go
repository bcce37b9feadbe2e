package routes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/pagewright/internal/cache"
	"github.com/conneroisu/pagewright/internal/types"
)

func TestParseAndMatch(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		match   bool
		params  Params
	}{
		{"/", "/", true, Params{}},
		{"/", "/about", false, nil},
		{"/about", "/about", true, Params{}},
		{"/about", "/about/", true, Params{}},
		{"/posts/:id", "/posts/1", true, Params{"id": "1"}},
		{"/posts/:id", "/posts", false, nil},
		{"/posts/:id", "/posts/1/edit", false, nil},
		{"/posts/:id", "/posts/caf%C3%A9", true, Params{"id": "caf\u00e9"}},
		{"/blog/:year/:slug?", "/blog/2024", true, Params{"year": "2024"}},
		{"/blog/:year/:slug?", "/blog/2024/hello", true, Params{"year": "2024", "slug": "hello"}},
		{"/docs/*", "/docs/a/b/c", true, Params{"wild": "a/b/c"}},
		{"/a.b", "/aXb", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			r, err := Parse(tt.pattern)
			require.NoError(t, err)

			params, ok := r.Match(tt.path)
			assert.Equal(t, tt.match, ok)
			if tt.match {
				assert.Equal(t, tt.params, params)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, pattern := range []string{"about", "/:", "/*/x", "/:id/:id"} {
		t.Run(pattern, func(t *testing.T) {
			_, err := Parse(pattern)
			assert.Error(t, err)
		})
	}
}

func TestParseKeys(t *testing.T) {
	r := MustParse("/blog/:year/:slug?/*")
	assert.Equal(t, []string{"year", "slug", "wild"}, r.Keys)
	assert.True(t, r.IsDynamic())
	assert.False(t, MustParse("/").IsDynamic())
}

func TestPagePath(t *testing.T) {
	tests := []struct {
		route  string
		params Params
		want   string
	}{
		{"/about", nil, "/about"},
		{"/posts/:id", Params{"id": "1"}, "/posts/1"},
		{"/blog/:year/:slug?", Params{"year": "2024"}, "/blog/2024"},
		{"/blog/:year/:slug?/", Params{"year": "2024", "slug": "x"}, "/blog/2024/x/"},
		{"/docs/*", Params{"wild": "a/b"}, "/docs/a/b"},
		// decomposed e + combining acute becomes the composed form
		{"/tags/:tag", Params{"tag": "cafe\u0301"}, "/tags/caf\u00e9"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, PagePath(tt.route, tt.params))
		})
	}
}

func TestPageFilename(t *testing.T) {
	tests := map[string]string{
		"/":             "index.html",
		"/about":        "about.html",
		"/blog/":        "blog/index.html",
		"/posts/1":      "posts/1.html",
		"/_debug/about": "_debug/about.html",
		"/feed.html":    "feed.html",
		"/search?q=a":   "search.html",
		"/_debug/":      "_debug/index.html",
	}
	for in, want := range tests {
		assert.Equal(t, want, PageFilename(in), in)
	}
}

func TestPrependBase(t *testing.T) {
	assert.Equal(t, "/about", PrependBase("/about", "/"))
	assert.Equal(t, "/_debug/about", PrependBase("/about", "/_debug/"))
	assert.Equal(t, "/site/posts/:id", PrependBase("/posts/:id", "/site"))
}

type collected struct {
	paths  []string
	errors []types.FailedPage
}

func collect(t *testing.T, set *Set) *collected {
	t.Helper()
	c := &collected{}
	err := GenerateRoutePaths(context.Background(), set, Handlers{
		Path: func(routePath string, params Params) {
			c.paths = append(c.paths, PagePath(routePath, params))
		},
		Error: func(f types.FailedPage) {
			c.errors = append(c.errors, f)
		},
	})
	require.NoError(t, err)
	return c
}

func staticPaths(values ...any) PathsFunc {
	return func(ctx context.Context) ([]any, error) { return values, nil }
}

func TestGenerateRoutePaths(t *testing.T) {
	posts := MustParse("/posts/:id")
	posts.Paths = staticPaths(map[string]any{"id": 1}, []any{2}, "three")

	archive := MustParse("/archive/:year/:month")
	archive.Paths = staticPaths([]string{"2024", "01"}, map[string]string{"year": "2023", "month": "12"})

	broken := MustParse("/broken")
	broken.Paths = staticPaths("x")

	unlisted := MustParse("/users/:id")

	set := &Set{
		Routes:  []*Route{MustParse("/"), posts, broken, unlisted, archive, MustParse("/about")},
		Default: MustParse("/404"),
	}

	c := collect(t, set)
	assert.Equal(t, []string{
		"/",
		"/posts/1", "/posts/2", "/posts/three",
		"/archive/2024/01", "/archive/2023/12",
		"/about",
		"/404",
	}, c.paths)
	require.Len(t, c.errors, 1)
	assert.Equal(t, "/broken", c.errors[0].Path)
	assert.Contains(t, c.errors[0].Reason, "needs a route parameter")
}

func TestGenerateRoutePathsGeneratorErrors(t *testing.T) {
	failing := MustParse("/fail/:id")
	failing.Paths = func(ctx context.Context) ([]any, error) { return nil, errors.New("db down") }

	short := MustParse("/pair/:a/:b")
	short.Paths = staticPaths([]any{"only"}, []any{"x", "y"})

	c := collect(t, &Set{Routes: []*Route{failing, short, MustParse("/ok")}})
	assert.Equal(t, []string{"/pair/x/y", "/ok"}, c.paths)
	require.Len(t, c.errors, 2)
	assert.Equal(t, types.FailedPage{Path: "/fail/:id", Reason: "db down"}, c.errors[0])
	assert.Equal(t, "/pair/:a/:b", c.errors[1].Path)
}

func TestGenerateRoutePathsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := GenerateRoutePaths(ctx, &Set{Routes: []*Route{MustParse("/")}}, Handlers{
		Path:  func(string, Params) { t.Fatal("no paths after cancel") },
		Error: func(types.FailedPage) {},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSetMatch(t *testing.T) {
	set := &Set{
		Routes:  []*Route{MustParse("/posts/new"), MustParse("/posts/:id")},
		Default: MustParse("/404"),
	}

	r, params, ok := set.Match("/posts/new")
	require.True(t, ok)
	assert.Equal(t, "/posts/new", r.Path)
	assert.Empty(t, params)

	r, params, ok = set.Match("/posts/9")
	require.True(t, ok)
	assert.Equal(t, "/posts/:id", r.Path)
	assert.Equal(t, "9", params["id"])

	r, _, ok = set.Match("/nowhere")
	require.True(t, ok)
	assert.Equal(t, "/404", r.Path)

	_, _, ok = (&Set{}).Match("/nowhere")
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data", "users"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "site.json"), []byte(`{"name":"demo"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "users", "7.yml"), []byte("name: bob\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "about.html"), []byte("<p>about</p>"), 0o644))

	routesYAML := `
default_path: /not-found
default:
  title: Missing
  content: "<h1>404</h1>"
state:
  - name: site
    file: data/site.json
    max_age: 60
    inline: true
  - name: user
    file: data/users/{0}.yml
routes:
  - path: /
    title: Home
    module: assets/home.js
    props:
      greeting: hi
    include:
      - site
  - path: /about
    content_file: about.html
  - path: /users/:id
    paths: [7, [8]]
    include:
      - name: user
        args: [7]
`
	path := filepath.Join(dir, "routes.yml")
	require.NoError(t, os.WriteFile(path, []byte(routesYAML), 0o644))

	set, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, set.Routes, 3)
	require.NotNil(t, set.Default)
	assert.Equal(t, "/not-found", set.Default.Path)
	assert.Equal(t, "Missing", set.Default.Meta["title"])

	home := set.Routes[0]
	assert.Equal(t, "assets/home.js", home.ModuleID)
	props, err := home.State(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"greeting": "hi"}, props)

	require.Len(t, home.Include, 1)
	site := home.Include[0]
	assert.True(t, site.Module.Inline)
	ctl := &cache.Control{MaxAge: -1}
	state, err := site.Module.Load(context.Background(), ctl, site.Args...)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "demo"}, state)
	assert.Equal(t, 60, ctl.MaxAge)

	assert.Equal(t, "<p>about</p>", set.Routes[1].Meta["content"])

	users := set.Routes[2]
	user := users.Include[0]
	state, err = user.Module.Load(context.Background(), &cache.Control{MaxAge: -1}, user.Args...)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "bob"}, state)

	props, err = users.State(context.Background(), Params{"id": "7"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"params": map[string]any{"id": "7"}}, props)

	c := collect(t, set)
	assert.Equal(t, []string{"/", "/about", "/users/7", "/users/8", "/not-found"}, c.paths)
}

func TestLoadFileErrors(t *testing.T) {
	tests := map[string]string{
		"bad yaml":      "routes: [",
		"bad pattern":   "routes:\n  - path: about\n",
		"unknown state": "routes:\n  - path: /\n    include: [nope]\n",
		"dup state":     "state:\n  - {name: a, file: a.json}\n  - {name: a, file: b.json}\n",
		"missing file":  "routes:\n  - path: /\n    content_file: missing.html\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(content), t.TempDir())
			assert.Error(t, err)
		})
	}
}
