package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/pagewright/internal/cache"
	"github.com/conneroisu/pagewright/internal/types"
)

func ids(set *types.ModuleSet) []string {
	var out []string
	for _, m := range set.All() {
		out = append(out, m.ID)
	}
	return out
}

func newTestMap() *ModuleMap {
	m := NewModuleMap()

	runtime := types.NewReferencedModule("assets/runtime.js", "export function render(){}", []string{"render"}, "assets/shared.js")
	runtime.DebugText = "export function render() {}\n"
	m.Register(runtime)

	shared := types.NewReferencedModule("assets/shared.js", "export const s=1", []string{"s"})
	shared.DebugText = "export const s = 1\n"
	m.Register(shared)

	m.Register(types.NewReferencedModule("assets/vendor.js", "export default 1", []string{"default"}))
	m.Register(types.NewReferencedModule("assets/chunk.js", "export const c=1", []string{"c"}, "assets/shared.js"))
	m.Register(types.NewInlineModule("assets/helper.js", "const helper = 1\n//# sourceMappingURL=helper.js.map"))
	m.Register(types.NewReferencedModule("assets/style.css", "/assets/style.css", nil))
	m.Register(types.NewReferencedModule("assets/route.js", "export default 1", []string{"default"},
		"assets/runtime.js", "assets/chunk.js", "assets/style.css"))
	m.Register(types.NewReferencedModule("assets/entry.js", "export default 1", []string{"default"}, "assets/runtime.js"))

	m.Alias(`import { hydrate } from "pagewright/client"`, "assets/runtime.js")
	return m
}

func TestAddModuleIdempotent(t *testing.T) {
	m := newTestMap()
	g := NewGraph(m, GraphOptions{Base: "/"})

	first := g.AddModule("assets/route.js")
	second := g.AddModule("assets/route.js")
	require.NotNil(t, first)
	assert.Same(t, first, second)

	assert.Equal(t, []string{"assets/shared.js", "assets/runtime.js", "assets/chunk.js", "assets/route.js"}, ids(g.Modules))
	assert.Equal(t, []string{"assets/style.css"}, ids(g.Assets))

	g.AddModule("assets/entry.js")
	assert.Equal(t, 5, g.Modules.Len())
	assert.Equal(t, 1, g.Assets.Len())

	assert.Nil(t, g.AddModule("assets/missing.js"))
}

func TestAddModuleDebugView(t *testing.T) {
	m := newTestMap()
	g := NewGraph(m, GraphOptions{Base: "/", DebugDir: "_debug/", Debug: true})

	runtime := g.AddModule("assets/runtime.js")
	require.NotNil(t, runtime)
	assert.Equal(t, "_debug/assets/runtime.js", runtime.ID)
	assert.Equal(t, "export function render() {}\n", runtime.Text)
	assert.Same(t, runtime, g.AddModule("assets/runtime.js"))
	assert.Equal(t, []string{"_debug/assets/shared.js", "_debug/assets/runtime.js"}, ids(g.Modules))

	original, ok := m.Get("assets/runtime.js")
	require.True(t, ok)
	assert.Equal(t, "assets/runtime.js", original.ID)
	assert.Equal(t, "export function render(){}", original.Text)

	vendor := g.AddModule("assets/vendor.js")
	assert.Equal(t, "assets/vendor.js", vendor.ID)
}

func TestAddModuleCycle(t *testing.T) {
	m := NewModuleMap()
	m.Register(types.NewReferencedModule("a.js", "a", []string{"a"}, "b.js"))
	m.Register(types.NewReferencedModule("b.js", "b", []string{"b"}, "a.js"))

	g := NewGraph(m, GraphOptions{})
	assert.NotNil(t, g.AddModule("a.js"))
	assert.Equal(t, []string{"b.js", "a.js"}, ids(g.Modules))
}

const routeSource = `import { render } from "/assets/runtime.js";
import v from "/assets/vendor.js";
import "/assets/helper.js";
import { hydrate } from "pagewright/client";
import { x } from "/unknown.js";
render(v)`

func TestRewriteImports(t *testing.T) {
	m := newTestMap()
	g := NewGraph(m, GraphOptions{Base: "/"})

	r := g.RewriteImports(types.NewReferencedModule("assets/route.js", routeSource, []string{"default"}))

	assert.Equal(t, `import { render } from "/assets/runtime.js";
import v from "/assets/vendor.js";
const helper = 1
import { hydrate } from "/assets/runtime.js";
import { x } from "/unknown.js";
render(v)`, r.Text)
	assert.Equal(t, []string{"assets/runtime.js", "assets/vendor.js"}, r.Imported)
}

func TestRewriteImportsDebugView(t *testing.T) {
	m := newTestMap()
	g := NewGraph(m, GraphOptions{Base: "/", DebugDir: "_debug/", Debug: true})

	r := g.RewriteImports(types.NewReferencedModule("assets/route.js", routeSource, []string{"default"}))

	assert.Equal(t, `import { render } from "/_debug/assets/runtime.js";
import v from "/assets/vendor.js";
const helper = 1
import { hydrate } from "/_debug/assets/runtime.js";
import { x } from "/unknown.js";
render(v)`, r.Text)
}

func TestRewriteImportsCanonicalIsNoop(t *testing.T) {
	m := newTestMap()
	g := NewGraph(m, GraphOptions{Base: "/"})

	canonical := "import { render } from \"/assets/runtime.js\";\nimport v from \"/assets/vendor.js\";\nrender(v)"
	r := g.RewriteImports(types.NewInlineModule("page.js", canonical))
	assert.Equal(t, canonical, r.Text)

	once := g.RewriteImports(types.NewInlineModule("route.js", routeSource)).Text
	twice := g.RewriteImports(types.NewInlineModule("route.js", once)).Text
	assert.Equal(t, once, twice)
}

func TestRewriteImportsNestedInline(t *testing.T) {
	m := NewModuleMap()
	m.Register(types.NewInlineModule("assets/a.js", "import \"/assets/b.js\";\nconst a = b", "assets/b.js"))
	m.Register(types.NewInlineModule("assets/b.js", "const b = 1"))

	g := NewGraph(m, GraphOptions{Base: "/"})
	r := g.RewriteImports(types.NewInlineModule("page.js", "import \"/assets/a.js\";\nuse(a)"))
	assert.Equal(t, "const b = 1\nconst a = b\nuse(a)", r.Text)
	assert.Empty(t, r.Imported)
}

func TestRewriteImportsInlineCycle(t *testing.T) {
	m := NewModuleMap()
	m.Register(types.NewInlineModule("assets/a.js", "import \"/assets/b.js\";a()", "assets/b.js"))
	m.Register(types.NewInlineModule("assets/b.js", "import \"/assets/a.js\";b()", "assets/a.js"))

	g := NewGraph(m, GraphOptions{Base: "/"})
	assert.NotPanics(t, func() {
		r := g.RewriteImports(types.NewInlineModule("page.js", "import \"/assets/a.js\";"))
		assert.Contains(t, r.Text, "a()")
		assert.Contains(t, r.Text, "b()")
	})
}

func TestRewriteImportsMemo(t *testing.T) {
	m := newTestMap()
	memo, err := cache.NewMemo[Rewrite](16)
	require.NoError(t, err)

	route := types.NewReferencedModule("assets/route.js", routeSource, []string{"default"})

	prod := NewGraph(m, GraphOptions{Base: "/", Rewrites: memo})
	first := prod.RewriteImports(route)
	assert.Equal(t, 1, memo.Len())

	again := NewGraph(m, GraphOptions{Base: "/", Rewrites: memo}).RewriteImports(route)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, memo.Len())

	debug := NewGraph(m, GraphOptions{Base: "/", DebugDir: "_debug/", Debug: true, Rewrites: memo})
	assert.NotEqual(t, first.Text, debug.RewriteImports(route).Text)
	assert.Equal(t, 2, memo.Len())
}

func TestPreloadList(t *testing.T) {
	m := newTestMap()
	entry, ok := m.Get("assets/entry.js")
	require.True(t, ok)

	prod := NewGraph(m, GraphOptions{Base: "/"})
	route := prod.AddModule("assets/route.js")
	assert.Equal(t, []string{
		"assets/route.js",
		"assets/entry.js",
		"assets/runtime.js",
		"assets/chunk.js",
		"assets/style.css",
		"assets/shared.js",
	}, prod.PreloadList(route, entry))

	debug := NewGraph(m, GraphOptions{Base: "/", DebugDir: "_debug/", Debug: true})
	route = debug.AddModule("assets/route.js")
	assert.Equal(t, []string{
		"assets/route.js",
		"assets/entry.js",
		"_debug/assets/runtime.js",
		"assets/chunk.js",
		"assets/style.css",
		"_debug/assets/shared.js",
	}, debug.PreloadList(route, entry))
}
