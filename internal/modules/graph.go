package modules

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/conneroisu/pagewright/internal/cache"
	"github.com/conneroisu/pagewright/internal/logging"
	"github.com/conneroisu/pagewright/internal/types"
)

// Rewrite is a memoized import rewrite of one module text.
type Rewrite struct {
	Text string
	// Imported lists the ids of referenced modules the text imports.
	Imported []string
}

// GraphOptions configures the graph of one page render.
type GraphOptions struct {
	// Base is the production base path, e.g. "/".
	Base string
	// DebugDir is the debug view subdirectory relative to Base, e.g.
	// "_debug/". Empty when no debug view is configured.
	DebugDir string
	// Debug selects the debug view.
	Debug bool
	// Rewrites memoizes RewriteImports across pages. Optional.
	Rewrites *cache.Memo[Rewrite]
	Logger   logging.Logger
}

// Graph is the module graph of a single page. It is not safe for
// concurrent use; the ModuleMap it reads from is.
type Graph struct {
	modules  *ModuleMap
	base     string
	debugDir string
	debug    bool
	rewrites *cache.Memo[Rewrite]
	logger   logging.Logger

	visited map[string]*types.ClientModule
	// Modules holds the scripts of the page, dependencies first.
	Modules *types.ModuleSet
	// Assets holds everything that is not a script.
	Assets *types.ModuleSet
}

// NewGraph creates an empty page graph over modules.
func NewGraph(modules *ModuleMap, opts GraphOptions) *Graph {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	base := opts.Base
	if base == "" {
		base = "/"
	}
	return &Graph{
		modules:  modules,
		base:     base,
		debugDir: opts.DebugDir,
		debug:    opts.Debug && opts.DebugDir != "",
		rewrites: opts.Rewrites,
		logger:   logger.WithComponent("modules"),
		visited:  make(map[string]*types.ClientModule),
		Modules:  types.NewModuleSet(),
		Assets:   types.NewModuleSet(),
	}
}

// ResolvedBase is the base path of the view being rendered.
func (g *Graph) ResolvedBase() string {
	if g.debug {
		return g.base + g.debugDir
	}
	return g.base
}

// URL returns the URL of a module id in the current view.
func (g *Graph) URL(id string) string {
	return g.base + id
}

// AddModule adds the module with the given id and everything it imports.
// Visiting the same id twice returns the same reference. In the debug
// view a script with a debug variant is replaced by that variant; assets
// keep their id. Unknown ids are logged and yield nil.
func (g *Graph) AddModule(id string) *types.ClientModule {
	if m, ok := g.visited[id]; ok {
		return m
	}
	module, ok := g.modules.Get(id)
	if !ok {
		g.logger.Warn(context.Background(), nil, "unknown client module", "id", id)
		return nil
	}
	if m, ok := g.visited[module.ID]; ok {
		return m
	}
	// Marked before recursing so import cycles terminate.
	g.visited[module.ID] = module

	for _, dep := range module.Imports {
		g.AddModule(dep)
	}

	if module.IsScript() {
		if g.debug && module.HasDebugVariant() {
			module = module.DebugVariant(g.debugDir)
		}
		g.Modules.Add(module)
	} else {
		g.Assets.Add(module)
	}
	g.visited[id] = module
	g.visited[strings.TrimPrefix(module.ID, g.debugDir)] = module
	return module
}

// RewriteImports rewrites the static imports of importer for the current
// view. Inline modules are spliced in place of their import statement,
// referenced modules get a resolved URL as specifier and are returned as
// imported ids. Imports of unknown modules are logged and left untouched.
func (g *Graph) RewriteImports(importer *types.ClientModule) Rewrite {
	key := g.rewriteKey(importer.Text)
	if g.rewrites != nil {
		if r, ok := g.rewrites.Get(key); ok {
			return r
		}
	}

	imported := newIDSet()
	text := g.rewrite(importer, imported, map[string]bool{importer.ID: true})
	r := Rewrite{Text: text, Imported: imported.ids}
	if g.rewrites != nil {
		g.rewrites.Add(key, r)
	}
	return r
}

func (g *Graph) rewriteKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:]) + "\x00" + g.ResolvedBase()
}

func (g *Graph) rewrite(importer *types.ClientModule, imported *idSet, stack map[string]bool) string {
	resolvedBase := g.ResolvedBase()
	baseReplaced := resolvedBase != g.base

	var edits []Edit
	for _, stmt := range ParseImports(importer.Text) {
		var resolvedID string
		var module *types.ClientModule
		if strings.HasPrefix(stmt.Source, g.base) {
			resolvedID = strings.TrimPrefix(stmt.Source, g.base)
			module, _ = g.modules.Get(resolvedID)
		}
		if module == nil {
			module, _ = g.modules.Get(stmt.Text)
		}
		if module == nil {
			g.logger.Warn(context.Background(), nil, "unknown client import",
				"importer", importer.ID,
				"source", stmt.Source,
			)
			continue
		}

		switch module.Kind {
		case types.ModuleReferenced:
			if resolvedID == "" || baseReplaced {
				resolvedID = module.ID
				url := g.base + module.ID
				if baseReplaced && module.HasDebugVariant() {
					url = resolvedBase + module.ID
				}
				edits = append(edits, Edit{Start: stmt.SourceStart, End: stmt.SourceEnd, Text: url})
			}
			g.modules.Alias(resolvedID, module.ID)
			imported.add(module.ID)

		case types.ModuleInline:
			if stack[module.ID] {
				g.logger.Warn(context.Background(), nil, "circular inline import",
					"importer", importer.ID,
					"module", module.ID,
				)
				continue
			}
			text := module.Text
			if len(module.Imports) > 0 {
				stack[module.ID] = true
				text = g.rewrite(module, imported, stack)
				delete(stack, module.ID)
			}
			edits = append(edits, Edit{Start: stmt.Start, End: stmt.End, Text: RemoveSourceMapURLs(text)})
		}
	}
	return ApplyEdits(importer.Text, edits)
}

// PreloadList returns the ids to preload for the given root modules,
// walking imports breadth first. Roots keep their id; transitively
// imported modules with a debug variant are prefixed with the debug
// directory in the debug view.
func (g *Graph) PreloadList(roots ...*types.ClientModule) []string {
	seen := make(map[string]bool)
	var queue []*types.ClientModule
	for _, root := range roots {
		if root != nil && !seen[root.ID] {
			seen[root.ID] = true
			queue = append(queue, root)
		}
	}
	rootCount := len(queue)

	var ids []string
	for i := 0; i < len(queue); i++ {
		module := queue[i]
		id := module.ID
		if i >= rootCount && g.debug && module.HasDebugVariant() {
			id = g.debugDir + id
		}
		ids = append(ids, id)
		for _, dep := range module.Imports {
			next, ok := g.modules.Get(dep)
			if !ok || seen[next.ID] {
				continue
			}
			seen[next.ID] = true
			queue = append(queue, next)
		}
	}
	return ids
}

// idSet is an insertion-ordered string set.
type idSet struct {
	ids  []string
	seen map[string]bool
}

func newIDSet() *idSet {
	return &idSet{seen: make(map[string]bool)}
}

func (s *idSet) add(id string) {
	if s.seen[id] {
		return
	}
	s.seen[id] = true
	s.ids = append(s.ids, id)
}
