package pagestate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/conneroisu/pagewright/internal/types"
)

// Page is the client-visible part of a rendered page.
type Page struct {
	// Path is the page path, e.g. "/posts/1"
	Path        string
	ClientProps map[string]any
	Head        types.HeadMetadata
	// Included lists every state module loaded for the page, inlined or not
	Included []*Loaded
}

// Options configures RenderPageState.
type Options struct {
	// Base is prepended to the helper ids and preload urls
	Base string
	// HelpersID is the module defining importState, preCacheState,
	// describeHead and preloadModules.
	HelpersID string
	// CacheID is the module defining setState.
	CacheID string
	// PreloadIDs are module ids loaded ahead of navigation.
	PreloadIDs []string
}

// RenderPageState renders the ES module whose default export resolves to the
// page's client props. Each step wraps or prefixes the code produced by the
// previous one, so the order is fixed.
func RenderPageState(page *Page, opts Options) string {
	var inlined []*Loaded
	pending := newOrderedSet()
	for _, loaded := range page.Included {
		if loaded.Module.Inline {
			inlined = append(inlined, loaded)
		} else {
			pending.add(loaded.Key())
		}
	}

	// 1. Serialize client props, aliasing nested state imports.
	var nestedKeys []string
	aliases := map[string]string{}
	code := DataToESM(page.ClientProps, func(_ string, value any) (string, bool) {
		key, ok := importKey(value)
		if !ok {
			return "", false
		}
		alias, seen := aliases[key]
		if !seen {
			nestedKeys = append(nestedKeys, key)
			alias = "s" + strconv.Itoa(len(nestedKeys))
			aliases[key] = alias
			pending.remove(key)
		}
		return alias, true
	})

	imports := newImportSet()
	var helpers []string

	// 2. Wrap in a promise.
	if len(nestedKeys) > 0 {
		helpers = append(helpers, "importState")
		idents := make([]string, len(nestedKeys))
		for i := range nestedKeys {
			idents[i] = "s" + strconv.Itoa(i+1)
		}
		code = fmt.Sprintf("importState(%s%s%s).then(([%s]) => (%s))",
			ret, quoteIndentJoin(nestedKeys), ret,
			strings.Join(idents, ","+space), code)
	} else {
		code = "Promise.resolve(" + code + ")"
	}
	code = "export default " + code

	// 3. Inlined state modules register themselves before the export.
	if len(inlined) > 0 {
		rendered := make([]string, len(inlined))
		for i, loaded := range inlined {
			rendered[i] = RenderStateModule(loaded, "", true)
		}
		imports.add(opts.Base+opts.CacheID, "setState")
		code = strings.Join(rendered, "\n") + "\n" + code
	}

	// 4. State referenced only by key is fetched before resolving.
	if keys := pending.values(); len(keys) > 0 {
		helpers = append(helpers, "preCacheState")
		code = fmt.Sprintf("await preCacheState(%s%s%s)\n", ret, quoteIndentJoin(keys), ret) + code
	}

	// 5. Head metadata, with empty values pruned.
	if desc := headDescription(page.Head); len(desc) > 0 {
		helpers = append(helpers, "describeHead")
		code = fmt.Sprintf("describeHead(%s,%s%s)\n", quote(page.Path), space, DataToESM(desc, nil)) + code
	}

	// 6. Module preloading.
	if len(opts.PreloadIDs) > 0 {
		urls := make([]string, len(opts.PreloadIDs))
		for i, id := range opts.PreloadIDs {
			urls[i] = opts.Base + id
		}
		helpers = append(helpers, "preloadModules")
		code = "preloadModules(" + DataToESM(urls, nil) + ")\n" + code
	}

	// 7. One import statement per helper source.
	if len(helpers) > 0 {
		imports.add(opts.Base+opts.HelpersID, helpers...)
	}
	if stmts := imports.render(); stmts != "" {
		code = stmts + "\n" + code
	}

	return code
}

func headDescription(head types.HeadMetadata) map[string]any {
	desc := map[string]any{}
	if head.Title != "" {
		desc["title"] = head.Title
	}
	if len(head.Stylesheet) > 0 {
		desc["stylesheet"] = head.Stylesheet
	}
	if len(head.Prefetch) > 0 {
		desc["prefetch"] = head.Prefetch
	}
	preload := map[string][]string{}
	for kind, urls := range head.Preload {
		if len(urls) > 0 {
			preload[kind] = urls
		}
	}
	if len(preload) > 0 {
		desc["preload"] = preload
	}
	return desc
}

func quoteIndentJoin(keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = indent + quote(k)
	}
	return strings.Join(quoted, ","+ret)
}

type orderedSet struct {
	order []string
	index map[string]bool
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: map[string]bool{}}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.index[v]; ok {
		return
	}
	s.index[v] = true
	s.order = append(s.order, v)
}

func (s *orderedSet) remove(v string) {
	if _, ok := s.index[v]; ok {
		s.index[v] = false
	}
}

func (s *orderedSet) values() []string {
	out := make([]string, 0, len(s.order))
	for _, v := range s.order {
		if s.index[v] {
			out = append(out, v)
		}
	}
	return out
}

// importSet groups named imports by source in insertion order.
type importSet struct {
	sources []string
	names   map[string][]string
}

func newImportSet() *importSet {
	return &importSet{names: map[string][]string{}}
}

func (s *importSet) add(source string, names ...string) {
	if _, ok := s.names[source]; !ok {
		s.sources = append(s.sources, source)
	}
	s.names[source] = append(s.names[source], names...)
}

func (s *importSet) render() string {
	stmts := make([]string, len(s.sources))
	for i, source := range s.sources {
		stmts[i] = fmt.Sprintf("import {%s%s%s} from %s",
			space, strings.Join(s.names[source], ","+space), space, quote(source))
	}
	return strings.Join(stmts, "\n")
}
