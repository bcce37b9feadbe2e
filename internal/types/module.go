package types

import "strings"

// ModuleKind tags how a client module reaches the browser.
type ModuleKind uint8

const (
	// ModuleInline modules export nothing; their code is spliced into
	// whichever module imports them.
	ModuleInline ModuleKind = iota
	// ModuleReferenced modules are fetched by URL and registered at most
	// once in the module map.
	ModuleReferenced
)

// String returns the string representation of the kind
func (k ModuleKind) String() string {
	switch k {
	case ModuleInline:
		return "inline"
	case ModuleReferenced:
		return "referenced"
	default:
		return "unknown"
	}
}

// ClientModule is one client-facing file. Two modules are the same iff
// their IDs match.
type ClientModule struct {
	Kind ModuleKind `json:"kind"`
	// ID is relative to the site base, e.g. "assets/index.3f2a.js"
	ID string `json:"id"`
	// Text is the production source (or a resolved URL for external assets)
	Text string `json:"text"`
	// DebugText is the unminified variant used only by the debug view
	DebugText string   `json:"debugText,omitempty"`
	Imports   []string `json:"imports,omitempty"`
	Exports   []string `json:"exports,omitempty"`
}

// NewInlineModule creates a module whose text is spliced into importers.
func NewInlineModule(id, text string, imports ...string) *ClientModule {
	return &ClientModule{
		Kind:    ModuleInline,
		ID:      id,
		Text:    text,
		Imports: imports,
	}
}

// NewReferencedModule creates a module that is always referenced by URL.
func NewReferencedModule(id, text string, exports []string, imports ...string) *ClientModule {
	return &ClientModule{
		Kind:    ModuleReferenced,
		ID:      id,
		Text:    text,
		Exports: exports,
		Imports: imports,
	}
}

// HasDebugVariant reports whether the debug view uses different text.
func (m *ClientModule) HasDebugVariant() bool {
	return m.DebugText != ""
}

// IsScript reports whether the module is executable JavaScript.
func (m *ClientModule) IsScript() bool {
	return strings.HasSuffix(m.ID, ".js")
}

// Clone returns a shallow copy with its own import/export slices.
func (m *ClientModule) Clone() *ClientModule {
	c := *m
	c.Imports = append([]string(nil), m.Imports...)
	c.Exports = append([]string(nil), m.Exports...)
	return &c
}

// DebugVariant returns a copy re-identified under debugDir that carries the
// debug text as its text. The receiver is never mutated.
func (m *ClientModule) DebugVariant(debugDir string) *ClientModule {
	c := m.Clone()
	c.ID = debugDir + m.ID
	c.Text = m.DebugText
	c.DebugText = ""
	return c
}

// ModuleSet is an insertion-ordered set of modules keyed by ID.
type ModuleSet struct {
	order []*ClientModule
	index map[string]int
}

// NewModuleSet creates an empty set.
func NewModuleSet() *ModuleSet {
	return &ModuleSet{index: make(map[string]int)}
}

// Add inserts m unless a module with the same ID exists. It reports
// whether the set changed.
func (s *ModuleSet) Add(m *ClientModule) bool {
	if _, ok := s.index[m.ID]; ok {
		return false
	}
	s.index[m.ID] = len(s.order)
	s.order = append(s.order, m)
	return true
}

// Has reports whether a module with the given ID is present.
func (s *ModuleSet) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Get returns the module with the given ID.
func (s *ModuleSet) Get(id string) (*ClientModule, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.order[i], true
}

// Len returns the number of modules.
func (s *ModuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// All returns the modules in insertion order.
func (s *ModuleSet) All() []*ClientModule {
	if s == nil {
		return nil
	}
	out := make([]*ClientModule, len(s.order))
	copy(out, s.order)
	return out
}
