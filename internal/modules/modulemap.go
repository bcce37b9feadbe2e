// Package modules builds the per-page client module graph.
//
// A ModuleMap holds every client module known to a build context. For each
// page, a Graph walks the route and entry modules through the map, collects
// the scripts and assets the browser must fetch, rewrites import specifiers
// for the view being rendered (production or debug) and computes the
// modulepreload list.
package modules

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/conneroisu/pagewright/internal/types"
)

// ModuleMap is the set of client modules shared by concurrent page renders.
// Modules are keyed by id. Aliases let a module also be found by the exact
// text of an import statement that was injected verbatim.
type ModuleMap struct {
	modules map[string]*types.ClientModule
	aliases map[string]string
	mutex   sync.RWMutex
}

// NewModuleMap creates an empty module map
func NewModuleMap() *ModuleMap {
	return &ModuleMap{
		modules: make(map[string]*types.ClientModule),
		aliases: make(map[string]string),
	}
}

// Register adds or replaces a module.
func (m *ModuleMap) Register(module *types.ClientModule) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.modules[module.ID] = module
}

// Alias makes the module with the given id reachable under key.
func (m *ModuleMap) Alias(key, id string) {
	if key == id {
		return
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.aliases[key] = id
}

// Get retrieves a module by id or alias.
func (m *ModuleMap) Get(key string) (*types.ClientModule, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if module, ok := m.modules[key]; ok {
		return module, true
	}
	if id, ok := m.aliases[key]; ok {
		module, ok := m.modules[id]
		return module, ok
	}
	return nil, false
}

// Remove deletes a module and every alias pointing at it.
func (m *ModuleMap) Remove(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.modules[id]; !exists {
		return
	}
	delete(m.modules, id)
	for key, target := range m.aliases {
		if target == id {
			delete(m.aliases, key)
		}
	}
}

// All returns the registered modules sorted by id.
func (m *ModuleMap) All() []*types.ClientModule {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*types.ClientModule, 0, len(m.modules))
	for _, module := range m.modules {
		result = append(result, module)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Len returns the number of registered modules.
func (m *ModuleMap) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.modules)
}

// manifestEntry is the on-disk form of a client module. Modules without
// exports are inlined, everything else is referenced.
type manifestEntry struct {
	ID        string   `json:"id"`
	Text      string   `json:"text,omitempty"`
	DebugText string   `json:"debugText,omitempty"`
	Imports   []string `json:"imports,omitempty"`
	Exports   []string `json:"exports,omitempty"`
	// Aliases are import statements that resolve to this module.
	Aliases []string `json:"aliases,omitempty"`
}

// ReadManifest registers the modules listed in a JSON manifest and returns
// how many were read.
func (m *ModuleMap) ReadManifest(r io.Reader) (int, error) {
	var entries []manifestEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return 0, fmt.Errorf("decoding module manifest: %w", err)
	}
	for i, e := range entries {
		if e.ID == "" {
			return i, fmt.Errorf("module manifest entry %d has no id", i)
		}
		var module *types.ClientModule
		if len(e.Exports) > 0 {
			module = types.NewReferencedModule(e.ID, e.Text, e.Exports, e.Imports...)
		} else {
			module = types.NewInlineModule(e.ID, e.Text, e.Imports...)
		}
		module.DebugText = e.DebugText
		m.Register(module)
		for _, alias := range e.Aliases {
			m.Alias(alias, e.ID)
		}
	}
	return len(entries), nil
}

// LoadManifestFile reads a manifest from path.
func (m *ModuleMap) LoadManifestFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening module manifest: %w", err)
	}
	defer f.Close()
	return m.ReadManifest(f)
}

// WriteManifest writes the referenced modules as a JSON manifest. This is
// the shared module map artifact of a build.
func (m *ModuleMap) WriteManifest(w io.Writer) error {
	m.mutex.RLock()
	byID := make(map[string][]string)
	for alias, id := range m.aliases {
		byID[id] = append(byID[id], alias)
	}
	m.mutex.RUnlock()

	var entries []manifestEntry
	for _, module := range m.All() {
		if module.Kind != types.ModuleReferenced {
			continue
		}
		aliases := byID[module.ID]
		sort.Strings(aliases)
		entries = append(entries, manifestEntry{
			ID:      module.ID,
			Imports: module.Imports,
			Exports: module.Exports,
			Aliases: aliases,
		})
	}
	if entries == nil {
		entries = []manifestEntry{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
