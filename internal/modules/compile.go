package modules

import (
	"fmt"
	"path"

	"github.com/tdewolff/minify/v2"
	mincss "github.com/tdewolff/minify/v2/css"
	minjs "github.com/tdewolff/minify/v2/js"

	"github.com/conneroisu/pagewright/internal/types"
)

// Source is an unbundled client module handed to the compiler.
type Source struct {
	ID      string
	Text    string
	Imports []string
	// Exports makes the module referenced. Without exports it is inlined
	// into its importers.
	Exports []string
}

// Compiler produces the production and debug variants of client modules.
type Compiler struct {
	minifier *minify.M
	enabled  bool
}

// NewCompiler creates a compiler. With minification disabled modules are
// registered as-is and have no debug variant.
func NewCompiler(minifyEnabled bool) *Compiler {
	m := minify.New()
	m.AddFunc("text/javascript", minjs.Minify)
	m.AddFunc("text/css", mincss.Minify)
	return &Compiler{minifier: m, enabled: minifyEnabled}
}

// Compile builds a client module from src. When minification changes the
// text, the original is kept as the debug variant.
func (c *Compiler) Compile(src Source) (*types.ClientModule, error) {
	text := src.Text
	if c.enabled {
		if mediatype := mediaType(src.ID); mediatype != "" {
			out, err := c.minifier.String(mediatype, src.Text)
			if err != nil {
				return nil, fmt.Errorf("minifying %s: %w", src.ID, err)
			}
			text = out
		}
	}

	var module *types.ClientModule
	if len(src.Exports) > 0 {
		module = types.NewReferencedModule(src.ID, text, src.Exports, src.Imports...)
	} else {
		module = types.NewInlineModule(src.ID, text, src.Imports...)
	}
	if text != src.Text {
		module.DebugText = src.Text
	}
	return module, nil
}

// CompileInto compiles every source and registers the results in m.
func (c *Compiler) CompileInto(m *ModuleMap, sources ...Source) error {
	for _, src := range sources {
		module, err := c.Compile(src)
		if err != nil {
			return err
		}
		m.Register(module)
	}
	return nil
}

func mediaType(id string) string {
	switch path.Ext(id) {
	case ".js", ".mjs":
		return "text/javascript"
	case ".css":
		return "text/css"
	default:
		return ""
	}
}
