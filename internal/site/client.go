package site

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/conneroisu/pagewright/internal/errors"
	"github.com/conneroisu/pagewright/internal/modules"
)

// compileClientDir compiles the scripts and stylesheets of the client
// directory into the module map. Files get the id "<assets dir>/<relative
// path>"; relative import specifiers are resolved to base-prefixed URLs so
// the module graph can find them. Modules of files that disappeared since the
// previous compile are removed from the map.
func (c *Context) compileClientDir() error {
	if c.Config.ClientDir == "" {
		c.pruneClientModules(nil)
		return nil
	}
	dir := c.Config.ResolvePath(c.Config.ClientDir)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		c.pruneClientModules(nil)
		return nil
	}

	var sources []modules.Source
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(p)
		if ext != ".js" && ext != ".mjs" && ext != ".css" {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}

		id := path.Join(c.Config.Build.AssetsDir, filepath.ToSlash(rel))
		src := modules.Source{ID: id, Text: string(data)}
		if ext != ".css" {
			src.Text, src.Imports = c.resolveImports(id, src.Text)
			src.Exports = modules.ParseExports(src.Text)
		}
		sources = append(sources, src)
		return nil
	})
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "reading client directory "+dir, err)
	}

	if err := c.compiler.CompileInto(c.Modules, sources...); err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "compiling client modules", err)
	}
	c.pruneClientModules(sources)
	c.Logger.Debug(context.Background(), "client modules compiled", "dir", dir, "count", len(sources))
	return nil
}

// resolveImports rewrites relative specifiers of the module id to
// base-prefixed URLs and returns the ids of every local module imported.
func (c *Context) resolveImports(id, text string) (string, []string) {
	base := c.Base()
	var edits []modules.Edit
	var imports []string
	for _, stmt := range modules.ParseImports(text) {
		source := stmt.Source
		switch {
		case strings.HasPrefix(source, "./"), strings.HasPrefix(source, "../"):
			resolved := path.Join(path.Dir(id), source)
			edits = append(edits, modules.Edit{
				Start: stmt.SourceStart,
				End:   stmt.SourceEnd,
				Text:  base + resolved,
			})
			imports = append(imports, resolved)
		case strings.HasPrefix(source, base):
			imports = append(imports, strings.TrimPrefix(source, base))
		}
	}
	return modules.ApplyEdits(text, edits), imports
}

// pruneClientModules removes the modules compiled from client files that are
// not among sources, then remembers sources as the current client set.
func (c *Context) pruneClientModules(sources []modules.Source) {
	current := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		current[src.ID] = struct{}{}
	}
	for id := range c.clientIDs {
		if _, ok := current[id]; !ok {
			c.Modules.Remove(id)
			c.Logger.Debug(context.Background(), "client module removed", "id", id)
		}
	}
	c.clientIDs = current
}
