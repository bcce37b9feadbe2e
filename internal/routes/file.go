package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/pagewright/internal/cache"
	"github.com/conneroisu/pagewright/internal/pagestate"
)

// File is the YAML routes file read by the CLI.
type File struct {
	DefaultPath string      `yaml:"default_path"`
	Default     *RouteSpec  `yaml:"default"`
	Routes      []RouteSpec `yaml:"routes"`
	State       []StateSpec `yaml:"state"`
}

// RouteSpec declares one route.
type RouteSpec struct {
	Path        string         `yaml:"path"`
	Layout      string         `yaml:"layout"`
	Title       string         `yaml:"title"`
	Content     string         `yaml:"content"`
	ContentFile string         `yaml:"content_file"`
	Module      string         `yaml:"module"`
	Props       map[string]any `yaml:"props"`
	Paths       []any          `yaml:"paths"`
	Include     []StateRef     `yaml:"include"`
}

// StateSpec declares a state module backed by a JSON or YAML file. "{0}",
// "{1}" and so on in File are replaced by the bound arguments.
type StateSpec struct {
	Name   string `yaml:"name"`
	File   string `yaml:"file"`
	MaxAge *int   `yaml:"max_age"`
	Inline bool   `yaml:"inline"`
}

// StateRef references a state module by name, optionally with arguments.
// It decodes from either a plain name or a {name, args} mapping.
type StateRef struct {
	Name string `yaml:"name"`
	Args []any  `yaml:"args"`
}

// UnmarshalYAML accepts the scalar shorthand.
func (r *StateRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Name = node.Value
		return nil
	}
	type plain StateRef
	return node.Decode((*plain)(r))
}

// LoadFile reads and compiles a routes file. Relative file references
// resolve against the directory of path.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading routes file: %w", err)
	}
	return Load(data, filepath.Dir(path))
}

// Load compiles routes file contents.
func Load(data []byte, dir string) (*Set, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing routes file: %w", err)
	}

	modules := make(map[string]*pagestate.Module, len(file.State))
	for _, spec := range file.State {
		if spec.Name == "" || spec.File == "" {
			return nil, fmt.Errorf("state module needs a name and a file")
		}
		if _, dup := modules[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate state module %q", spec.Name)
		}
		modules[spec.Name] = fileModule(spec, dir)
	}

	set := &Set{DefaultPath: file.DefaultPath}
	for i := range file.Routes {
		route, err := compile(&file.Routes[i], dir, modules)
		if err != nil {
			return nil, err
		}
		set.Routes = append(set.Routes, route)
	}

	if file.Default != nil {
		if file.Default.Path == "" {
			file.Default.Path = set.DefaultPagePath()
		}
		route, err := compile(file.Default, dir, modules)
		if err != nil {
			return nil, err
		}
		set.Default = route
	}
	return set, nil
}

func compile(spec *RouteSpec, dir string, modules map[string]*pagestate.Module) (*Route, error) {
	route, err := Parse(spec.Path)
	if err != nil {
		return nil, err
	}

	content := spec.Content
	if spec.ContentFile != "" {
		data, err := os.ReadFile(resolve(dir, spec.ContentFile))
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", spec.Path, err)
		}
		content = string(data)
	}

	route.ModuleID = spec.Module
	route.Layout = spec.Layout
	route.Meta = map[string]string{"title": spec.Title, "content": content}

	if spec.Paths != nil {
		paths := append([]any(nil), spec.Paths...)
		route.Paths = func(ctx context.Context) ([]any, error) {
			return paths, nil
		}
	}

	props := spec.Props
	route.State = func(ctx context.Context, params Params, query url.Values) (map[string]any, error) {
		out := make(map[string]any, len(props)+1)
		for k, v := range props {
			out[k] = v
		}
		if len(params) > 0 {
			p := make(map[string]any, len(params))
			for k, v := range params {
				p[k] = v
			}
			out["params"] = p
		}
		return out, nil
	}

	for _, ref := range spec.Include {
		m, ok := modules[ref.Name]
		if !ok {
			return nil, fmt.Errorf("route %q includes unknown state module %q", spec.Path, ref.Name)
		}
		route.Include = append(route.Include, m.Bind(ref.Args...))
	}

	return route, nil
}

func fileModule(spec StateSpec, dir string) *pagestate.Module {
	return &pagestate.Module{
		Name:   spec.Name,
		Inline: spec.Inline,
		Load: func(ctx context.Context, ctl *cache.Control, args ...any) (any, error) {
			name := spec.File
			for i, arg := range args {
				name = strings.ReplaceAll(name, fmt.Sprintf("{%d}", i), fmt.Sprint(arg))
			}
			data, err := os.ReadFile(resolve(dir, name))
			if err != nil {
				return nil, err
			}
			if spec.MaxAge != nil {
				ctl.MaxAge = *spec.MaxAge
			}

			var state any
			switch strings.ToLower(filepath.Ext(name)) {
			case ".yml", ".yaml":
				err = yaml.Unmarshal(data, &state)
			default:
				err = json.Unmarshal(data, &state)
			}
			if err != nil {
				return nil, fmt.Errorf("decoding %s: %w", name, err)
			}
			return state, nil
		},
	}
}

func resolve(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}
