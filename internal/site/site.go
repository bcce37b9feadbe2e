// Package site holds the explicit build context shared by every component
// of a build or watch session: configuration, routes, the client module map
// and the state caches. Nothing in pagewright reaches these through global
// state.
package site

import (
	"context"
	_ "embed"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/conneroisu/pagewright/internal/cache"
	"github.com/conneroisu/pagewright/internal/config"
	"github.com/conneroisu/pagewright/internal/errors"
	"github.com/conneroisu/pagewright/internal/logging"
	"github.com/conneroisu/pagewright/internal/modules"
	"github.com/conneroisu/pagewright/internal/routes"
	"github.com/conneroisu/pagewright/internal/types"
)

//go:embed client/runtime.js
var clientRuntime string

// HydrateImport is the import statement registered for the inline module
// that brings hydrate into a page's bootstrap script.
const HydrateImport = `import { hydrate } from "pagewright/client"`

// HydrateID is the id of the inline hydrate module.
const HydrateID = "pagewright/hydrate.js"

// rewriteMemoSize bounds the import rewrite memo.
const rewriteMemoSize = 1024

// Context is the state of one build or watch session.
type Context struct {
	// ID identifies the session in logs and build artifacts.
	ID       string
	Config   *config.Config
	Logger   logging.Logger
	Registry *prometheus.Registry

	Modules  *modules.ModuleMap
	Rewrites *cache.Memo[modules.Rewrite]
	// States caches state modules by key.
	States *cache.StateCache[any]
	// Props caches client props by page path.
	Props   *cache.StateCache[map[string]any]
	Metrics *cache.Metrics

	compiler    *modules.Compiler
	clock       func() time.Time
	mutex       sync.RWMutex
	routes      *routes.Set
	fixedRoutes bool
	reloadHooks []func()
	// clientIDs are the modules compiled from the client directory by the
	// last load.
	clientIDs map[string]struct{}
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Context) { c.Logger = l }
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(c *Context) { c.Registry = reg }
}

// WithRoutes uses set instead of loading the routes file. Reload keeps it.
func WithRoutes(set *routes.Set) Option {
	return func(c *Context) {
		c.routes = set
		c.fixedRoutes = true
	}
}

// WithClock replaces time.Now in the caches.
func WithClock(clock func() time.Time) Option {
	return func(c *Context) { c.clock = clock }
}

// New creates a session context from cfg, loading routes and client modules.
func New(cfg *config.Config, opts ...Option) (*Context, error) {
	c := &Context{
		ID:      uuid.NewString(),
		Config:  cfg,
		Modules: modules.NewModuleMap(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = logging.NewNop()
	}
	c.Logger = c.Logger.With("session", c.ID)
	if c.Registry == nil {
		c.Registry = prometheus.NewRegistry()
	}

	c.Metrics = cache.NewMetrics(c.Registry)
	c.States = cache.New[any](cache.WithName("state"), cache.WithMetrics(c.Metrics), cache.WithClock(c.clock))
	c.Props = cache.New[map[string]any](cache.WithName("props"), cache.WithMetrics(c.Metrics), cache.WithClock(c.clock))

	rewrites, err := cache.NewMemo[modules.Rewrite](rewriteMemoSize)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "creating rewrite memo", err)
	}
	c.Rewrites = rewrites
	c.compiler = modules.NewCompiler(cfg.Build.Minify)

	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Routes returns the current route set.
func (c *Context) Routes() *routes.Set {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.routes
}

// Base is the production base path.
func (c *Context) Base() string {
	return c.Config.Base
}

// DebugBase is the base path of the debug view, or "" when disabled.
func (c *Context) DebugBase() string {
	return c.Config.DebugBase
}

// DebugDir is the debug view subdirectory relative to Base.
func (c *Context) DebugDir() string {
	return c.Config.DebugDir()
}

// HelpersID is the id of the client runtime module.
func (c *Context) HelpersID() string {
	return c.Config.Build.HelpersID
}

// Clock returns the time source shared by the session caches.
func (c *Context) Clock() func() time.Time {
	return c.clock
}

// OnReload registers fn to run after Reload refreshed the context.
func (c *Context) OnReload(fn func()) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.reloadHooks = append(c.reloadHooks, fn)
}

// Reload re-reads routes and client modules and invalidates every cache
// that may hold results derived from the old versions.
func (c *Context) Reload(ctx context.Context) error {
	start := time.Now()
	if err := c.load(); err != nil {
		return err
	}

	c.Rewrites.Purge()
	c.Props.Reset()
	c.States.Reset()

	c.mutex.RLock()
	hooks := append([]func(){}, c.reloadHooks...)
	c.mutex.RUnlock()
	for _, hook := range hooks {
		hook()
	}

	c.Logger.Info(ctx, "site reloaded",
		"modules", c.Modules.Len(),
		"duration", time.Since(start),
	)
	return nil
}

func (c *Context) load() error {
	if !c.fixedRoutes {
		set, err := routes.LoadFile(c.Config.ResolvePath(c.Config.RoutesFile))
		if err != nil {
			return errors.NewConfigError(errors.ErrCodeInvalidConfig, "loading routes", err)
		}
		c.mutex.Lock()
		c.routes = set
		c.mutex.Unlock()
	} else if c.Routes() == nil {
		c.mutex.Lock()
		c.routes = &routes.Set{}
		c.mutex.Unlock()
	}

	if err := c.registerRuntime(); err != nil {
		return err
	}
	if c.Config.ModulesFile != "" {
		if _, err := c.Modules.LoadManifestFile(c.Config.ResolvePath(c.Config.ModulesFile)); err != nil {
			return errors.NewConfigError(errors.ErrCodeManifestInvalid, "loading module manifest", err)
		}
	}
	return c.compileClientDir()
}

// registerRuntime adds the client runtime and the inline hydrate module.
func (c *Context) registerRuntime() error {
	helpersID := c.HelpersID()
	text := strings.Replace(clientRuntime, "__STATE_BASE__", strconv.Quote(c.Base()+"state/"), 1)
	err := c.compiler.CompileInto(c.Modules, modules.Source{
		ID:      helpersID,
		Text:    text,
		Exports: []string{"setState", "getState", "importState", "preCacheState", "describeHead", "getHead", "preloadModules", "hydrate"},
	})
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "compiling client runtime", err)
	}

	hydrate := `import { hydrate } from "` + c.Base() + helpersID + `"`
	c.Modules.Register(types.NewInlineModule(HydrateID, hydrate, helpersID))
	c.Modules.Alias(HydrateImport, HydrateID)
	return nil
}
