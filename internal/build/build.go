// Package build renders every page of a site concurrently and writes the
// result.
//
// A Coordinator enumerates the page paths of the current route set, submits
// one render job per page to a pool of render workers and collects the
// page, error and profile events the workers emit. Each submitted page is
// tracked by a deferred that settles exactly once. When a debug base is
// configured, every production page that renders is followed by a render of
// its debug view. The build waits until no deferred is pending, then hands
// the pages to the write hooks and the output writer.
//
// Cancelling the context passed to Build aborts it: pending deferreds settle
// immediately, no further jobs are submitted, nothing is written and the
// pages and failures collected so far are returned.
package build

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/conneroisu/pagewright/internal/errors"
	"github.com/conneroisu/pagewright/internal/events"
	"github.com/conneroisu/pagewright/internal/logging"
	"github.com/conneroisu/pagewright/internal/output"
	"github.com/conneroisu/pagewright/internal/render"
	"github.com/conneroisu/pagewright/internal/routes"
	"github.com/conneroisu/pagewright/internal/site"
	"github.com/conneroisu/pagewright/internal/types"
)

// Options controls one build.
type Options struct {
	// MaxWorkers is the number of concurrent render workers. Zero renders
	// every page sequentially on a single worker that reuses the host
	// renderer across builds.
	MaxWorkers int
	// Skip reports whether a production page path should not be rendered.
	// Debug views are never skipped.
	Skip func(pagePath string) bool
	// Write sends the pages to the output writer after a build that was not
	// aborted.
	Write bool
}

// DefaultOptions renders on one worker and writes the output.
func DefaultOptions() Options {
	return Options{MaxWorkers: 1, Write: true}
}

// WriteHook runs before the pages of a build are written. Hooks may edit
// the pages in place; an error stops the write.
type WriteHook func(ctx context.Context, pages []*types.RenderedPage) error

// Coordinator builds the pages of one site. It may run any number of
// builds, one at a time.
type Coordinator struct {
	site         *site.Context
	layouts      *render.Layouts
	rendererOpts []render.RendererOption
	writer       output.Writer
	writeHooks   []WriteHook
	metrics      *Metrics
	logger       logging.Logger
	tracer       trace.Tracer

	// newWorker wraps a renderer and an event channel into a worker.
	newWorker func(r *render.Renderer, ch *events.Channel) pageWorker

	mutex     sync.Mutex
	building  bool
	host      *render.Renderer
	renderers []*render.Renderer
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWriter sets the output destination.
func WithWriter(w output.Writer) Option {
	return func(c *Coordinator) {
		c.writer = w
	}
}

// WithMetrics records build metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithRendererOptions configures every renderer the coordinator creates.
func WithRendererOptions(opts ...render.RendererOption) Option {
	return func(c *Coordinator) {
		c.rendererOpts = append(c.rendererOpts, opts...)
	}
}

// New creates a coordinator for sc rendering with layouts.
func New(sc *site.Context, layouts *render.Layouts, opts ...Option) *Coordinator {
	c := &Coordinator{
		site:    sc,
		layouts: layouts,
		logger:  sc.Logger.WithComponent("build"),
		tracer:  otel.Tracer("github.com/conneroisu/pagewright/build"),
		newWorker: func(r *render.Renderer, ch *events.Channel) pageWorker {
			return render.NewWorker(r, ch)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnWritePages registers hook to run before pages are written.
func (c *Coordinator) OnWritePages(hook WriteHook) *Coordinator {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.writeHooks = append(c.writeHooks, hook)
	return c
}

// Writer returns the output destination, or nil.
func (c *Coordinator) Writer() output.Writer {
	return c.writer
}

// Build renders every page of the current route set. It returns an error
// only for a fatal precondition or a failed write; render failures are
// reported in the result.
func (c *Coordinator) Build(ctx context.Context, opts Options) (*types.BuildResult, error) {
	if opts.Write && c.writer == nil {
		return nil, errors.NewConfigError(errors.ErrCodeNoOutput,
			"writing pages requires an output destination", nil)
	}
	if opts.MaxWorkers < 0 {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("max workers must not be negative, got %d", opts.MaxWorkers), nil)
	}

	c.mutex.Lock()
	if c.building {
		c.mutex.Unlock()
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "a build is already running", nil)
	}
	c.building = true
	c.mutex.Unlock()
	defer func() {
		c.mutex.Lock()
		c.building = false
		c.mutex.Unlock()
	}()

	buildID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "build",
		trace.WithAttributes(
			attribute.String("pagewright.build_id", buildID),
			attribute.String("pagewright.site_id", c.site.ID),
			attribute.Int("pagewright.max_workers", opts.MaxWorkers),
			attribute.Bool("pagewright.write", opts.Write),
		),
	)
	defer span.End()

	logger := c.logger.With("build_id", buildID)
	start := time.Now()

	b := c.newRun(ctx, opts, logger)
	result, aborted, err := b.execute(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.build(BuildFailed, time.Since(start))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("pagewright.pages", len(result.Pages)),
		attribute.Int("pagewright.failures", len(result.Errors)),
		attribute.Bool("pagewright.aborted", aborted),
	)

	if aborted {
		logger.Info(ctx, "build aborted",
			"pages", len(result.Pages),
			"failures", len(result.Errors),
			"duration", time.Since(start),
		)
		span.SetStatus(codes.Error, "aborted")
		c.metrics.build(BuildAborted, time.Since(start))
		return result, nil
	}

	// Prepare empties the output; it must not run before every page settled.
	if opts.Write {
		if err := c.writer.Prepare(ctx); err != nil {
			err = errors.NewIOError(errors.ErrCodeWriteFailed,
				"preparing output "+c.writer.Location(), err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.metrics.build(BuildFailed, time.Since(start))
			return result, err
		}
		if err := c.writePages(ctx, result.Pages, logger); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.metrics.build(BuildFailed, time.Since(start))
			return result, err
		}
	}

	logger.Info(ctx, "build finished",
		"pages", len(result.Pages),
		"failures", len(result.Errors),
		"duration", time.Since(start),
	)
	span.SetStatus(codes.Ok, "")
	c.metrics.build(BuildCompleted, time.Since(start))
	return result, nil
}

func (c *Coordinator) writePages(ctx context.Context, pages []*types.RenderedPage, logger logging.Logger) error {
	ctx, span := c.tracer.Start(ctx, "build.write",
		trace.WithAttributes(attribute.String("pagewright.output", c.writer.Location())))
	defer span.End()

	c.mutex.Lock()
	hooks := append([]WriteHook{}, c.writeHooks...)
	c.mutex.Unlock()
	for _, hook := range hooks {
		if err := hook(ctx, pages); err != nil {
			span.RecordError(err)
			return err
		}
	}

	files, err := output.WritePages(ctx, c.writer, pages, c.site.Modules, output.DefaultConcurrency)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Int("pagewright.files", len(files)))
	logger.Info(ctx, "pages written", "files", len(files), "output", c.writer.Location())
	return nil
}

// renderersFor returns the renderers the workers of one build use. The
// sequential mode reuses the host renderer; the pool mode keeps one renderer
// per worker slot so page caches survive between builds.
func (c *Coordinator) renderersFor(maxWorkers int) []*render.Renderer {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if maxWorkers == 0 {
		if c.host == nil {
			c.host = render.NewRenderer(c.site, c.layouts, c.rendererOpts...)
		}
		return []*render.Renderer{c.host}
	}
	for len(c.renderers) < maxWorkers {
		c.renderers = append(c.renderers, render.NewRenderer(c.site, c.layouts, c.rendererOpts...))
	}
	return append([]*render.Renderer{}, c.renderers[:maxWorkers]...)
}

// run is the state of one build.
type run struct {
	c        *Coordinator
	opts     Options
	logger   logging.Logger
	hub      *events.Hub
	queue    *jobQueue
	failures *errors.FailureCollector

	base        string
	debugPrefix string

	mutex       sync.Mutex
	pages       []*types.RenderedPage
	pending     map[string]*deferredPage
	pageRoutes  map[string]pageRoute
	pageCount   int
	renderCount int
	aborted     bool
}

func (c *Coordinator) newRun(ctx context.Context, opts Options, logger logging.Logger) *run {
	b := &run{
		c:          c,
		opts:       opts,
		logger:     logger,
		hub:        events.NewHub(),
		queue:      newJobQueue(),
		failures:   errors.NewFailureCollector(),
		base:       c.site.Base(),
		pending:    make(map[string]*deferredPage),
		pageRoutes: make(map[string]pageRoute),
	}
	if c.site.DebugBase() != "" {
		b.debugPrefix = "/" + c.site.DebugDir()
	}

	b.hub.
		On(events.KindProfile, func(ev events.Event) { b.onProfile(ctx, ev) }).
		On(events.KindPage, func(ev events.Event) { b.onPage(ctx, ev) }).
		On(events.KindError, func(ev events.Event) { b.onError(ctx, ev) })
	return b
}

// execute enumerates, renders and drains. It reports whether the build was
// aborted.
func (b *run) execute(ctx context.Context) (*types.BuildResult, bool, error) {
	stop := context.AfterFunc(ctx, b.abort)
	defer stop()

	pool, err := b.startWorkers(ctx)
	if err != nil {
		b.hub.Close()
		return nil, false, fmt.Errorf("starting render workers: %w", err)
	}

	err = routes.GenerateRoutePaths(ctx, b.c.site.Routes(), routes.Handlers{
		Path: func(routePath string, params routes.Params) {
			b.submit(ctx, routePath, params, false)
		},
		Error: func(failure types.FailedPage) {
			b.logger.Warn(ctx, nil, "route failed", "route", failure.Path, "reason", failure.Reason)
			b.failures.Add(failure)
		},
	})
	if err != nil && ctx.Err() == nil {
		b.logger.Error(ctx, err, "enumerating pages")
	}

	b.drain()
	if ctx.Err() != nil {
		b.abort()
	}

	if b.isAborted() {
		// Workers still rendering finish in the background; their events
		// are ignored.
		go b.shutdown(pool)
	} else {
		b.shutdown(pool)
	}
	return b.result(), b.isAborted(), nil
}

func (b *run) startWorkers(ctx context.Context) (*workerPool, error) {
	renderers := b.c.renderersFor(b.opts.MaxWorkers)
	workers := make([]pageWorker, 0, len(renderers))
	for _, r := range renderers {
		ch, err := b.hub.NewChannel()
		if err != nil {
			for _, w := range workers {
				w.Close()
			}
			return nil, err
		}
		workers = append(workers, b.c.newWorker(r, ch))
	}

	pool := newWorkerPool(workers, b.queue, func(job render.Job, err error) {
		b.logger.Warn(ctx, err, "render job failed", "path", job.PagePath)
		b.fail(ctx, job.PagePath, errors.Reason(err))
	})
	pool.Start(ctx)
	b.logger.Debug(ctx, "render workers started", "workers", len(workers), "sequential", b.opts.MaxWorkers == 0)
	return pool, nil
}

func (b *run) shutdown(pool *workerPool) {
	b.queue.Close()
	pool.Wait()
	b.hub.Close()
}

// submit queues a render of the page produced by routePath and params.
func (b *run) submit(ctx context.Context, routePath string, params routes.Params, debug bool) {
	pagePath := routes.PagePath(routePath, params)
	if !debug && b.opts.Skip != nil && b.opts.Skip(pagePath) {
		b.c.metrics.page(PageSkipped)
		return
	}

	b.mutex.Lock()
	if b.aborted {
		b.mutex.Unlock()
		return
	}
	if _, seen := b.pageRoutes[pagePath]; seen {
		b.mutex.Unlock()
		b.logger.Debug(ctx, "page already submitted", "path", pagePath, "route", routePath)
		return
	}
	b.pending[pagePath] = newDeferredPage()
	b.pageRoutes[pagePath] = pageRoute{routePath: routePath, params: params}
	b.pageCount++
	b.c.metrics.pending(len(b.pending))
	b.mutex.Unlock()

	job := render.Job{PagePath: pagePath, URL: routes.PrependBase(pagePath, b.base)}
	if err := b.queue.Push(job); err != nil {
		b.fail(ctx, pagePath, errors.Reason(err))
		return
	}
	b.progress(ctx)
}

func (b *run) onProfile(ctx context.Context, ev events.Event) {
	p := ev.Profile
	b.c.metrics.profile(p.Type, p.Duration)
	if p.Type == render.ProfileError {
		b.logger.Debug(ctx, "» "+p.Type, "url", p.URL, "message", p.Message)
		return
	}
	b.logger.Debug(ctx, "» "+p.Type, "url", p.URL, "duration", p.Duration)
}

func (b *run) onPage(ctx context.Context, ev events.Event) {
	b.mutex.Lock()
	if b.stoppedLocked(ctx) {
		b.mutex.Unlock()
		b.abortIfCancelled(ctx)
		return
	}
	route, known := b.pageRoutes[ev.PagePath]
	if ev.Page != nil {
		b.pages = append(b.pages, ev.Page)
		b.renderCount++
	} else {
		b.pageCount--
	}
	b.mutex.Unlock()

	if ev.Page != nil {
		b.c.metrics.page(PageRendered)
		// The debug view is submitted before the production page settles
		// so the drain never sees an empty pending set in between.
		if known && b.debugPrefix != "" && !b.isDebugPath(ev.PagePath) {
			b.submit(ctx, routes.PrependBase(route.routePath, b.debugPrefix), route.params, true)
		}
	} else {
		b.c.metrics.page(PageSkipped)
	}
	b.progress(ctx)
	b.settle(ev.PagePath)
}

func (b *run) onError(ctx context.Context, ev events.Event) {
	b.logger.Debug(ctx, "page failed", "path", ev.PagePath)
	b.fail(ctx, ev.PagePath, ev.Reason)
}

// fail records a failure for the route of pagePath and settles its
// deferred. Only the first failure of a route is kept in the result; later
// ones are logged so their reasons are not lost. Failures arriving once the
// build is aborted belong to unfinished pages and are dropped.
func (b *run) fail(ctx context.Context, pagePath, reason string) {
	b.mutex.Lock()
	if b.stoppedLocked(ctx) {
		b.mutex.Unlock()
		b.abortIfCancelled(ctx)
		return
	}
	routePath := pagePath
	if route, ok := b.pageRoutes[pagePath]; ok {
		routePath = route.routePath
	}
	added := b.failures.AddRouteFailure(routePath, reason)
	b.mutex.Unlock()

	if !added {
		b.logger.Warn(ctx, nil, "route already failed", "route", routePath, "path", pagePath, "reason", reason)
	}
	b.c.metrics.page(PageFailed)
	b.settle(pagePath)
}

func (b *run) settle(pagePath string) {
	b.mutex.Lock()
	d, ok := b.pending[pagePath]
	if ok {
		delete(b.pending, pagePath)
	}
	b.c.metrics.pending(len(b.pending))
	b.mutex.Unlock()
	if ok {
		d.resolve()
	}
}

// drain waits until no page is pending. Settling a page may submit another,
// so the pending set is read again after each round.
func (b *run) drain() {
	for {
		b.mutex.Lock()
		if b.aborted || len(b.pending) == 0 {
			b.mutex.Unlock()
			return
		}
		waits := make([]*deferredPage, 0, len(b.pending))
		for _, d := range b.pending {
			waits = append(waits, d)
		}
		b.mutex.Unlock()

		for _, d := range waits {
			<-d.done
		}
	}
}

// abort settles every pending page and stops further submissions.
func (b *run) abort() {
	b.mutex.Lock()
	if b.aborted {
		b.mutex.Unlock()
		return
	}
	b.aborted = true
	pending := b.pending
	b.pending = make(map[string]*deferredPage)
	b.mutex.Unlock()

	for _, d := range pending {
		d.resolve()
	}
	b.c.metrics.pending(0)
}

// stoppedLocked reports whether results must no longer be recorded. A
// cancelled context counts even before the abort callback has run. b.mutex
// must be held.
func (b *run) stoppedLocked(ctx context.Context) bool {
	return b.aborted || ctx.Err() != nil
}

// abortIfCancelled aborts synchronously when ctx is done.
func (b *run) abortIfCancelled(ctx context.Context) {
	if ctx.Err() != nil {
		b.abort()
	}
}

func (b *run) isAborted() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.aborted
}

func (b *run) progress(ctx context.Context) {
	b.mutex.Lock()
	rendered, total := b.renderCount, b.pageCount
	b.mutex.Unlock()
	b.logger.Debug(ctx, fmt.Sprintf("%d of %d pages rendered", rendered, total))
}

func (b *run) result() *types.BuildResult {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return &types.BuildResult{
		Pages:  append([]*types.RenderedPage{}, b.pages...),
		Errors: b.failures.Failures(),
	}
}

// isDebugPath reports whether pagePath belongs to the debug view.
func (b *run) isDebugPath(pagePath string) bool {
	return b.debugPrefix != "" && strings.HasPrefix(pagePath, b.debugPrefix)
}
