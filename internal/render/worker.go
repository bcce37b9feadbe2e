package render

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/conneroisu/pagewright/internal/errors"
	"github.com/conneroisu/pagewright/internal/events"
	"github.com/conneroisu/pagewright/internal/logging"
	"github.com/conneroisu/pagewright/internal/types"
)

// Profile event types.
const (
	ProfileRender = "render"
	ProfileError  = "error"
)

// Job asks a worker to render one page. Jobs are immutable.
type Job struct {
	// PagePath identifies the page in events, e.g. "/about" or
	// "/_debug/about"
	PagePath string
	// URL is the page URL including the base
	URL string
}

// PageRenderer renders jobs and reports the outcome as events rather than
// as a return value. The returned error only signals that the job could not
// be handled at all.
type PageRenderer interface {
	RenderPage(ctx context.Context, job Job) error
}

// Worker renders jobs with its own Renderer and emits exactly one page or
// error event per job on its channel, preceded by a profile event.
type Worker struct {
	renderer *Renderer
	channel  *events.Channel
	logger   logging.Logger
	tracer   trace.Tracer
}

// NewWorker creates a worker that emits on channel.
func NewWorker(renderer *Renderer, channel *events.Channel) *Worker {
	return &Worker{
		renderer: renderer,
		channel:  channel,
		logger:   renderer.logger.With("channel", channel.ID()),
		tracer:   otel.Tracer("github.com/conneroisu/pagewright/render"),
	}
}

// RenderPage implements PageRenderer.
func (w *Worker) RenderPage(ctx context.Context, job Job) error {
	ctx, span := w.tracer.Start(ctx, "render.page",
		trace.WithAttributes(
			attribute.String("pagewright.page_path", job.PagePath),
			attribute.String("pagewright.url", job.URL),
		),
	)
	defer span.End()

	start := time.Now()
	page, err := w.render(ctx, job)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Debug(ctx, "page render failed", "path", job.PagePath, "error", err)
		if perr := w.channel.Profile(types.ProfileEvent{
			Type:     ProfileError,
			URL:      job.URL,
			Duration: elapsed,
			Message:  err.Error(),
		}); perr != nil {
			return perr
		}
		return w.channel.Error(job.PagePath, errors.Reason(err))
	}

	span.SetStatus(codes.Ok, "")
	if page != nil {
		span.SetAttributes(attribute.Int("pagewright.modules", page.Modules.Len()))
		if perr := w.channel.Profile(types.ProfileEvent{
			Type:     ProfileRender,
			URL:      job.URL,
			Duration: elapsed,
		}); perr != nil {
			return perr
		}
	}
	return w.channel.Page(job.PagePath, page)
}

// render converts a panic in a layout or loader into an error carrying the
// stack.
func (w *Worker) render(ctx context.Context, job Job) (page *types.RenderedPage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return w.renderer.RenderPage(ctx, job.URL)
}

// Close closes the worker's event channel.
func (w *Worker) Close() {
	w.channel.Close()
}
