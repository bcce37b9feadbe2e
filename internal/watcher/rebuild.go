package watcher

import (
	"context"
	"time"

	"github.com/conneroisu/pagewright/internal/build"
	"github.com/conneroisu/pagewright/internal/logging"
	"github.com/conneroisu/pagewright/internal/types"
)

// Reloader refreshes routes and modules and clears derived caches.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Builder runs one build.
type Builder interface {
	Build(ctx context.Context, opts build.Options) (*types.BuildResult, error)
}

// RebuildHandler reloads the site and rebuilds it on every batch of
// changes. A failed reload keeps the previous routes and skips the build.
func RebuildHandler(site Reloader, builder Builder, opts build.Options, logger logging.Logger) ChangeHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithComponent("watcher")

	return func(ctx context.Context, events []ChangeEvent) error {
		start := time.Now()
		paths := make([]string, 0, len(events))
		for _, e := range events {
			paths = append(paths, e.Path)
		}
		logger.Info(ctx, "files changed", "count", len(events), "paths", paths)

		if err := site.Reload(ctx); err != nil {
			return err
		}
		result, err := builder.Build(ctx, opts)
		if err != nil {
			return err
		}
		for _, failure := range result.Errors {
			logger.Warn(ctx, nil, "page failed", "route", failure.Path, "reason", failure.Reason)
		}
		logger.Info(ctx, "rebuilt",
			"pages", len(result.Pages),
			"failures", len(result.Errors),
			"duration", time.Since(start),
		)
		return nil
	}
}
