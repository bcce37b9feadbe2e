package cmd

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/conneroisu/pagewright/internal/build"
	"github.com/conneroisu/pagewright/internal/config"
	"github.com/conneroisu/pagewright/internal/logging"
	"github.com/conneroisu/pagewright/internal/output"
	"github.com/conneroisu/pagewright/internal/render"
	"github.com/conneroisu/pagewright/internal/site"
)

// session wires one site context to its coordinator and output writer.
type session struct {
	config  *config.Config
	logger  logging.Logger
	site    *site.Context
	builder *build.Coordinator
}

// loadConfig reads the configuration and makes the project root absolute.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	cfg.Root = root
	return cfg, nil
}

func newLogger(cfg *config.Config) logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
}

func newSession(cfg *config.Config) (*session, error) {
	logger := newLogger(cfg)

	sc, err := site.New(cfg, site.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	builder := build.New(sc, render.NewLayouts(render.Document()),
		build.WithWriter(newWriter(cfg, logger)),
		build.WithMetrics(build.NewMetrics(sc.Registry)),
	)

	return &session{
		config:  cfg,
		logger:  logger,
		site:    sc,
		builder: builder,
	}, nil
}

func newWriter(cfg *config.Config, logger logging.Logger) output.Writer {
	if cfg.Output.Target == config.TargetS3 {
		return output.NewS3FromConfig(cfg.Output.S3)
	}
	return output.NewFS(cfg.ResolvePath(cfg.Output.Dir), cfg.Root, logger)
}

// skipMatcher skips page paths matching any of patterns (path.Match
// syntax). It returns nil when there are no patterns.
func skipMatcher(patterns []string) (func(pagePath string) bool, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	for _, p := range patterns {
		if _, err := path.Match(p, "/"); err != nil {
			return nil, fmt.Errorf("invalid skip pattern %q: %w", p, err)
		}
	}
	return func(pagePath string) bool {
		for _, p := range patterns {
			if ok, _ := path.Match(p, pagePath); ok {
				return true
			}
		}
		return false
	}, nil
}
