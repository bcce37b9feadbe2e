package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/pagewright/internal/config"
	"github.com/conneroisu/pagewright/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Rebuild whenever a source file changes",
	Long: `Build once, then watch the configured paths and rebuild after every batch
of changes. Each rebuild reloads the routes file and the client modules and
clears the state caches first.

Examples:
  pagewright watch                    # Watch the configured paths
  pagewright watch --serve            # Also serve the output directory
  pagewright watch --max-workers 4    # Rebuild on four workers`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := bindBuildFlags(cmd, args); err != nil {
			return err
		}
		return bindPreviewFlags(cmd, args)
	},
	RunE: runWatch,
}

var watchServe bool

func init() {
	rootCmd.AddCommand(watchCmd)

	addBuildFlags(watchCmd)
	addPreviewFlags(watchCmd)
	watchCmd.Flags().BoolVar(&watchServe, "serve", false, "Serve the output directory while watching")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	opts, err := buildOptions(cfg, true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fileWatcher, err := watcher.NewFileWatcher(cfg.Root, cfg.Watch.Debounce, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fileWatcher.Stop()

	fileWatcher.AddFilter(watcher.NoGitFilter)
	fileWatcher.AddFilter(watcher.IgnoreFilter(cfg.Watch.Ignore...))
	if cfg.Output.Target == config.TargetFS {
		if rel, err := filepath.Rel(cfg.Root, cfg.ResolvePath(cfg.Output.Dir)); err == nil {
			fileWatcher.AddFilter(watcher.PrefixFilter(rel))
		}
	}
	fileWatcher.AddHandler(watcher.RebuildHandler(s.site, s.builder, opts, s.logger))

	for _, p := range cfg.Watch.Paths {
		if err := fileWatcher.AddRecursive(p); err != nil {
			s.logger.Warn(ctx, err, "failed to watch path", "path", p)
			continue
		}
		s.logger.Debug(ctx, "watching", "path", p)
	}

	if err := s.build(ctx, opts, false); err != nil {
		return err
	}

	if err := fileWatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	s.logger.Info(ctx, "watching for changes", "paths", cfg.Watch.Paths)

	if watchServe {
		if cfg.Output.Target != config.TargetFS {
			return fmt.Errorf("--serve needs the %q output target", config.TargetFS)
		}
		return newPreviewServer(cfg, s.site.Registry, s.logger).Start(ctx)
	}

	<-ctx.Done()
	s.logger.Info(ctx, "stopping file watcher")
	return nil
}
