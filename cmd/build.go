package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/pagewright/internal/build"
	"github.com/conneroisu/pagewright/internal/config"
	"github.com/conneroisu/pagewright/internal/types"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Render every route into the output target",
	Long: `Render every route declared in the routes file, then write the pages,
their client modules and the module manifest to the output target.

Examples:
  pagewright build                       # Build with the configured settings
  pagewright build --max-workers 8       # Render on eight workers
  pagewright build --max-workers 0       # Render sequentially in process
  pagewright build --skip '/drafts/*'    # Leave matching pages out
  pagewright build --debug-base /_debug/ # Also render the debug view
  pagewright build --no-write            # Render without writing output`,
	PreRunE: bindBuildFlags,
	RunE:    runBuild,
}

var (
	buildNoWrite bool
	buildSkip    []string
	buildStrict  bool
)

func init() {
	rootCmd.AddCommand(buildCmd)

	addBuildFlags(buildCmd)
	buildCmd.Flags().BoolVar(&buildNoWrite, "no-write", false, "Render pages without writing them")
	buildCmd.Flags().BoolVar(&buildStrict, "strict", false, "Exit with an error when any page fails")
}

// addBuildFlags registers the flags shared by build and watch.
func addBuildFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int("max-workers", 1, "Concurrent render workers (0 renders sequentially)")
	flags.StringP("output", "o", "dist", "Output directory")
	flags.String("target", config.TargetFS, "Output target (fs, s3)")
	flags.String("base", "/", "Site base path")
	flags.String("debug-base", "", "Base path of the debug view; empty disables it")
	flags.StringSliceVar(&buildSkip, "skip", nil, "Page path patterns to leave out")
}

// bindBuildFlags binds the flags of the running command into viper. Binding
// happens at run time because build and watch share keys.
func bindBuildFlags(cmd *cobra.Command, args []string) error {
	return bindFlags(cmd.Flags(), map[string]string{
		"build.max_workers": "max-workers",
		"output.dir":        "output",
		"output.target":     "target",
		"base":              "base",
		"debug_base":        "debug-base",
	})
}

func buildOptions(cfg *config.Config, write bool) (build.Options, error) {
	skip, err := skipMatcher(buildSkip)
	if err != nil {
		return build.Options{}, err
	}
	return build.Options{
		MaxWorkers: cfg.Build.MaxWorkers,
		Skip:       skip,
		Write:      write,
	}, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	opts, err := buildOptions(cfg, !buildNoWrite)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.build(ctx, opts, buildStrict)
}

func (s *session) build(ctx context.Context, opts build.Options, strict bool) error {
	start := time.Now()
	result, err := s.builder.Build(ctx, opts)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("build interrupted after %d pages", len(result.Pages))
	}

	reportFailures(ctx, s, result)
	fields := []any{
		"pages", len(result.Pages),
		"failures", len(result.Errors),
		"duration", time.Since(start),
	}
	if opts.Write {
		fields = append(fields, "output", s.builder.Writer().Location())
	}
	s.logger.Info(ctx, "build completed", fields...)

	if strict && len(result.Errors) > 0 {
		return fmt.Errorf("%d pages failed", len(result.Errors))
	}
	return nil
}

func reportFailures(ctx context.Context, s *session, result *types.BuildResult) {
	for _, failure := range result.Errors {
		s.logger.Warn(ctx, nil, "page failed", "route", failure.Path, "reason", failure.Reason)
	}
}
