package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/conneroisu/pagewright/internal/config"
	"github.com/conneroisu/pagewright/internal/logging"
	"github.com/conneroisu/pagewright/internal/preview"
)

var previewCmd = &cobra.Command{
	Use:     "preview",
	Aliases: []string{"p"},
	Short:   "Serve the output directory",
	Long: `Serve a finished build from the output directory the way a static host
would: "/about" resolves to about.html, "/blog/" to blog/index.html, and
unknown paths get 404.html when the build has one.

Examples:
  pagewright preview                  # Serve on the configured host and port
  pagewright preview --port 8080      # Serve on port 8080
  pagewright preview --output public  # Serve another directory`,
	PreRunE: bindPreviewFlags,
	RunE:    runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)

	addPreviewFlags(previewCmd)
	previewCmd.Flags().StringP("output", "o", "dist", "Output directory")
	previewCmd.Flags().String("base", "/", "Site base path")
}

func addPreviewFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "localhost", "Host to bind to")
	cmd.Flags().IntP("port", "p", 4173, "Port to serve on")
}

func bindPreviewFlags(cmd *cobra.Command, args []string) error {
	return bindFlags(cmd.Flags(), map[string]string{
		"preview.host": "host",
		"preview.port": "port",
		"output.dir":   "output",
		"base":         "base",
	})
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.ResolvePath(cfg.Output.Dir)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("no build output in %s; run pagewright build first", dir)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	return newPreviewServer(cfg, reg, newLogger(cfg)).Start(ctx)
}

// newPreviewServer serves the filesystem output of cfg and exposes reg,
// extended with the Go runtime and process collectors, at /metrics.
func newPreviewServer(cfg *config.Config, reg *prometheus.Registry, logger logging.Logger) *preview.Server {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return preview.New(preview.Config{
		Host: cfg.Preview.Host,
		Port: cfg.Preview.Port,
		Dir:  cfg.ResolvePath(cfg.Output.Dir),
		Base: cfg.Base,
	}, reg, logger)
}
