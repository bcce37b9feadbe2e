// Package preview serves a build's output directory over HTTP the way a
// static host would, plus health and metrics endpoints.
package preview

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conneroisu/pagewright/internal/logging"
	"github.com/conneroisu/pagewright/internal/version"
)

// Config configures a Server.
type Config struct {
	Host string
	Port int
	// Dir is the output directory to serve.
	Dir string
	// Base is the site base path; requests outside it are not found.
	Base string
}

// Server is the preview HTTP server.
type Server struct {
	config   Config
	registry *prometheus.Registry
	logger   logging.Logger

	serverMutex sync.RWMutex
	httpServer  *http.Server
	listener    net.Listener
}

// New creates a preview server. Metrics registered on reg are exposed at
// /metrics.
func New(cfg Config, reg *prometheus.Registry, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Base == "" {
		cfg.Base = "/"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Server{
		config:   cfg,
		registry: reg,
		logger:   logger.WithComponent("preview"),
	}
}

// Handler returns the router of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	files := http.HandlerFunc(s.handleFile)
	if s.config.Base == "/" {
		r.Handle("/*", files)
	} else {
		base := strings.TrimSuffix(s.config.Base, "/")
		r.Get(base, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, s.config.Base, http.StatusMovedPermanently)
		})
		r.Handle(base+"/*", http.StripPrefix(base, files))
	}
	return r
}

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.serverMutex.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "preview server listening", "url", "http://"+ln.Addr().String()+s.config.Base, "dir", s.config.Dir)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down preview server: %w", err)
	}
	return <-errCh
}

// Addr returns the listening address once Start has bound it.
func (s *Server) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","version":%q}`, version.GetShortVersion())
}

// handleFile resolves page paths the way the build names files: "/about"
// is about.html and "/blog/" is blog/index.html.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name, ok := s.resolve(r.URL.Path)
	if !ok {
		s.notFound(w, r)
		return
	}
	http.ServeFile(w, r, name)
}

func (s *Server) resolve(urlPath string) (string, bool) {
	clean := path.Clean("/" + urlPath)
	rel := filepath.FromSlash(strings.TrimPrefix(clean, "/"))

	candidates := []string{rel}
	switch {
	case strings.HasSuffix(urlPath, "/"):
		candidates = []string{filepath.Join(rel, "index.html")}
	case path.Ext(clean) == "":
		candidates = append(candidates, rel+".html", filepath.Join(rel, "index.html"))
	}

	for _, c := range candidates {
		full := filepath.Join(s.config.Dir, c)
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			return full, true
		}
	}
	return "", false
}

// notFound serves the 404 page of the build when there is one.
func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	page := filepath.Join(s.config.Dir, "404.html")
	data, err := os.ReadFile(page)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write(data)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
