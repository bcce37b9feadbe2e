package build

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Build outcomes.
const (
	BuildCompleted = "completed"
	BuildAborted   = "aborted"
	BuildFailed    = "failed"
)

// Page outcomes.
const (
	PageRendered = "rendered"
	PageSkipped  = "skipped"
	PageFailed   = "failed"
)

// Metrics holds the build collectors. A nil *Metrics records nothing.
type Metrics struct {
	builds         *prometheus.CounterVec
	pages          *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
	buildDuration  prometheus.Histogram
	queued         prometheus.Gauge
}

// NewMetrics registers the build collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		builds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagewright",
			Subsystem: "build",
			Name:      "builds_total",
			Help:      "Builds by outcome",
		}, []string{"status"}),
		pages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagewright",
			Subsystem: "build",
			Name:      "pages_total",
			Help:      "Page render jobs by outcome",
		}, []string{"status"}),
		renderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pagewright",
			Subsystem: "build",
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering one page, by profile event type",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"type"}),
		buildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pagewright",
			Subsystem: "build",
			Name:      "duration_seconds",
			Help:      "Wall time of a build from enumeration to the last write",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		queued: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pagewright",
			Subsystem: "build",
			Name:      "pending_pages",
			Help:      "Pages submitted and not yet settled",
		}),
	}
}

func (m *Metrics) build(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(status).Inc()
	m.buildDuration.Observe(d.Seconds())
}

func (m *Metrics) page(status string) {
	if m != nil {
		m.pages.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) profile(typ string, d time.Duration) {
	if m != nil {
		m.renderDuration.WithLabelValues(typ).Observe(d.Seconds())
	}
}

func (m *Metrics) pending(n int) {
	if m != nil {
		m.queued.Set(float64(n))
	}
}
