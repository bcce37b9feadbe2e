package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors shared by every StateCache of a
// build context. A nil *Metrics records nothing.
type Metrics struct {
	hits   *prometheus.CounterVec
	misses *prometheus.CounterVec
	loads  *prometheus.CounterVec
	errors *prometheus.CounterVec
	joins  *prometheus.CounterVec
}

// NewMetrics registers the cache collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := []string{"cache"}

	return &Metrics{
		hits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagewright",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Lookups served from an unexpired cache entry",
		}, labels),
		misses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagewright",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Lookups that found no usable entry",
		}, labels),
		loads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagewright",
			Subsystem: "cache",
			Name:      "loads_total",
			Help:      "Loader invocations",
		}, labels),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagewright",
			Subsystem: "cache",
			Name:      "load_errors_total",
			Help:      "Loader invocations that returned an error",
		}, labels),
		joins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagewright",
			Subsystem: "cache",
			Name:      "joined_loads_total",
			Help:      "Callers that joined a load already in flight",
		}, labels),
	}
}

func (m *Metrics) hit(name string) {
	if m != nil {
		m.hits.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) miss(name string) {
	if m != nil {
		m.misses.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) load(name string) {
	if m != nil {
		m.loads.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) loadError(name string) {
	if m != nil {
		m.errors.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) join(name string) {
	if m != nil {
		m.joins.WithLabelValues(name).Inc()
	}
}
