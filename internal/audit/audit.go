// Package audit turns cache activity into an audit trail and metrics.
package audit

import (
	"io"

	"eng-metrics/internal/cache"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// LogListener writes one structured line per cache event.
type LogListener struct {
	logger zerolog.Logger
}

// NewLogListener creates a LogListener writing JSON lines to w.
func NewLogListener(w io.Writer) *LogListener {
	return &LogListener{
		logger: zerolog.New(w).With().Str("component", "cache-audit").Logger(),
	}
}

func (l *LogListener) CacheActivity(e cache.Event) {
	l.logger.Info().
		Time("at", e.At).
		Str("cache", e.Cache).
		Str("op", string(e.Op)).
		Int("key_count", e.KeyCount).
		Str("info", e.Info).
		Msg("cache activity")
}

// PrometheusListener counts cache operations and records result sizes.
type PrometheusListener struct {
	ops   *prometheus.CounterVec
	empty *prometheus.CounterVec
	keys  *prometheus.HistogramVec
}

// NewPrometheusListener registers the cache metrics with reg.
func NewPrometheusListener(reg prometheus.Registerer) *PrometheusListener {
	factory := promauto.With(reg)
	return &PrometheusListener{
		ops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engmetrics_cache_operations_total",
				Help: "Total number of cache operations",
			},
			[]string{"cache", "op"},
		),
		empty: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engmetrics_cache_empty_loads_total",
				Help: "Total number of cache loads that returned no records",
			},
			[]string{"cache"},
		),
		keys: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engmetrics_cache_key_count",
				Help:    "Number of records touched per cache operation",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500},
			},
			[]string{"cache", "op"},
		),
	}
}

func (p *PrometheusListener) CacheActivity(e cache.Event) {
	op := string(e.Op)
	p.ops.WithLabelValues(e.Cache, op).Inc()
	p.keys.WithLabelValues(e.Cache, op).Observe(float64(e.KeyCount))
	if e.Op == cache.OpLoad && e.KeyCount == 0 {
		p.empty.WithLabelValues(e.Cache).Inc()
	}
}

// Multi fans one event out to several listeners in order.
type Multi []cache.Listener

func (m Multi) CacheActivity(e cache.Event) {
	for _, l := range m {
		if l != nil {
			l.CacheActivity(e)
		}
	}
}
