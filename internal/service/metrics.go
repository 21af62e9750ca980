package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the console data layer.
// Pass to components that need to record metrics. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Subscriptions         *prometheus.CounterVec
	CacheHits             *prometheus.CounterVec
	Fetches               *prometheus.CounterVec
	InvalidationRefetches prometheus.Counter
	Evictions             *prometheus.CounterVec
	CacheEntries          prometheus.Gauge
	Mutations             *prometheus.CounterVec
	APIRequestDuration    *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Subscriptions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "certdesk_admin",
				Name:      "query_subscriptions_total",
				Help:      "Total query subscriptions opened",
			},
			[]string{"endpoint"},
		),
		CacheHits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "certdesk_admin",
				Name:      "query_cache_hits_total",
				Help:      "Subscriptions served from an existing cache entry without a new fetch",
			},
			[]string{"endpoint"},
		),
		Fetches: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "certdesk_admin",
				Name:      "query_fetches_total",
				Help:      "Completed query fetches",
			},
			[]string{"endpoint", "result"}, // result=success/error
		),
		InvalidationRefetches: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "certdesk_admin",
				Name:      "query_invalidation_refetches_total",
				Help:      "Refetches triggered by tag invalidation",
			},
		),
		Evictions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "certdesk_admin",
				Name:      "query_evictions_total",
				Help:      "Cache entries removed",
			},
			[]string{"reason"}, // reason=gc/invalidated/reset
		),
		CacheEntries: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "certdesk_admin",
				Name:      "query_cache_entries",
				Help:      "Number of live cache entries",
			},
		),
		Mutations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "certdesk_admin",
				Name:      "mutations_total",
				Help:      "Completed mutations",
			},
			[]string{"endpoint", "result"},
		),
		APIRequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "certdesk_admin",
				Name:      "api_request_duration_seconds",
				Help:      "Admin API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint", "outcome"},
		),
	}
}

func (m *Metrics) subscribed(endpoint string, hit bool) {
	if m == nil {
		return
	}
	m.Subscriptions.WithLabelValues(endpoint).Inc()
	if hit {
		m.CacheHits.WithLabelValues(endpoint).Inc()
	}
}

func (m *Metrics) fetched(endpoint string, err error) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(endpoint, resultLabel(err)).Inc()
}

func (m *Metrics) refetchedOnInvalidation() {
	if m == nil {
		return
	}
	m.InvalidationRefetches.Inc()
}

func (m *Metrics) evicted(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Evictions.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) entries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

func (m *Metrics) mutated(endpoint string, err error) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(endpoint, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
