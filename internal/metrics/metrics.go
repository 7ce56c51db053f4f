// Package metrics defines the prometheus collectors shared by the binaries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInFlight prometheus.Gauge

	URLsAllocated  prometheus.Counter
	CodeCollisions prometheus.Counter
	Redirects      *prometheus.CounterVec

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	CacheErrors *prometheus.CounterVec

	ClickIncrementFailures prometheus.Counter
	ClickEvents            *prometheus.CounterVec

	RecordsSwept prometheus.Counter
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shortener_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shortener_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"route", "method"}),
		HTTPInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "shortener_http_in_flight_requests",
			Help: "Requests currently being served.",
		}),
		URLsAllocated: f.NewCounter(prometheus.CounterOpts{
			Name: "shortener_urls_allocated_total",
			Help: "Short links created.",
		}),
		CodeCollisions: f.NewCounter(prometheus.CounterOpts{
			Name: "shortener_code_collisions_total",
			Help: "Inserts rejected because the generated code was taken meanwhile.",
		}),
		Redirects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shortener_redirects_total",
			Help: "Resolve outcomes: ok, not_found, expired, error.",
		}, []string{"outcome"}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "shortener_cache_hits_total",
			Help: "Redirect cache hits.",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "shortener_cache_misses_total",
			Help: "Redirect cache misses.",
		}),
		CacheErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shortener_cache_errors_total",
			Help: "Cache backend failures by operation.",
		}, []string{"op"}),
		ClickIncrementFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "shortener_click_increment_failures_total",
			Help: "Click counter updates that failed.",
		}),
		ClickEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shortener_click_events_total",
			Help: "Click events by stage: published, dropped, failed, persisted.",
		}, []string{"stage"}),
		RecordsSwept: f.NewCounter(prometheus.CounterOpts{
			Name: "shortener_records_swept_total",
			Help: "Expired records purged by the sweeper.",
		}),
	}
}

// NewNop returns collectors bound to a private registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
