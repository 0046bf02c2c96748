package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalog",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "provider_requests_total",
		Help:      "Total requests to upstream catalogs by provider name and result status.",
	}, []string{"provider", "status"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalog",
		Name:      "provider_request_duration_seconds",
		Help:      "Upstream catalog request duration in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"provider"})

	ProviderAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "catalog",
		Name:      "provider_available",
		Help:      "Whether a provider answered recently (1) or failed repeatedly (0).",
	}, []string{"provider"})

	SearchOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "search_outcomes_total",
		Help:      "Search calls by outcome (ok, cancelled, error).",
	}, []string{"outcome"})

	FallbackInvocationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "fallback_invocations_total",
		Help:      "Searches that fell back to the public catalog.",
	})

	MalformedItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "malformed_items_total",
		Help:      "Upstream items dropped during normalization.",
	}, []string{"source"})

	StaleCommitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "stale_commits_total",
		Help:      "Responses discarded because their request was superseded.",
	}, []string{"stream"})

	GenreCatalogLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog",
		Name:      "genre_catalog_loads_total",
		Help:      "Genre catalog loads by outcome (store, upstream, error).",
	}, []string{"outcome"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "catalog",
		Name:      "active_sessions",
		Help:      "Live search sessions held by websocket clients.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		ProviderAvailable,
		SearchOutcomesTotal,
		FallbackInvocationsTotal,
		MalformedItemsTotal,
		StaleCommitsTotal,
		GenreCatalogLoadsTotal,
		ActiveSessions,
	)
}
