package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whisper_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whisper_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	WhispersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whisper_whispers_created_total",
			Help: "Total whispers created",
		},
		[]string{"once"}, // "true" or "false"
	)

	Reveals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whisper_reveals_total",
			Help: "Reveal decisions by outcome",
		},
		[]string{"outcome"},
	)

	WhispersConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whisper_consumed_total",
			Help: "One-time whispers destroyed by their viewer",
		},
	)

	// Store metrics
	StoreRecoveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whisper_store_recoveries_total",
			Help: "Times the data file was backed up and reset",
		},
	)

	StorePersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whisper_store_persist_failures_total",
			Help: "Failed writes of the data file",
		},
	)
)
