// Package metrics provides Prometheus metrics for DocuMind
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "documind_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "documind_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Ingestion metrics
	DocumentsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "documind_documents_ingested_total",
			Help: "Total number of ingested documents by outcome",
		},
		[]string{"status"},
	)

	ChunksIndexedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "documind_chunks_indexed_total",
			Help: "Total number of chunks written to the vector index",
		},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "documind_ingest_duration_seconds",
			Help:    "Time spent extracting, chunking and embedding one document",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Search metrics
	SearchQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "documind_search_queries_total",
			Help: "Total number of search queries by outcome",
		},
		[]string{"status"},
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "documind_search_duration_seconds",
			Help:    "Duration of semantic searches in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Chat metrics
	ChatTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "documind_chat_turns_total",
			Help: "Total number of chat turns by responder",
		},
		[]string{"responder", "status"},
	)

	// Collection gauges
	DocumentsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "documind_documents",
			Help: "Number of documents in the collection",
		},
	)

	ActiveWebsockets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "documind_websocket_connections",
			Help: "Number of open chat websocket connections",
		},
	)
)
