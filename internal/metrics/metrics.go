// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

// Package metrics holds Everly's Prometheus collectors.
//
// Collectors are registered on the default registry through promauto and
// exposed by the API router at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "everly_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "everly_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "everly_api_active_requests",
			Help: "Number of API requests currently being served",
		},
	)

	// Event bus
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "everly_events_published_total",
			Help: "Events dispatched through the event bus",
		},
		[]string{"event_type"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "everly_events_dropped_total",
			Help: "Events aborted by bus middleware before dispatch",
		},
		[]string{"event_type"},
	)

	EventHandlerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "everly_event_handler_failures_total",
			Help: "Event handler invocations that returned an error or panicked",
		},
		[]string{"event_type"},
	)

	EventsForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "everly_events_forwarded_total",
			Help: "Events forwarded to the message transport",
		},
		[]string{"event_type", "result"},
	)

	// Module lifecycle
	ModuleInitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "everly_module_init_duration_seconds",
			Help:    "Time spent in module initialization",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"module"},
	)

	ModulesInitialized = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "everly_modules_initialized",
			Help: "Number of modules currently initialized",
		},
	)

	ModuleHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "everly_module_healthy",
			Help: "1 if the module reported healthy on the last health check",
		},
		[]string{"module"},
	)

	// Document store
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "everly_store_operations_total",
			Help: "Document store operations",
		},
		[]string{"operation", "collection", "result"},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "everly_store_operation_duration_seconds",
			Help:    "Document store operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "collection"},
	)

	StoreConflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "everly_store_conflict_retries_total",
			Help: "Read-write transactions rerun after a commit conflict",
		},
	)

	// Cache
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "everly_cache_hits_total",
			Help: "Shared cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "everly_cache_misses_total",
			Help: "Shared cache misses",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "everly_cache_entries",
			Help: "Entries currently held in the shared cache",
		},
	)

	// Uploads
	UploadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "everly_upload_bytes_total",
			Help: "Bytes written by media and profile uploads",
		},
		[]string{"kind"},
	)

	UploadRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "everly_upload_rejected_total",
			Help: "Uploads rejected by type or size checks",
		},
		[]string{"kind", "reason"},
	)

	// Auth
	GoogleVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "everly_google_verifications_total",
			Help: "Google ID token verifications by result",
		},
		[]string{"result"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "everly_websocket_connections",
			Help: "Active event stream websocket connections",
		},
	)
)

// RecordAPIRequest records one served request. route is the chi route
// pattern, not the raw path, to keep label cardinality bounded.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest moves the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordStoreOperation records a store call outcome.
func RecordStoreOperation(operation, collection string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	StoreOperations.WithLabelValues(operation, collection, result).Inc()
	StoreOperationDuration.WithLabelValues(operation, collection).Observe(duration.Seconds())
}

// RecordStoreConflictRetry counts one rerun of a conflicting transaction.
func RecordStoreConflictRetry() {
	StoreConflictRetries.Inc()
}

// RecordModuleInit records how long a module took to initialize.
func RecordModuleInit(module string, duration time.Duration) {
	ModuleInitDuration.WithLabelValues(module).Observe(duration.Seconds())
}

// SetModuleHealth exports a module's last health result.
func SetModuleHealth(module string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	ModuleHealthy.WithLabelValues(module).Set(v)
}

// RecordForward records the outcome of forwarding one event.
func RecordForward(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	EventsForwarded.WithLabelValues(eventType, result).Inc()
}
