package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - HTTP API request latency and status codes
//   - Ingestion throughput per collection and operation
//   - Embedding provider call performance and token usage
//   - Latency of the relational, vector, and object backends
//   - Search performance and result counts
//   - Error rates categorized by type and component
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.RecordIngest("docs", "create", "success", time.Since(start).Seconds())
//	metrics.RecordEmbedding("openai", "text-embedding-3-small", "success", 0.21, 48)
type Metrics struct {
	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// IngestCounter counts record writes by collection and operation.
	// Labels: collection, operation (create|update|delete), status (success|error)
	IngestCounter *prometheus.CounterVec

	// IngestDuration measures end-to-end ingestion latency in seconds.
	// Labels: collection, operation
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s
	IngestDuration *prometheus.HistogramVec

	// VectorsUpserted counts vector points written per collection.
	// Labels: collection
	VectorsUpserted *prometheus.CounterVec

	// CompensationCounter counts blob rollbacks after failed ingests.
	// Labels: collection
	CompensationCounter *prometheus.CounterVec

	// EmbeddingRequestDuration measures embedding API call latency in seconds.
	// Labels: provider (openai|gemini), model
	// Buckets: 0.05s, 0.1s, 0.25s, 0.5s, 1s, 2s, 5s, 10s, 30s
	EmbeddingRequestDuration *prometheus.HistogramVec

	// EmbeddingRequestCounter counts embedding requests.
	// Labels: provider, model, status (success|error)
	EmbeddingRequestCounter *prometheus.CounterVec

	// EmbeddingTokensUsed tracks token consumption reported by providers.
	// Labels: provider, model
	EmbeddingTokensUsed *prometheus.CounterVec

	// SearchDuration measures hybrid search latency in seconds.
	// Labels: collection
	// Buckets: 0.01s, 0.05s, 0.1s, 0.25s, 0.5s, 1s, 2s, 5s
	SearchDuration *prometheus.HistogramVec

	// SearchCounter counts searches by collection and status.
	// Labels: collection, status (success|error)
	SearchCounter *prometheus.CounterVec

	// StoreOpDuration measures backend call latency.
	// Labels: store (postgres|qdrant|minio), operation
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	StoreOpDuration *prometheus.HistogramVec

	// StoreOpCounter counts backend calls.
	// Labels: store, operation, status (success|error)
	StoreOpCounter *prometheus.CounterVec

	// AuthCounter counts authentication outcomes.
	// Labels: outcome (ok|missing|invalid|expired|disabled|forbidden)
	AuthCounter *prometheus.CounterVec

	// CacheCounter counts lookups against in-process caches.
	// Labels: cache (api_keys|embedders), outcome (hit|miss)
	CacheCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by type and component.
	// Labels: component (ingest|search|auth|catalog|store), error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default registry
// and will be available at the /metrics endpoint when using prometheus HTTP handler.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cortexdb_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortexdb_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		IngestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortexdb_ingest_operations_total",
				Help: "Total number of record writes by collection, operation, and status",
			},
			[]string{"collection", "operation", "status"},
		),

		IngestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cortexdb_ingest_duration_seconds",
				Help:    "End-to-end duration of record writes in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"collection", "operation"},
		),

		VectorsUpserted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortexdb_vectors_upserted_total",
				Help: "Total number of vector points upserted by collection",
			},
			[]string{"collection"},
		),

		CompensationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortexdb_blob_compensations_total",
				Help: "Total number of blob rollbacks after failed ingests",
			},
			[]string{"collection"},
		),

		EmbeddingRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cortexdb_embedding_request_duration_seconds",
				Help:    "Duration of embedding API requests in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider", "model"},
		),

		EmbeddingRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortexdb_embedding_requests_total",
				Help: "Total number of embedding requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		EmbeddingTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortexdb_embedding_tokens_total",
				Help: "Total number of tokens billed by provider and model",
			},
			[]string{"provider", "model"},
		),

		SearchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cortexdb_search_duration_seconds",
				Help:    "Duration of hybrid searches in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"collection"},
		),

		SearchCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortexdb_searches_total",
				Help: "Total number of searches by collection and status",
			},
			[]string{"collection", "status"},
		),

		StoreOpDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cortexdb_store_operation_duration_seconds",
				Help:    "Duration of backend store calls in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"store", "operation"},
		),

		StoreOpCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortexdb_store_operations_total",
				Help: "Total number of backend store calls",
			},
			[]string{"store", "operation", "status"},
		),

		AuthCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortexdb_auth_attempts_total",
				Help: "Total number of authentication attempts by outcome",
			},
			[]string{"outcome"},
		),

		CacheCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortexdb_cache_lookups_total",
				Help: "Total number of in-process cache lookups by cache and outcome",
			},
			[]string{"cache", "outcome"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortexdb_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// RecordHTTPRequest records metrics for an HTTP request.
//
// Example:
//
//	start := time.Now()
//	// ... handle HTTP request ...
//	metrics.RecordHTTPRequest("POST", "/collections/{collection}/records", "201", time.Since(start).Seconds())
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordIngest records metrics for one record write.
//
// Example:
//
//	metrics.RecordIngest("docs", "create", "success", time.Since(start).Seconds())
func (m *Metrics) RecordIngest(collection, operation, status string, durationSeconds float64) {
	m.IngestCounter.WithLabelValues(collection, operation, status).Inc()
	m.IngestDuration.WithLabelValues(collection, operation).Observe(durationSeconds)
}

// RecordVectorsUpserted adds to the per-collection vector point counter.
func (m *Metrics) RecordVectorsUpserted(collection string, count int) {
	if count > 0 {
		m.VectorsUpserted.WithLabelValues(collection).Add(float64(count))
	}
}

// RecordCompensation counts a blob rollback after a failed ingest.
func (m *Metrics) RecordCompensation(collection string) {
	m.CompensationCounter.WithLabelValues(collection).Inc()
}

// RecordEmbedding records metrics for an embedding API request.
//
// Example:
//
//	start := time.Now()
//	// ... call provider ...
//	metrics.RecordEmbedding("openai", "text-embedding-3-small", "success", time.Since(start).Seconds(), 48)
func (m *Metrics) RecordEmbedding(provider, model, status string, durationSeconds float64, tokens int) {
	m.EmbeddingRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.EmbeddingRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if tokens > 0 {
		m.EmbeddingTokensUsed.WithLabelValues(provider, model).Add(float64(tokens))
	}
}

// RecordSearch records metrics for one hybrid search.
//
// Example:
//
//	metrics.RecordSearch("docs", "success", time.Since(start).Seconds())
func (m *Metrics) RecordSearch(collection, status string, durationSeconds float64) {
	m.SearchCounter.WithLabelValues(collection, status).Inc()
	m.SearchDuration.WithLabelValues(collection).Observe(durationSeconds)
}

// RecordStoreOp records metrics for a backend store call.
//
// Example:
//
//	start := time.Now()
//	// ... execute query ...
//	metrics.RecordStoreOp("postgres", "insert_record", "success", time.Since(start).Seconds())
func (m *Metrics) RecordStoreOp(store, operation, status string, durationSeconds float64) {
	m.StoreOpCounter.WithLabelValues(store, operation, status).Inc()
	m.StoreOpDuration.WithLabelValues(store, operation).Observe(durationSeconds)
}

// RecordAuth increments the auth outcome counter.
//
// Example:
//
//	metrics.RecordAuth("expired")
func (m *Metrics) RecordAuth(outcome string) {
	m.AuthCounter.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup increments the cache lookup counter.
//
// Example:
//
//	metrics.RecordCacheLookup("api_keys", true)
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheCounter.WithLabelValues(cache, outcome).Inc()
}

// RecordError increments the error counter for a given component and error type.
//
// Example:
//
//	metrics.RecordError("ingest", "upstream_qdrant")
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}
