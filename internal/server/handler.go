// Package server is CortexDB's HTTP surface: route registration, the
// middleware chain, and the translation between wire shapes and the catalog,
// ingest, search, and auth services.
package server

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cortexdb/cortexdb/internal/ingest"
	"github.com/cortexdb/cortexdb/internal/observability"
	"github.com/cortexdb/cortexdb/internal/schema"
	"github.com/cortexdb/cortexdb/internal/search"
	"github.com/cortexdb/cortexdb/internal/store/minio"
	"github.com/cortexdb/cortexdb/internal/value"
	"github.com/cortexdb/cortexdb/pkg/models"
)

// DatabaseService manages the logical database registry.
type DatabaseService interface {
	Create(ctx context.Context, req models.DatabaseCreate) (*models.Database, error)
	Get(ctx context.Context, name string) (*models.Database, error)
	List(ctx context.Context) ([]models.Database, error)
	Delete(ctx context.Context, name string) error
}

// CollectionService provisions and resolves collections.
type CollectionService interface {
	Create(ctx context.Context, sch *schema.Schema) (*models.CreationResult, error)
	Get(ctx context.Context, name string) (*schema.Schema, error)
	List(ctx context.Context, database string) ([]models.CollectionInfo, error)
	Delete(ctx context.Context, name string) error
}

// ProviderService manages registered embedding providers.
type ProviderService interface {
	Create(ctx context.Context, req models.EmbeddingProviderCreate) (*models.EmbeddingProvider, error)
	List(ctx context.Context) ([]models.EmbeddingProvider, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RecordService is the ingestion pipeline surface the record routes call.
type RecordService interface {
	Create(ctx context.Context, collection string, fields map[string]value.Value, files map[string]ingest.Upload) (*ingest.Result, error)
	Update(ctx context.Context, collection string, recordID uuid.UUID, fields map[string]value.Value, files map[string]ingest.Upload) (*ingest.UpdateResult, error)
	Get(ctx context.Context, collection string, recordID uuid.UUID) (*ingest.Record, error)
	Delete(ctx context.Context, collection string, recordID uuid.UUID) error
	Vectors(ctx context.Context, collection string, recordID uuid.UUID) ([]ingest.VectorChunk, error)
	Query(ctx context.Context, collection string, filters map[string]any, limit, offset int) (*ingest.QueryPage, error)
}

// SearchService serves hybrid searches.
type SearchService interface {
	Search(ctx context.Context, collection, query string, filters map[string]any, limit int) (*search.Response, error)
}

// KeyService manages API keys.
type KeyService interface {
	CreateKey(ctx context.Context, req models.APIKeyCreate, createdBy *uuid.UUID) (*models.APIKeyCreated, error)
	GetKey(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	ListKeys(ctx context.Context) ([]models.APIKey, error)
	UpdateKey(ctx context.Context, id uuid.UUID, upd models.APIKeyUpdate) (*models.APIKey, error)
	DeleteKey(ctx context.Context, id uuid.UUID, caller *models.APIKey) error
}

// Authenticator resolves a plaintext API key, satisfied by auth.Service.
type Authenticator interface {
	Authenticate(ctx context.Context, rawKey string) (*models.APIKey, error)
}

// FileStore is the object-store surface behind the /files routes.
type FileStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	Upload(ctx context.Context, bucket, path string, r io.Reader, size int64, contentType string) error
	Download(ctx context.Context, bucket, path string) (*minio.Object, error)
	PresignedGetURL(ctx context.Context, bucket, path string) (string, error)
}

// HealthChecks groups the per-store probes behind the health endpoints. A
// nil probe reports as unhealthy rather than silently passing.
type HealthChecks struct {
	Postgres func(ctx context.Context) error
	Qdrant   func(ctx context.Context) error
	Minio    func(ctx context.Context) error
}

// Services bundles everything the handler serves.
type Services struct {
	Databases   DatabaseService
	Collections CollectionService
	Providers   ProviderService
	Records     RecordService
	Search      SearchService
	Keys        KeyService
	Auth        Authenticator
	Files       FileStore
	Health      HealthChecks
	Logger      *observability.Logger
	Metrics     *observability.Metrics
	Tracer      *observability.Tracer
}

// Handler routes CortexDB's HTTP API.
type Handler struct {
	databases   DatabaseService
	collections CollectionService
	providers   ProviderService
	records     RecordService
	search      SearchService
	keys        KeyService
	auth        Authenticator
	files       FileStore
	health      HealthChecks
	logger      *observability.Logger
	metrics     *observability.Metrics
	tracer      *observability.Tracer

	mux *http.ServeMux
}

// NewHandler wires the routes. A nil Logger discards log output and a nil
// Tracer records no spans; Metrics may stay nil.
func NewHandler(svc Services) *Handler {
	logger := svc.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{Output: io.Discard})
	}
	tracer := svc.Tracer
	if tracer == nil {
		tracer, _ = observability.NewTracer(observability.TraceConfig{ServiceName: "cortexdb"})
	}
	h := &Handler{
		databases:   svc.Databases,
		collections: svc.Collections,
		providers:   svc.Providers,
		records:     svc.Records,
		search:      svc.Search,
		keys:        svc.Keys,
		auth:        svc.Auth,
		files:       svc.Files,
		health:      svc.Health,
		logger:      logger,
		metrics:     svc.Metrics,
		tracer:      tracer,
		mux:         http.NewServeMux(),
	}
	h.setupRoutes()
	return h
}

func (h *Handler) setupRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /health/all", h.handleHealthAll)
	h.mux.HandleFunc("GET /health/{store}", h.handleHealthStore)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	h.mux.HandleFunc("POST /databases", h.handleDatabaseCreate)
	h.mux.HandleFunc("GET /databases", h.handleDatabaseList)
	h.mux.HandleFunc("GET /databases/{name}", h.handleDatabaseGet)
	h.mux.HandleFunc("DELETE /databases/{name}", h.handleDatabaseDelete)

	h.mux.HandleFunc("POST /collections", h.handleCollectionCreate)
	h.mux.HandleFunc("GET /collections", h.handleCollectionList)
	h.mux.HandleFunc("GET /collections/{name}", h.handleCollectionGet)
	h.mux.HandleFunc("DELETE /collections/{name}", h.handleCollectionDelete)
	h.mux.HandleFunc("POST /databases/{db}/collections", h.handleCollectionCreate)
	h.mux.HandleFunc("GET /databases/{db}/collections", h.handleCollectionList)
	h.mux.HandleFunc("GET /databases/{db}/collections/{name}", h.handleCollectionGet)
	h.mux.HandleFunc("DELETE /databases/{db}/collections/{name}", h.handleCollectionDelete)

	h.mux.HandleFunc("POST /collections/{collection}/records", h.handleRecordCreate)
	h.mux.HandleFunc("GET /collections/{collection}/records/{id}", h.handleRecordGet)
	h.mux.HandleFunc("PATCH /collections/{collection}/records/{id}", h.handleRecordUpdate)
	h.mux.HandleFunc("DELETE /collections/{collection}/records/{id}", h.handleRecordDelete)
	h.mux.HandleFunc("GET /collections/{collection}/records/{id}/vectors", h.handleRecordVectors)
	h.mux.HandleFunc("POST /collections/{collection}/search", h.handleSearch)
	h.mux.HandleFunc("POST /collections/{collection}/query", h.handleQuery)

	h.mux.HandleFunc("POST /files/upload", h.handleFileUpload)
	h.mux.HandleFunc("GET /files/{collection}/{record_id}/{filename}", h.handleFileDownload)

	h.mux.HandleFunc("POST /api-keys", h.handleKeyCreate)
	h.mux.HandleFunc("GET /api-keys", h.handleKeyList)
	h.mux.HandleFunc("GET /api-keys/{id}", h.handleKeyGet)
	h.mux.HandleFunc("PATCH /api-keys/{id}", h.handleKeyUpdate)
	h.mux.HandleFunc("DELETE /api-keys/{id}", h.handleKeyDelete)

	h.mux.HandleFunc("POST /providers/embeddings", h.handleProviderCreate)
	h.mux.HandleFunc("GET /providers/embeddings", h.handleProviderList)
	h.mux.HandleFunc("DELETE /providers/embeddings/{id}", h.handleProviderDelete)
}

// Mount returns the handler behind the full middleware chain:
// request id, logging, metrics, then authentication.
func (h *Handler) Mount() http.Handler {
	var handler http.Handler = h.mux
	handler = AuthMiddleware(h.auth, h.logger)(handler)
	handler = MetricsMiddleware(h.metrics, h.mux)(handler)
	handler = LoggingMiddleware(h.logger, h.tracer)(handler)
	handler = RequestIDMiddleware()(handler)
	return handler
}
