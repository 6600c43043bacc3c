// Package ingest implements the record write path: validating and coercing
// values against the collection schema, uploading blobs, extracting and
// chunking text, embedding, and fanning the results out to the relational,
// vector, and object stores in a fixed order with blob compensation when a
// write fails partway.
package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/cortexdb/cortexdb/internal/embed"
	"github.com/cortexdb/cortexdb/internal/filter"
	"github.com/cortexdb/cortexdb/internal/observability"
	"github.com/cortexdb/cortexdb/internal/schema"
	"github.com/cortexdb/cortexdb/internal/store/qdrant"
	"github.com/cortexdb/cortexdb/internal/value"
)

// Query paging bounds. The HTTP layer passes zero for "unset".
const (
	defaultQueryLimit = 100
	maxQueryLimit     = 500
)

// Store is the relational surface the pipeline writes through.
type Store interface {
	GetCollectionSchema(ctx context.Context, name string) (*schema.Schema, error)
	InsertRecord(ctx context.Context, sch *schema.Schema, id uuid.UUID, row map[string]value.Value, children map[string][]map[string]value.Value) error
	UpdateRecord(ctx context.Context, sch *schema.Schema, id uuid.UUID, row map[string]value.Value, children map[string][]map[string]value.Value) error
	GetRecord(ctx context.Context, sch *schema.Schema, id uuid.UUID) (map[string]value.Value, error)
	GetChildItems(ctx context.Context, sch *schema.Schema, af *schema.ArrayField, id uuid.UUID) ([]map[string]value.Value, error)
	DeleteRecord(ctx context.Context, sch *schema.Schema, id uuid.UUID) error
	QueryRecords(ctx context.Context, sch *schema.Schema, f filter.Filter, limit, offset int) ([]map[string]value.Value, int, error)
}

// VectorStore is the vector surface the pipeline writes through.
type VectorStore interface {
	EnsureCollection(ctx context.Context, spec *schema.VectorSpec, dim int) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	Upsert(ctx context.Context, collection string, points []qdrant.Point) error
	DeleteByRecord(ctx context.Context, collection string, recordID uuid.UUID) error
	DeleteByRecordField(ctx context.Context, collection string, recordID uuid.UUID, field string) error
	ScrollRecord(ctx context.Context, collection string, recordID uuid.UUID) ([]qdrant.StoredPoint, error)
}

// BlobStore is the object-store surface the pipeline writes through.
type BlobStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	Upload(ctx context.Context, bucket, path string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, bucket, path string) error
	PresignedGetURL(ctx context.Context, bucket, path string) (string, error)
}

// EmbedderSource resolves embedding providers by id.
type EmbedderSource interface {
	ForProvider(ctx context.Context, providerID string) (embed.Embedder, error)
}

// TextExtractor turns an uploaded blob into text elements for chunking.
type TextExtractor interface {
	Extract(ctx context.Context, filename, contentType string, data []byte, cfg schema.ExtractConfig) ([]string, error)
}

// Services bundles the pipeline's dependencies for explicit wiring.
type Services struct {
	Store     Store
	Vectors   VectorStore
	Blobs     BlobStore
	Embedders EmbedderSource
	Extractor TextExtractor
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
}

// Pipeline coordinates record writes across the three stores.
type Pipeline struct {
	store     Store
	vectors   VectorStore
	blobs     BlobStore
	embedders EmbedderSource
	extractor TextExtractor
	logger    *observability.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
}

// NewPipeline wires a pipeline from its services. A nil Logger discards log
// output and a nil Tracer records no spans; Metrics may stay nil.
func NewPipeline(svc Services) *Pipeline {
	logger := svc.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{Output: io.Discard})
	}
	tracer := svc.Tracer
	if tracer == nil {
		tracer, _ = observability.NewTracer(observability.TraceConfig{ServiceName: "cortexdb"})
	}
	return &Pipeline{
		store:     svc.Store,
		vectors:   svc.Vectors,
		blobs:     svc.Blobs,
		embedders: svc.Embedders,
		extractor: svc.Extractor,
		logger:    logger,
		metrics:   svc.Metrics,
		tracer:    tracer,
	}
}

// Upload is one file attached to a create or update request.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Result reports what a create produced. Files maps file field names to
// presigned download URLs, falling back to raw object paths when presigning
// fails.
type Result struct {
	ID             uuid.UUID         `json:"id"`
	VectorsCreated int               `json:"vectors_created"`
	Files          map[string]string `json:"files,omitempty"`
}

// UpdateResult reports what an update touched.
type UpdateResult struct {
	ID             uuid.UUID `json:"id"`
	VectorsCreated int       `json:"vectors_created"`
	UpdatedFields  []string  `json:"updated_fields"`
}

// Record is a hydrated record: the relational row with array fields inlined,
// plus presigned URLs for its stored files.
type Record struct {
	ID     uuid.UUID              `json:"id"`
	Record map[string]value.Value `json:"record"`
	Files  map[string]string      `json:"files,omitempty"`
}

// VectorChunk summarises one stored point of a record.
type VectorChunk struct {
	ID         string `json:"id"`
	Field      string `json:"field"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// QueryPage is one page of a relational filter query.
type QueryPage struct {
	Records []map[string]value.Value `json:"results"`
	Total   int                      `json:"total"`
	Limit   int                      `json:"limit"`
	Offset  int                      `json:"offset"`
}

// resolveEmbedder returns the collection's embedder and probed dimension, or
// (nil, 0) for collections without vector fields.
func (p *Pipeline) resolveEmbedder(ctx context.Context, sch *schema.Schema) (embed.Embedder, int, error) {
	if !sch.NeedsVectors() {
		return nil, 0, nil
	}
	embedder, err := p.embedders.ForProvider(ctx, sch.Config.EmbeddingProviderID)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve embedding provider for %s: %w", sch.Name, err)
	}
	dim, err := embedder.Dim(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("probe embedding dimension for %s: %w", sch.Name, err)
	}
	return embedder, dim, nil
}

// upsertPoints ensures the vector collection and writes the points.
func (p *Pipeline) upsertPoints(ctx context.Context, sch *schema.Schema, dim int, points []qdrant.Point) error {
	if err := p.vectors.EnsureCollection(ctx, sch.VectorSpec(), dim); err != nil {
		return err
	}
	start := time.Now()
	err := p.vectors.Upsert(ctx, sch.VectorCollection(), points)
	if p.metrics != nil {
		p.metrics.RecordStoreOp("qdrant", "upsert", opStatus(err), time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("upsert %d vectors into %s: %w", len(points), sch.VectorCollection(), err)
	}
	if p.metrics != nil {
		p.metrics.RecordVectorsUpserted(sch.Name, len(points))
	}
	return nil
}

// removeUploads deletes blobs written before a failed ingest, best effort.
// The triggering error may have cancelled the request context, so cleanup
// runs on its own deadline.
func (p *Pipeline) removeUploads(ctx context.Context, sch *schema.Schema, uploaded map[string]string) {
	if len(uploaded) == 0 {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bucket := sch.Bucket()
	for field, path := range uploaded {
		if err := p.blobs.Remove(cleanupCtx, bucket, path); err != nil {
			p.logger.Warn(ctx, "orphaned blob cleanup failed",
				"bucket", bucket, "path", path, "field", field, "error", err)
		}
	}
	if p.metrics != nil {
		p.metrics.RecordCompensation(sch.Name)
	}
}

// fileURLs presigns the uploaded paths, falling back to the raw path when
// presigning fails so the caller always learns where the blob lives.
func (p *Pipeline) fileURLs(ctx context.Context, sch *schema.Schema, paths map[string]string) map[string]string {
	if len(paths) == 0 {
		return nil
	}
	bucket := sch.Bucket()
	urls := make(map[string]string, len(paths))
	for field, path := range paths {
		url, err := p.blobs.PresignedGetURL(ctx, bucket, path)
		if err != nil {
			p.logger.Warn(ctx, "presign failed", "bucket", bucket, "path", path, "error", err)
			urls[field] = path
			continue
		}
		urls[field] = url
	}
	return urls
}

// fail records the error on the span and ingest metrics, then returns it.
func (p *Pipeline) fail(span trace.Span, collection, operation string, start time.Time, err error) error {
	p.tracer.RecordError(span, err)
	if p.metrics != nil {
		p.metrics.RecordIngest(collection, operation, "error", time.Since(start).Seconds())
	}
	return err
}

func opStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
