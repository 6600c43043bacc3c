// Package search implements hybrid retrieval: the query embeds once, the
// vector store returns an over-fetched candidate set, candidates group by
// record with the best chunk score winning, and the surviving records
// hydrate from the relational store in score order.
package search

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
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

// Result paging bounds, and the candidate multiplier that keeps grouping
// from starving the page when one record owns many matching chunks.
const (
	defaultLimit = 10
	maxLimit     = 100
	overFetch    = 5
)

// Store loads schemas and hydrates result rows.
type Store interface {
	GetCollectionSchema(ctx context.Context, name string) (*schema.Schema, error)
	FetchRecordsByIDs(ctx context.Context, sch *schema.Schema, ids []uuid.UUID) (map[uuid.UUID]map[string]value.Value, error)
}

// VectorSearcher runs filtered nearest-neighbour queries.
type VectorSearcher interface {
	Search(ctx context.Context, collection string, vector []float32, conds filter.Filter, limit int) ([]qdrant.ScoredPoint, error)
}

// BlobStore presigns download URLs for file fields on result records.
type BlobStore interface {
	PresignedGetURL(ctx context.Context, bucket, path string) (string, error)
}

// EmbedderSource resolves embedding providers by id.
type EmbedderSource interface {
	ForProvider(ctx context.Context, providerID string) (embed.Embedder, error)
}

// Services bundles the searcher's dependencies for explicit wiring.
type Services struct {
	Store     Store
	Vectors   VectorSearcher
	Blobs     BlobStore
	Embedders EmbedderSource
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
}

// Searcher serves hybrid searches over one gateway's collections.
type Searcher struct {
	store     Store
	vectors   VectorSearcher
	blobs     BlobStore
	embedders EmbedderSource
	logger    *observability.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
}

// NewSearcher wires a searcher from its services. A nil Logger discards log
// output and a nil Tracer records no spans; Metrics may stay nil.
func NewSearcher(svc Services) *Searcher {
	logger := svc.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{Output: io.Discard})
	}
	tracer := svc.Tracer
	if tracer == nil {
		tracer, _ = observability.NewTracer(observability.TraceConfig{ServiceName: "cortexdb"})
	}
	return &Searcher{
		store:     svc.Store,
		vectors:   svc.Vectors,
		blobs:     svc.Blobs,
		embedders: svc.Embedders,
		logger:    logger,
		metrics:   svc.Metrics,
		tracer:    tracer,
	}
}

// Highlight is one matching chunk of a result record.
type Highlight struct {
	Field      string  `json:"field"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

// Result is one hit: the hydrated record with its match context. A file
// field whose presign failed maps to a null URL rather than failing the
// search.
type Result struct {
	ID         string                 `json:"id"`
	Score      float32                `json:"score"`
	Record     map[string]value.Value `json:"record"`
	Files      map[string]*string     `json:"files"`
	Highlights []Highlight            `json:"highlights"`
}

// Response is one served search.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	TookMS  float64  `json:"took_ms"`
}

// Search embeds the query against the collection's provider and returns the
// best-matching records. Equality and range filters narrow the vector
// search itself; $ne conditions apply after hydration. The limit clamps
// into [1,100] with 10 as the unset default.
func (s *Searcher) Search(ctx context.Context, collection, query string, filters map[string]any, limit int) (*Response, error) {
	ctx, span := s.tracer.TraceSearch(ctx, collection)
	defer span.End()
	start := time.Now()

	sch, err := s.store.GetCollectionSchema(ctx, collection)
	if err != nil {
		return nil, s.fail(span, collection, start, err)
	}
	if !sch.NeedsVectors() {
		return nil, s.fail(span, collection, start,
			fmt.Errorf("collection %s has no vector fields to search: %w", collection, schema.ErrInvalid))
	}

	conds, err := filter.Parse(filters)
	if err != nil {
		return nil, s.fail(span, collection, start, err)
	}
	vectorConds, postConds := conds.Split()

	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	embedder, err := s.embedders.ForProvider(ctx, sch.Config.EmbeddingProviderID)
	if err != nil {
		return nil, s.fail(span, collection, start, err)
	}
	queryVector, err := embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, s.fail(span, collection, start, fmt.Errorf("embed query: %w", err))
	}

	searchStart := time.Now()
	hits, err := s.vectors.Search(ctx, sch.VectorCollection(), queryVector, vectorConds, limit*overFetch)
	if s.metrics != nil {
		s.metrics.RecordStoreOp("qdrant", "search", opStatus(err), time.Since(searchStart).Seconds())
	}
	if err != nil {
		return nil, s.fail(span, collection, start, err)
	}

	groups := groupHits(hits)
	if len(groups) > limit {
		groups = groups[:limit]
	}
	ids := make([]uuid.UUID, len(groups))
	for i, g := range groups {
		ids[i] = g.id
	}

	var rows map[uuid.UUID]map[string]value.Value
	if len(ids) > 0 {
		hydrateStart := time.Now()
		rows, err = s.store.FetchRecordsByIDs(ctx, sch, ids)
		if s.metrics != nil {
			s.metrics.RecordStoreOp("postgres", "fetch_by_ids", opStatus(err), time.Since(hydrateStart).Seconds())
		}
		if err != nil {
			return nil, s.fail(span, collection, start, err)
		}
	}

	results := make([]Result, 0, len(groups))
	for _, g := range groups {
		row, ok := rows[g.id]
		if !ok {
			// The point outlived its row; deterministic ids heal this on
			// the next write, so the hit is just dropped.
			continue
		}
		if !matchesPost(row, postConds) {
			continue
		}
		results = append(results, Result{
			ID:         g.id.String(),
			Score:      g.score,
			Record:     row,
			Files:      s.presignFiles(ctx, sch, row),
			Highlights: g.highlights,
		})
	}

	took := roundMS(time.Since(start))
	if s.metrics != nil {
		s.metrics.RecordSearch(collection, "success", time.Since(start).Seconds())
	}
	s.logger.Info(ctx, "search served",
		"collection", collection,
		"results", len(results),
		"candidates", len(hits),
		"took_ms", took)

	return &Response{Results: results, Total: len(results), TookMS: took}, nil
}

// group accumulates one candidate record across its matching chunks.
type group struct {
	id         uuid.UUID
	score      float32
	highlights []Highlight
}

// groupHits folds the candidate points into per-record groups, scored by
// their best chunk, sorted descending. Points without a parseable record_id
// are skipped.
func groupHits(hits []qdrant.ScoredPoint) []*group {
	byID := make(map[uuid.UUID]*group)
	var order []*group
	for _, hit := range hits {
		rid, ok := hit.Payload["record_id"].StringVal()
		if !ok || rid == "" {
			continue
		}
		id, err := uuid.Parse(rid)
		if err != nil {
			continue
		}
		g, ok := byID[id]
		if !ok {
			g = &group{id: id, score: hit.Score}
			byID[id] = g
			order = append(order, g)
		}
		if hit.Score > g.score {
			g.score = hit.Score
		}
		g.highlights = append(g.highlights, Highlight{
			Field:      payloadString(hit.Payload, "field"),
			ChunkIndex: payloadInt(hit.Payload, "chunk_index"),
			Text:       payloadString(hit.Payload, "text"),
			Score:      hit.Score,
		})
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].score > order[j].score })
	return order
}

// matchesPost applies the conditions the vector store could not evaluate.
func matchesPost(row map[string]value.Value, conds filter.Filter) bool {
	for _, c := range conds {
		if !c.Matches(row[c.Field]) {
			return false
		}
	}
	return true
}

// presignFiles issues download URLs for the row's stored file fields. A
// failed presign degrades to a null URL.
func (s *Searcher) presignFiles(ctx context.Context, sch *schema.Schema, row map[string]value.Value) map[string]*string {
	files := make(map[string]*string)
	for _, f := range sch.Scalars() {
		if f.Type != schema.TypeFile || !f.StoresTo(schema.StoreMinio) {
			continue
		}
		path, ok := row[f.Name].StringVal()
		if !ok || path == "" {
			continue
		}
		url, err := s.blobs.PresignedGetURL(ctx, sch.Bucket(), path)
		if err != nil {
			s.logger.Warn(ctx, "presign failed",
				"bucket", sch.Bucket(), "path", path, "field", f.Name, "error", err)
			files[f.Name] = nil
			continue
		}
		files[f.Name] = &url
	}
	return files
}

// fail records the error on the span and search metrics, then returns it.
func (s *Searcher) fail(span trace.Span, collection string, start time.Time, err error) error {
	s.tracer.RecordError(span, err)
	if s.metrics != nil {
		s.metrics.RecordSearch(collection, "error", time.Since(start).Seconds())
	}
	return err
}

func roundMS(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000*100) / 100
}

func opStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func payloadString(payload map[string]value.Value, key string) string {
	v, _ := payload[key].StringVal()
	return v
}

func payloadInt(payload map[string]value.Value, key string) int {
	i, _ := payload[key].IntVal()
	return int(i)
}
