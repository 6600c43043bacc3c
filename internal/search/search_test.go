package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/cortexdb/cortexdb/internal/embed"
	"github.com/cortexdb/cortexdb/internal/filter"
	"github.com/cortexdb/cortexdb/internal/schema"
	"github.com/cortexdb/cortexdb/internal/store/postgres"
	"github.com/cortexdb/cortexdb/internal/store/qdrant"
	"github.com/cortexdb/cortexdb/internal/value"
)

func articlesSchema() *schema.Schema {
	return &schema.Schema{
		Name: "articles",
		Fields: []schema.Field{
			&schema.ScalarField{Name: "title", Type: schema.TypeString, Required: true,
				StoreIn: []schema.StoreLocation{schema.StorePostgres, schema.StoreQdrantPayload}},
			&schema.ScalarField{Name: "year", Type: schema.TypeInt,
				StoreIn: []schema.StoreLocation{schema.StorePostgres, schema.StoreQdrantPayload}},
			&schema.ScalarField{Name: "status", Type: schema.TypeString,
				StoreIn: []schema.StoreLocation{schema.StorePostgres}},
			&schema.ScalarField{Name: "body", Type: schema.TypeText, Vectorize: true,
				StoreIn: []schema.StoreLocation{schema.StorePostgres, schema.StoreQdrant}},
		},
	}
}

func uploadsSchema() *schema.Schema {
	return &schema.Schema{
		Name: "uploads",
		Fields: []schema.Field{
			&schema.ScalarField{Name: "doc", Type: schema.TypeFile, Vectorize: true,
				StoreIn: []schema.StoreLocation{schema.StorePostgres, schema.StoreMinio}},
		},
	}
}

func notesSchema() *schema.Schema {
	return &schema.Schema{
		Name: "notes",
		Fields: []schema.Field{
			&schema.ScalarField{Name: "body", Type: schema.TypeText,
				StoreIn: []schema.StoreLocation{schema.StorePostgres}},
		},
	}
}

type fakeStore struct {
	schemas map[string]*schema.Schema
	rows    map[uuid.UUID]map[string]value.Value

	fetched  [][]uuid.UUID
	fetchErr error
}

func newFakeStore(schemas ...*schema.Schema) *fakeStore {
	s := &fakeStore{
		schemas: make(map[string]*schema.Schema),
		rows:    make(map[uuid.UUID]map[string]value.Value),
	}
	for _, sch := range schemas {
		s.schemas[sch.Name] = sch
	}
	return s
}

func (s *fakeStore) GetCollectionSchema(_ context.Context, name string) (*schema.Schema, error) {
	sch, ok := s.schemas[name]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", name, postgres.ErrNotFound)
	}
	return sch, nil
}

func (s *fakeStore) FetchRecordsByIDs(_ context.Context, _ *schema.Schema, ids []uuid.UUID) (map[uuid.UUID]map[string]value.Value, error) {
	s.fetched = append(s.fetched, ids)
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	out := make(map[uuid.UUID]map[string]value.Value)
	for _, id := range ids {
		if row, ok := s.rows[id]; ok {
			out[id] = row
		}
	}
	return out, nil
}

type fakeVectorSearch struct {
	hits []qdrant.ScoredPoint
	err  error

	gotCollection string
	gotConds      filter.Filter
	gotLimit      int
}

func (v *fakeVectorSearch) Search(_ context.Context, collection string, _ []float32, conds filter.Filter, limit int) ([]qdrant.ScoredPoint, error) {
	v.gotCollection = collection
	v.gotConds = conds
	v.gotLimit = limit
	if v.err != nil {
		return nil, v.err
	}
	return v.hits, nil
}

type fakeBlobs struct {
	presignErr error
}

func (b *fakeBlobs) PresignedGetURL(_ context.Context, bucket, path string) (string, error) {
	if b.presignErr != nil {
		return "", b.presignErr
	}
	return "https://blobs.test/" + bucket + "/" + path + "?sig=ok", nil
}

type fakeEmbedder struct {
	err   error
	texts []string
}

func (e *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.texts = append(e.texts, text)
	return []float32{0.1, 0.2, 0.3}, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *fakeEmbedder) Dim(context.Context) (int, error) { return 3, nil }

type fakeEmbedders struct {
	embedder embed.Embedder
	err      error
}

func (s *fakeEmbedders) ForProvider(context.Context, string) (embed.Embedder, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.embedder, nil
}

type searchFakes struct {
	store    *fakeStore
	vectors  *fakeVectorSearch
	blobs    *fakeBlobs
	embedder *fakeEmbedder
}

func newTestSearcher(schemas ...*schema.Schema) (*Searcher, *searchFakes) {
	f := &searchFakes{
		store:    newFakeStore(schemas...),
		vectors:  &fakeVectorSearch{},
		blobs:    &fakeBlobs{},
		embedder: &fakeEmbedder{},
	}
	s := NewSearcher(Services{
		Store:     f.store,
		Vectors:   f.vectors,
		Blobs:     f.blobs,
		Embedders: &fakeEmbedders{embedder: f.embedder},
	})
	return s, f
}

func hit(id uuid.UUID, field string, idx int, text string, score float32) qdrant.ScoredPoint {
	return qdrant.ScoredPoint{
		ID:    qdrant.PointID(id, field, idx).String(),
		Score: score,
		Payload: map[string]value.Value{
			"record_id":   value.String(id.String()),
			"field":       value.String(field),
			"chunk_index": value.Int(int64(idx)),
			"text":        value.String(text),
		},
	}
}

func TestSearchGroupsAndOrdersByBestChunk(t *testing.T) {
	s, f := newTestSearcher(articlesSchema())
	a, b := uuid.New(), uuid.New()
	f.store.rows[a] = map[string]value.Value{"title": value.String("A")}
	f.store.rows[b] = map[string]value.Value{"title": value.String("B")}
	// B's best chunk outranks both of A's even though A leads the raw list.
	f.vectors.hits = []qdrant.ScoredPoint{
		hit(a, "body", 0, "machine learning is amazing", 0.82),
		hit(b, "body", 1, "deep learning uses neural networks", 0.91),
		hit(a, "body", 1, "a second chunk about learning", 0.75),
	}

	res, err := s.Search(context.Background(), "articles", "artificial intelligence", nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Total != 2 || len(res.Results) != 2 {
		t.Fatalf("got %d results (total %d), want 2", len(res.Results), res.Total)
	}
	if res.Results[0].ID != b.String() || res.Results[1].ID != a.String() {
		t.Errorf("order = [%s %s], want [%s %s]", res.Results[0].ID, res.Results[1].ID, b, a)
	}
	if got, want := res.Results[0].Score, float32(0.91); got != want {
		t.Errorf("top score = %v, want %v", got, want)
	}
	if got := len(res.Results[1].Highlights); got != 2 {
		t.Fatalf("record A carries %d highlights, want 2", got)
	}
	hl := res.Results[1].Highlights[0]
	if hl.Field != "body" || hl.ChunkIndex != 0 || hl.Score != 0.82 {
		t.Errorf("highlight = %+v, want body chunk 0 at 0.82", hl)
	}
	if got, want := res.Results[0].Record["title"], value.String("B"); !value.Equal(got, want) {
		t.Errorf("hydrated title = %v, want %v", got, want)
	}
	if res.TookMS < 0 {
		t.Errorf("TookMS = %v, want non-negative", res.TookMS)
	}
	if got := f.embedder.texts; len(got) != 1 || got[0] != "artificial intelligence" {
		t.Errorf("embedded queries = %v, want the query once", got)
	}
}

func TestSearchClampsLimitAndOverFetches(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		wantFetch int
	}{
		{name: "default", limit: 0, wantFetch: 50},
		{name: "capped", limit: 1000, wantFetch: 500},
		{name: "as given", limit: 7, wantFetch: 35},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, f := newTestSearcher(articlesSchema())

			_, err := s.Search(context.Background(), "articles", "q", nil, tt.limit)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if f.vectors.gotLimit != tt.wantFetch {
				t.Errorf("vector search limit = %d, want %d", f.vectors.gotLimit, tt.wantFetch)
			}
		})
	}
}

func TestSearchTruncatesToLimit(t *testing.T) {
	s, f := newTestSearcher(articlesSchema())
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for i, id := range ids {
		f.store.rows[id] = map[string]value.Value{"title": value.String("t")}
		f.vectors.hits = append(f.vectors.hits, hit(id, "body", 0, "text", float32(9-i)/10))
	}

	res, err := s.Search(context.Background(), "articles", "q", nil, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(res.Results))
	}
	if len(f.store.fetched) != 1 || len(f.store.fetched[0]) != 2 {
		t.Errorf("hydrated ids = %v, want only the top 2", f.store.fetched)
	}
}

func TestSearchSplitsFilters(t *testing.T) {
	s, f := newTestSearcher(articlesSchema())
	keep, drop := uuid.New(), uuid.New()
	f.store.rows[keep] = map[string]value.Value{
		"title": value.String("keep"), "status": value.String("published")}
	f.store.rows[drop] = map[string]value.Value{
		"title": value.String("drop"), "status": value.String("draft")}
	f.vectors.hits = []qdrant.ScoredPoint{
		hit(keep, "body", 0, "x", 0.9),
		hit(drop, "body", 0, "y", 0.8),
	}

	res, err := s.Search(context.Background(), "articles", "q", map[string]any{
		"year":   map[string]any{"$gte": float64(2023)},
		"status": map[string]any{"$ne": "draft"},
	}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	// Only the range condition reaches the vector store.
	if len(f.vectors.gotConds) != 1 {
		t.Fatalf("vector conditions = %+v, want just the range", f.vectors.gotConds)
	}
	if c := f.vectors.gotConds[0]; c.Field != "year" || c.Op != filter.OpGte {
		t.Errorf("vector condition = %+v, want year $gte", c)
	}

	// The $ne condition filters the hydrated rows.
	if len(res.Results) != 1 || res.Results[0].ID != keep.String() {
		t.Errorf("results = %+v, want only the published record", res.Results)
	}
}

func TestSearchDropsRowlessHits(t *testing.T) {
	s, f := newTestSearcher(articlesSchema())
	alive, ghost := uuid.New(), uuid.New()
	f.store.rows[alive] = map[string]value.Value{"title": value.String("alive")}
	f.vectors.hits = []qdrant.ScoredPoint{
		hit(ghost, "body", 0, "stale point", 0.95),
		hit(alive, "body", 0, "current point", 0.90),
	}

	res, err := s.Search(context.Background(), "articles", "q", nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Total != 1 || res.Results[0].ID != alive.String() {
		t.Errorf("results = %+v, want only the record that still exists", res.Results)
	}
}

func TestSearchPresignFailureYieldsNullURL(t *testing.T) {
	s, f := newTestSearcher(uploadsSchema())
	id := uuid.New()
	path := fmt.Sprintf("uploads/%s/report.pdf", id)
	f.store.rows[id] = map[string]value.Value{"doc": value.String(path)}
	f.vectors.hits = []qdrant.ScoredPoint{hit(id, "doc", 0, "revenue grew", 0.9)}
	f.blobs.presignErr = errors.New("mc offline")

	res, err := s.Search(context.Background(), "uploads", "revenue growth", nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(res.Results))
	}
	url, present := res.Results[0].Files["doc"]
	if !present {
		t.Fatal("Files[doc] absent, want an explicit null URL")
	}
	if url != nil {
		t.Errorf("Files[doc] = %v, want nil", *url)
	}
}

func TestSearchPresignsFileFields(t *testing.T) {
	s, f := newTestSearcher(uploadsSchema())
	id := uuid.New()
	path := fmt.Sprintf("uploads/%s/report.pdf", id)
	f.store.rows[id] = map[string]value.Value{"doc": value.String(path)}
	f.vectors.hits = []qdrant.ScoredPoint{hit(id, "doc", 0, "revenue grew", 0.9)}

	res, err := s.Search(context.Background(), "uploads", "revenue growth", nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	url := res.Results[0].Files["doc"]
	if url == nil || *url == "" {
		t.Fatalf("Files[doc] = %v, want a presigned URL", url)
	}
}

func TestSearchRejectsPlainCollection(t *testing.T) {
	s, _ := newTestSearcher(notesSchema())

	_, err := s.Search(context.Background(), "notes", "q", nil, 10)
	if !errors.Is(err, schema.ErrInvalid) {
		t.Fatalf("err = %v, want schema.ErrInvalid", err)
	}
}

func TestSearchUnknownCollection(t *testing.T) {
	s, _ := newTestSearcher(articlesSchema())

	_, err := s.Search(context.Background(), "ghosts", "q", nil, 10)
	if !errors.Is(err, postgres.ErrNotFound) {
		t.Fatalf("err = %v, want postgres.ErrNotFound", err)
	}
}

func TestSearchRejectsInvalidFilter(t *testing.T) {
	s, _ := newTestSearcher(articlesSchema())

	_, err := s.Search(context.Background(), "articles", "q",
		map[string]any{"status": map[string]any{"$like": "x"}}, 10)
	if !errors.Is(err, filter.ErrInvalid) {
		t.Fatalf("err = %v, want filter.ErrInvalid", err)
	}
}

func TestSearchVectorStoreErrorPropagates(t *testing.T) {
	s, f := newTestSearcher(articlesSchema())
	f.vectors.err = errors.New("qdrant unavailable")

	_, err := s.Search(context.Background(), "articles", "q", nil, 10)
	if !errors.Is(err, f.vectors.err) {
		t.Fatalf("err = %v, want the vector store error", err)
	}
}

func TestSearchEmptyCandidatesYieldEmptyPage(t *testing.T) {
	s, f := newTestSearcher(articlesSchema())

	res, err := s.Search(context.Background(), "articles", "q", nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Results == nil || len(res.Results) != 0 || res.Total != 0 {
		t.Errorf("response = %+v, want an empty non-nil result list", res)
	}
	if len(f.store.fetched) != 0 {
		t.Errorf("hydration ran with no candidates: %v", f.store.fetched)
	}
}
