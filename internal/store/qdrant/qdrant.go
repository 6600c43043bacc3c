// Package qdrant adapts the Qdrant gRPC client to CortexDB's vector store
// contract: deterministic point identity, schema-driven payload indexes, and
// filter translation shared with the relational layer.
package qdrant

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/cortexdb/cortexdb/internal/config"
	"github.com/cortexdb/cortexdb/internal/filter"
	"github.com/cortexdb/cortexdb/internal/schema"
	"github.com/cortexdb/cortexdb/internal/value"
)

// maxRecvMsgSize bounds search replies carrying large payload snapshots.
const maxRecvMsgSize = 32 * 1024 * 1024

// scrollPageSize caps one vector listing page, matching the read path's
// per-record chunk budget.
const scrollPageSize = 100

// Config contains connection settings for the Qdrant gRPC endpoint.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// FromAppConfig maps the application qdrant section onto a store config.
func FromAppConfig(cfg config.QdrantConfig) Config {
	return Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	}
}

// Store wraps one shared Qdrant client.
type Store struct {
	client *qdrant.Client
}

// New connects to Qdrant. The client multiplexes over a single gRPC
// connection, so one Store serves the whole process.
func New(cfg Config) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecvMsgSize)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	return &Store{client: client}, nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Health verifies the endpoint answers.
func (s *Store) Health(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// PointID derives the deterministic UUIDv5 identity of one chunk's point.
// Re-ingesting the same record field overwrites its points instead of
// accumulating duplicates.
func PointID(recordID uuid.UUID, field string, chunkIndex int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(fmt.Sprintf("%s:%s:%d", recordID, field, chunkIndex)))
}

// Point is one vector point ready for upsert.
type Point struct {
	ID      uuid.UUID
	Vector  []float32
	Payload map[string]value.Value
}

// ScoredPoint is one search hit with its payload decoded.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]value.Value
}

// StoredPoint is one point returned by a listing scroll.
type StoredPoint struct {
	ID      string
	Payload map[string]value.Value
}

// EnsureCollection creates the collection if it does not exist yet: cosine
// distance, payload on disk, and the compiled payload indexes. Existing
// collections are left untouched, including their dimension.
func (s *Store) EnsureCollection(ctx context.Context, spec *schema.VectorSpec, dim int) error {
	exists, err := s.client.CollectionExists(ctx, spec.Collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", spec.Collection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: spec.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
		OnDiskPayload: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", spec.Collection, err)
	}

	for _, idx := range spec.PayloadIndexes {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: spec.Collection,
			FieldName:      idx.Field,
			FieldType:      fieldIndexType(idx.Kind),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("index payload field %s.%s: %w", spec.Collection, idx.Field, err)
		}
	}
	return nil
}

// CollectionExists reports whether the named collection is present.
func (s *Store) CollectionExists(ctx context.Context, name string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("check collection %s: %w", name, err)
	}
	return exists, nil
}

// DeleteCollection drops the collection and all of its points.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	return nil
}

// Upsert writes points, waiting for the operation to apply so a subsequent
// search observes them.
func (s *Store) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	structs := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		structs[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID.String()),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: toPayload(p.Payload),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         structs,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upsert %d points into %s: %w", len(points), collection, err)
	}
	return nil
}

// DeleteByRecord removes every point belonging to a record.
func (s *Store) DeleteByRecord(ctx context.Context, collection string, recordID uuid.UUID) error {
	return s.deleteByFilter(ctx, collection, &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchKeyword("record_id", recordID.String()),
		},
	})
}

// DeleteByRecordField removes the points of one field of a record, used when
// an update replaces that field's chunks.
func (s *Store) DeleteByRecordField(ctx context.Context, collection string, recordID uuid.UUID, field string) error {
	return s.deleteByFilter(ctx, collection, &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchKeyword("record_id", recordID.String()),
			qdrant.NewMatchKeyword("field", field),
		},
	})
}

func (s *Store) deleteByFilter(ctx context.Context, collection string, f *qdrant.Filter) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorFilter(f),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("delete points from %s: %w", collection, err)
	}
	return nil
}

// Search runs a scored vector query constrained by the translated filter
// conditions and returns hits with their payloads.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, conds filter.Filter, limit int) ([]ScoredPoint, error) {
	qf, err := translateFilter(conds)
	if err != nil {
		return nil, err
	}

	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qf,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	out := make([]ScoredPoint, 0, len(hits))
	for _, hit := range hits {
		out = append(out, ScoredPoint{
			ID:      hit.GetId().GetUuid(),
			Score:   hit.GetScore(),
			Payload: fromPayload(hit.GetPayload()),
		})
	}
	return out, nil
}

// ScrollRecord lists a record's stored points sorted by chunk_index. Used by
// the vectors inspection endpoint; at most one page is returned.
func (s *Store) ScrollRecord(ctx context.Context, collection string, recordID uuid.UUID) ([]StoredPoint, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeyword("record_id", recordID.String()),
			},
		},
		Limit:       qdrant.PtrOf(uint32(scrollPageSize)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scroll record %s in %s: %w", recordID, collection, err)
	}

	out := make([]StoredPoint, 0, len(points))
	for _, p := range points {
		out = append(out, StoredPoint{
			ID:      p.GetId().GetUuid(),
			Payload: fromPayload(p.GetPayload()),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return chunkIndexOf(out[i].Payload) < chunkIndexOf(out[j].Payload)
	})
	return out, nil
}

func chunkIndexOf(payload map[string]value.Value) int64 {
	if v, ok := payload["chunk_index"]; ok {
		if i, ok := v.IntVal(); ok {
			return i
		}
	}
	return 0
}

// translateFilter renders parsed conditions as Qdrant must-clauses. Equality
// maps to match conditions by value kind; ranges map to range conditions.
// The not-equal operator has no native form here and is expected to have
// been split off for post-filtering before this layer.
func translateFilter(conds filter.Filter) (*qdrant.Filter, error) {
	if len(conds) == 0 {
		return nil, nil
	}

	must := make([]*qdrant.Condition, 0, len(conds))
	for _, c := range conds {
		qc, err := translateCondition(c)
		if err != nil {
			return nil, err
		}
		must = append(must, qc)
	}
	return &qdrant.Filter{Must: must}, nil
}

func translateCondition(c filter.Condition) (*qdrant.Condition, error) {
	switch c.Op {
	case filter.OpEq:
		switch c.Value.Kind() {
		case value.KindString:
			s, _ := c.Value.StringVal()
			return qdrant.NewMatchKeyword(c.Field, s), nil
		case value.KindInt:
			i, _ := c.Value.IntVal()
			return qdrant.NewMatchInt(c.Field, i), nil
		case value.KindBool:
			b, _ := c.Value.BoolVal()
			return qdrant.NewMatchBool(c.Field, b), nil
		case value.KindFloat:
			// No float match condition exists; a closed range is equivalent.
			f, _ := c.Value.FloatVal()
			return qdrant.NewRange(c.Field, &qdrant.Range{Gte: &f, Lte: &f}), nil
		default:
			return nil, fmt.Errorf("field %s: unsupported equality value kind %s: %w", c.Field, c.Value.Kind(), filter.ErrInvalid)
		}
	case filter.OpGte, filter.OpLte, filter.OpGt, filter.OpLt:
		f, ok := numeric(c.Value)
		if !ok {
			return nil, fmt.Errorf("field %s: range operand must be numeric: %w", c.Field, filter.ErrInvalid)
		}
		r := &qdrant.Range{}
		switch c.Op {
		case filter.OpGte:
			r.Gte = &f
		case filter.OpLte:
			r.Lte = &f
		case filter.OpGt:
			r.Gt = &f
		case filter.OpLt:
			r.Lt = &f
		}
		return qdrant.NewRange(c.Field, r), nil
	default:
		return nil, fmt.Errorf("field %s: operator %s is not supported by the vector store: %w", c.Field, c.Op, filter.ErrInvalid)
	}
}

func numeric(v value.Value) (float64, bool) {
	return v.FloatVal()
}

func fieldIndexType(kind schema.IndexKind) *qdrant.FieldType {
	switch kind {
	case schema.IndexInteger:
		return qdrant.FieldType_FieldTypeInteger.Enum()
	case schema.IndexFloat:
		return qdrant.FieldType_FieldTypeFloat.Enum()
	case schema.IndexBool:
		return qdrant.FieldType_FieldTypeBool.Enum()
	default:
		return qdrant.FieldType_FieldTypeKeyword.Enum()
	}
}

// toPayload converts a value map into the Qdrant payload representation.
func toPayload(m map[string]value.Value) map[string]*qdrant.Value {
	plain := make(map[string]any, len(m))
	for k, v := range m {
		plain[k] = v.ToJSON()
	}
	return qdrant.NewValueMap(plain)
}

// fromPayload decodes a Qdrant payload back into values.
func fromPayload(payload map[string]*qdrant.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(payload))
	for k, v := range payload {
		out[k] = fromQdrantValue(v)
	}
	return out
}

func fromQdrantValue(v *qdrant.Value) value.Value {
	switch v.GetKind().(type) {
	case *qdrant.Value_BoolValue:
		return value.Bool(v.GetBoolValue())
	case *qdrant.Value_IntegerValue:
		return value.Int(v.GetIntegerValue())
	case *qdrant.Value_DoubleValue:
		return value.Float(v.GetDoubleValue())
	case *qdrant.Value_StringValue:
		return value.String(v.GetStringValue())
	case *qdrant.Value_ListValue:
		items := v.GetListValue().GetValues()
		list := make([]value.Value, len(items))
		for i, item := range items {
			list[i] = fromQdrantValue(item)
		}
		return value.List(list)
	case *qdrant.Value_StructValue:
		fields := v.GetStructValue().GetFields()
		m := make(map[string]value.Value, len(fields))
		for k, f := range fields {
			m[k] = fromQdrantValue(f)
		}
		return value.Map(m)
	default:
		return value.Null()
	}
}
