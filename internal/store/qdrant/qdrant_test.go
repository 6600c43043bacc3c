package qdrant

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/cortexdb/cortexdb/internal/filter"
	"github.com/cortexdb/cortexdb/internal/schema"
	"github.com/cortexdb/cortexdb/internal/value"
)

func TestPointIDDeterministic(t *testing.T) {
	recordID := uuid.MustParse("6f1e97be-9aab-4a22-bcd3-3b04b0dc60f8")

	a := PointID(recordID, "content", 0)
	b := PointID(recordID, "content", 0)
	if a != b {
		t.Fatalf("same inputs produced different ids: %s vs %s", a, b)
	}

	if PointID(recordID, "content", 1) == a {
		t.Error("different chunk index should produce a different id")
	}
	if PointID(recordID, "title", 0) == a {
		t.Error("different field should produce a different id")
	}
	if PointID(uuid.New(), "content", 0) == a {
		t.Error("different record should produce a different id")
	}
}

func TestTranslateCondition(t *testing.T) {
	tests := []struct {
		name  string
		cond  filter.Condition
		check func(t *testing.T, c *qdrant.Condition)
	}{
		{
			name: "string equality",
			cond: filter.Condition{Field: "status", Op: filter.OpEq, Value: value.String("active")},
			check: func(t *testing.T, c *qdrant.Condition) {
				fc := c.GetField()
				if fc.GetKey() != "status" {
					t.Errorf("key = %q, want status", fc.GetKey())
				}
				if got := fc.GetMatch().GetKeyword(); got != "active" {
					t.Errorf("keyword = %q, want active", got)
				}
			},
		},
		{
			name: "integer equality",
			cond: filter.Condition{Field: "year", Op: filter.OpEq, Value: value.Int(2024)},
			check: func(t *testing.T, c *qdrant.Condition) {
				if got := c.GetField().GetMatch().GetInteger(); got != 2024 {
					t.Errorf("integer = %d, want 2024", got)
				}
			},
		},
		{
			name: "bool equality",
			cond: filter.Condition{Field: "published", Op: filter.OpEq, Value: value.Bool(true)},
			check: func(t *testing.T, c *qdrant.Condition) {
				if got := c.GetField().GetMatch().GetBoolean(); !got {
					t.Error("boolean = false, want true")
				}
			},
		},
		{
			name: "float equality becomes closed range",
			cond: filter.Condition{Field: "price", Op: filter.OpEq, Value: value.Float(9.99)},
			check: func(t *testing.T, c *qdrant.Condition) {
				r := c.GetField().GetRange()
				if r.GetGte() != 9.99 || r.GetLte() != 9.99 {
					t.Errorf("range = [%v, %v], want [9.99, 9.99]", r.GetGte(), r.GetLte())
				}
			},
		},
		{
			name: "gte range",
			cond: filter.Condition{Field: "year", Op: filter.OpGte, Value: value.Int(2020)},
			check: func(t *testing.T, c *qdrant.Condition) {
				r := c.GetField().GetRange()
				if r.GetGte() != 2020 {
					t.Errorf("gte = %v, want 2020", r.GetGte())
				}
				if r.Lte != nil || r.Gt != nil || r.Lt != nil {
					t.Error("unexpected extra range bounds")
				}
			},
		},
		{
			name: "lt range",
			cond: filter.Condition{Field: "price", Op: filter.OpLt, Value: value.Float(100)},
			check: func(t *testing.T, c *qdrant.Condition) {
				if got := c.GetField().GetRange().GetLt(); got != 100 {
					t.Errorf("lt = %v, want 100", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := translateCondition(tt.cond)
			if err != nil {
				t.Fatalf("translateCondition() error = %v", err)
			}
			tt.check(t, c)
		})
	}
}

func TestTranslateConditionRejectsUnsupported(t *testing.T) {
	tests := []struct {
		name string
		cond filter.Condition
		want string
	}{
		{
			name: "not-equal operator",
			cond: filter.Condition{Field: "status", Op: filter.OpNe, Value: value.String("draft")},
			want: "not supported",
		},
		{
			name: "range on string",
			cond: filter.Condition{Field: "title", Op: filter.OpGte, Value: value.String("abc")},
			want: "must be numeric",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := translateCondition(tt.cond)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestTranslateFilterEmpty(t *testing.T) {
	f, err := translateFilter(nil)
	if err != nil {
		t.Fatalf("translateFilter() error = %v", err)
	}
	if f != nil {
		t.Errorf("empty filter should translate to nil, got %v", f)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	in := map[string]value.Value{
		"record_id":   value.String("6f1e97be-9aab-4a22-bcd3-3b04b0dc60f8"),
		"chunk_index": value.Int(3),
		"score":       value.Float(0.25),
		"published":   value.Bool(true),
		"tags":        value.List([]value.Value{value.String("a"), value.String("b")}),
		"meta":        value.Map(map[string]value.Value{"lang": value.String("en")}),
	}

	out := fromPayload(toPayload(in))

	if len(out) != len(in) {
		t.Fatalf("round trip returned %d keys, want %d", len(out), len(in))
	}
	for k, want := range in {
		got, ok := out[k]
		if !ok {
			t.Errorf("key %q missing after round trip", k)
			continue
		}
		if !value.Equal(got, want) {
			t.Errorf("key %q = %v, want %v", k, got, want)
		}
	}
}

func TestFieldIndexType(t *testing.T) {
	tests := []struct {
		kind schema.IndexKind
		want qdrant.FieldType
	}{
		{schema.IndexKeyword, qdrant.FieldType_FieldTypeKeyword},
		{schema.IndexInteger, qdrant.FieldType_FieldTypeInteger},
		{schema.IndexFloat, qdrant.FieldType_FieldTypeFloat},
		{schema.IndexBool, qdrant.FieldType_FieldTypeBool},
	}

	for _, tt := range tests {
		if got := fieldIndexType(tt.kind); *got != tt.want {
			t.Errorf("fieldIndexType(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestChunkIndexOf(t *testing.T) {
	if got := chunkIndexOf(map[string]value.Value{"chunk_index": value.Int(7)}); got != 7 {
		t.Errorf("chunkIndexOf = %d, want 7", got)
	}
	if got := chunkIndexOf(map[string]value.Value{}); got != 0 {
		t.Errorf("missing chunk_index should default to 0, got %d", got)
	}
}
