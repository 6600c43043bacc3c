package schema

import (
	"fmt"
	"strings"
)

// IndexKind classifies a vector payload index.
type IndexKind string

const (
	IndexKeyword IndexKind = "keyword"
	IndexInteger IndexKind = "integer"
	IndexFloat   IndexKind = "float"
	IndexBool    IndexKind = "bool"
)

// PayloadIndex declares one payload index on the vector collection.
type PayloadIndex struct {
	Field string
	Kind  IndexKind
}

// VectorSpec describes the vector collection a schema requires. It carries
// no dimension: that is probed from the bound embedding provider at
// creation time.
type VectorSpec struct {
	Collection     string
	PayloadIndexes []PayloadIndex
}

// Plan is the compiled storage layout for one schema: relational DDL in
// execution order, an optional vector collection spec, and an optional
// bucket name.
type Plan struct {
	Table      string
	Statements []string
	Vector     *VectorSpec
	Bucket     string
}

// sqlType maps a scalar field type to its relational column type. Enum
// fields additionally carry a CHECK constraint built by columnDef.
func sqlType(t FieldType) string {
	switch t {
	case TypeString, TypeText, TypeFile, TypeEnum:
		return "TEXT"
	case TypeInt:
		return "INTEGER"
	case TypeFloat:
		return "DOUBLE PRECISION"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeDate:
		return "DATE"
	case TypeDateTime:
		return "TIMESTAMPTZ"
	case TypeJSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

func columnDef(f *ScalarField) string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteString(" ")
	b.WriteString(sqlType(f.Type))
	if f.Type == TypeEnum {
		quoted := make([]string, len(f.Values))
		for i, v := range f.Values {
			quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
		}
		fmt.Fprintf(&b, " CHECK (%s IN (%s))", f.Name, strings.Join(quoted, ", "))
	}
	if f.Required {
		b.WriteString(" NOT NULL")
	}
	if f.Unique {
		b.WriteString(" UNIQUE")
	}
	return b.String()
}

// Compile validates the schema and derives its storage plan. It has no side
// effects; executing the plan is the catalog's job.
func Compile(s *Schema) (*Plan, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	table := strings.ToLower(s.Name)
	plan := &Plan{Table: table}

	cols := []string{
		"id UUID PRIMARY KEY DEFAULT uuid_generate_v4()",
		"created_at TIMESTAMPTZ DEFAULT NOW()",
		"updated_at TIMESTAMPTZ DEFAULT NOW()",
	}
	var indexes []string
	for _, f := range s.Scalars() {
		if !f.StoresTo(StorePostgres) {
			continue
		}
		cols = append(cols, columnDef(f))
		if f.Indexed {
			indexes = append(indexes, fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)", table, f.Name, table, f.Name))
		}
	}
	plan.Statements = append(plan.Statements, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(cols, ", ")))
	plan.Statements = append(plan.Statements, indexes...)

	for _, af := range s.Arrays() {
		child := table + "_" + af.Name
		childCols := []string{
			"item_id UUID PRIMARY KEY DEFAULT uuid_generate_v4()",
			fmt.Sprintf("parent_id UUID NOT NULL REFERENCES %s(id) ON DELETE CASCADE", table),
			"item_index INTEGER NOT NULL",
		}
		for i := range af.Fields {
			nested := &af.Fields[i]
			if !nested.StoresTo(StorePostgres) {
				continue
			}
			childCols = append(childCols, columnDef(nested))
		}
		plan.Statements = append(plan.Statements, fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (%s)", child, strings.Join(childCols, ", ")))
		plan.Statements = append(plan.Statements, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS idx_%s_parent ON %s (parent_id)", child, child))
	}

	plan.Vector = s.VectorSpec()
	if s.NeedsBucket() {
		plan.Bucket = s.Bucket()
	}
	return plan, nil
}

// VectorSpec derives the vector collection requirement, or nil when no field
// produces vectors.
func (s *Schema) VectorSpec() *VectorSpec {
	if !s.NeedsVectors() {
		return nil
	}
	return &VectorSpec{
		Collection:     s.VectorCollection(),
		PayloadIndexes: payloadIndexes(s),
	}
}

// payloadIndexes derives the payload indexes the vector collection needs:
// the bookkeeping keys every point carries, plus each schema field routed
// into point payloads.
func payloadIndexes(s *Schema) []PayloadIndex {
	out := []PayloadIndex{
		{Field: "record_id", Kind: IndexKeyword},
		{Field: "collection", Kind: IndexKeyword},
		{Field: "field", Kind: IndexKeyword},
		{Field: "chunk_index", Kind: IndexInteger},
	}
	seen := map[string]bool{"record_id": true, "collection": true, "field": true, "chunk_index": true}
	for _, f := range s.Scalars() {
		if !f.StoresTo(StoreQdrant) && !f.StoresTo(StoreQdrantPayload) {
			continue
		}
		if seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		out = append(out, PayloadIndex{Field: f.Name, Kind: payloadIndexKind(f.Type)})
	}
	return out
}

func payloadIndexKind(t FieldType) IndexKind {
	switch t {
	case TypeInt:
		return IndexInteger
	case TypeFloat:
		return IndexFloat
	case TypeBoolean:
		return IndexBool
	default:
		return IndexKeyword
	}
}
