// Package schema defines the declarative collection schema and compiles it
// into concrete storage layouts: relational DDL, a vector collection spec,
// and an object-store bucket name.
package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cortexdb/cortexdb/internal/value"
)

// ErrInvalid marks schema and value validation failures. Callers branch on
// it with errors.Is to map to a 400 response.
var ErrInvalid = errors.New("invalid schema")

// FieldType enumerates the declarable field types.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeText     FieldType = "text"
	TypeInt      FieldType = "int"
	TypeFloat    FieldType = "float"
	TypeBoolean  FieldType = "boolean"
	TypeDate     FieldType = "date"
	TypeDateTime FieldType = "datetime"
	TypeEnum     FieldType = "enum"
	TypeArray    FieldType = "array"
	TypeFile     FieldType = "file"
	TypeJSON     FieldType = "json"
)

var fieldTypes = map[FieldType]bool{
	TypeString: true, TypeText: true, TypeInt: true, TypeFloat: true,
	TypeBoolean: true, TypeDate: true, TypeDateTime: true, TypeEnum: true,
	TypeArray: true, TypeFile: true, TypeJSON: true,
}

// StoreLocation routes a field to one of the three backing stores. The wire
// names are preserved in stored schemas, so they name the concrete engines.
type StoreLocation string

const (
	StorePostgres      StoreLocation = "postgres"
	StoreQdrant        StoreLocation = "qdrant"
	StoreQdrantPayload StoreLocation = "qdrant_payload"
	StoreMinio         StoreLocation = "minio"
)

var storeLocations = map[StoreLocation]bool{
	StorePostgres: true, StoreQdrant: true, StoreQdrantPayload: true, StoreMinio: true,
}

// ExtractConfig tunes text extraction for file fields.
type ExtractConfig struct {
	// ExtractText enables text extraction for the uploaded blob.
	ExtractText bool `json:"extract_text" yaml:"extract_text"`

	// OCRIfNeeded falls back to the vision provider when a PDF has no
	// selectable text.
	OCRIfNeeded bool `json:"ocr_if_needed" yaml:"ocr_if_needed"`

	// ChunkSize overrides the collection chunk size for this field.
	ChunkSize int `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`

	// ChunkOverlap overrides the collection chunk overlap for this field.
	ChunkOverlap int `json:"chunk_overlap,omitempty" yaml:"chunk_overlap,omitempty"`
}

// DefaultExtractConfig returns the extraction defaults applied when a file
// field declares no extract_config.
func DefaultExtractConfig() ExtractConfig {
	return ExtractConfig{ExtractText: true, OCRIfNeeded: true}
}

// Config carries per-collection embedding and chunking settings. Zero
// values mean "unset"; the pipeline falls back to the global defaults.
type Config struct {
	// EmbeddingModel names the model used for this collection's vectors.
	EmbeddingModel string `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"`

	// EmbeddingProviderID selects a registered embedding provider. Empty
	// selects the process default provider.
	EmbeddingProviderID string `json:"embedding_provider_id,omitempty" yaml:"embedding_provider_id,omitempty"`

	// ChunkSize is the token window for chunking vectorised fields.
	ChunkSize int `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`

	// ChunkOverlap is the token overlap between consecutive chunks.
	ChunkOverlap int `json:"chunk_overlap,omitempty" yaml:"chunk_overlap,omitempty"`
}

// Field is one declared slot in a schema. Exactly two implementations
// exist: ScalarField and ArrayField. Arrays nest scalars only, so nested
// arrays are unrepresentable.
type Field interface {
	FieldName() string
	Stores() []StoreLocation
	IsRequired() bool
}

// ScalarField declares a single-valued field.
type ScalarField struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
	Indexed     bool
	Unique      bool
	Filterable  bool
	Vectorize   bool
	Default     value.Value
	HasDefault  bool
	Values      []string
	StoreIn     []StoreLocation
	Extract     *ExtractConfig
}

// FieldName implements Field.
func (f *ScalarField) FieldName() string { return f.Name }

// Stores implements Field.
func (f *ScalarField) Stores() []StoreLocation { return f.StoreIn }

// IsRequired implements Field.
func (f *ScalarField) IsRequired() bool { return f.Required }

// StoresTo reports whether the field routes to the given location.
func (f *ScalarField) StoresTo(loc StoreLocation) bool {
	for _, s := range f.StoreIn {
		if s == loc {
			return true
		}
	}
	return false
}

// Vectorised reports whether this field produces vector points.
func (f *ScalarField) Vectorised() bool {
	return f.Vectorize || f.StoresTo(StoreQdrant)
}

// ExtractOrDefault returns the field's extract config, falling back to the
// defaults for file fields without one.
func (f *ScalarField) ExtractOrDefault() ExtractConfig {
	if f.Extract != nil {
		return *f.Extract
	}
	return DefaultExtractConfig()
}

// ArrayField declares a list-of-objects field backed by a child table.
type ArrayField struct {
	Name        string
	Description string
	Required    bool
	StoreIn     []StoreLocation
	Fields      []ScalarField
}

// FieldName implements Field.
func (f *ArrayField) FieldName() string { return f.Name }

// Stores implements Field.
func (f *ArrayField) Stores() []StoreLocation { return f.StoreIn }

// IsRequired implements Field.
func (f *ArrayField) IsRequired() bool { return f.Required }

// Item returns the nested scalar with the given name.
func (f *ArrayField) Item(name string) (*ScalarField, bool) {
	for i := range f.Fields {
		if f.Fields[i].Name == name {
			return &f.Fields[i], true
		}
	}
	return nil, false
}

// Schema is a named collection declaration, optionally owned by a logical
// database.
type Schema struct {
	Name        string
	Database    string
	Description string
	Fields      []Field
	Config      Config
}

// Field returns the declared field with the given name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.FieldName() == name {
			return f, true
		}
	}
	return nil, false
}

// Scalars returns the schema's scalar fields in declaration order.
func (s *Schema) Scalars() []*ScalarField {
	out := make([]*ScalarField, 0, len(s.Fields))
	for _, f := range s.Fields {
		if sf, ok := f.(*ScalarField); ok {
			out = append(out, sf)
		}
	}
	return out
}

// Arrays returns the schema's array fields in declaration order.
func (s *Schema) Arrays() []*ArrayField {
	out := make([]*ArrayField, 0)
	for _, f := range s.Fields {
		if af, ok := f.(*ArrayField); ok {
			out = append(out, af)
		}
	}
	return out
}

// NeedsVectors reports whether any field produces vector points, which
// decides whether the collection owns a vector collection.
func (s *Schema) NeedsVectors() bool {
	for _, sf := range s.Scalars() {
		if sf.Vectorised() {
			return true
		}
	}
	return false
}

// NeedsBucket reports whether any field routes to the object store.
func (s *Schema) NeedsBucket() bool {
	for _, sf := range s.Scalars() {
		if sf.StoresTo(StoreMinio) {
			return true
		}
	}
	return false
}

// VectorCollection derives the vector collection name:
// "{database}__{collection}" under a database, plain "{collection}" otherwise.
func (s *Schema) VectorCollection() string {
	if s.Database != "" {
		return s.Database + "__" + s.Name
	}
	return s.Name
}

// Bucket derives the object-store bucket name: "{database}-{collection}" or
// "cortex-{collection}", lower-cased.
func (s *Schema) Bucket() string {
	if s.Database != "" {
		return strings.ToLower(s.Database + "-" + s.Name)
	}
	return strings.ToLower("cortex-" + s.Name)
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the schema invariants. It is pure: failures carry
// ErrInvalid and leave no side effects.
func (s *Schema) Validate() error {
	if !identRe.MatchString(s.Name) {
		return fmt.Errorf("collection name %q must match %s: %w", s.Name, identRe.String(), ErrInvalid)
	}
	if s.Database != "" && !identRe.MatchString(s.Database) {
		return fmt.Errorf("database name %q must match %s: %w", s.Database, identRe.String(), ErrInvalid)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema declares no fields: %w", ErrInvalid)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		name := f.FieldName()
		if seen[name] {
			return fmt.Errorf("duplicate field name %q: %w", name, ErrInvalid)
		}
		seen[name] = true

		switch field := f.(type) {
		case *ScalarField:
			if err := field.validate(); err != nil {
				return err
			}
		case *ArrayField:
			if err := field.validate(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("field %q has unknown kind: %w", name, ErrInvalid)
		}
	}
	return nil
}

func (f *ScalarField) validate() error {
	if !identRe.MatchString(f.Name) {
		return fmt.Errorf("field name %q must match %s: %w", f.Name, identRe.String(), ErrInvalid)
	}
	if !fieldTypes[f.Type] {
		return fmt.Errorf("field %q: unknown type %q: %w", f.Name, f.Type, ErrInvalid)
	}
	if f.Type == TypeArray {
		return fmt.Errorf("field %q: array fields require a nested schema: %w", f.Name, ErrInvalid)
	}
	if len(f.StoreIn) == 0 {
		return fmt.Errorf("field %q: store_in must contain at least one location: %w", f.Name, ErrInvalid)
	}
	for _, loc := range f.StoreIn {
		if !storeLocations[loc] {
			return fmt.Errorf("field %q: unknown store location %q: %w", f.Name, loc, ErrInvalid)
		}
	}
	if f.Type == TypeEnum && len(f.Values) == 0 {
		return fmt.Errorf("field %q: enum fields must declare at least one value: %w", f.Name, ErrInvalid)
	}
	if f.Type != TypeEnum && len(f.Values) > 0 {
		return fmt.Errorf("field %q: values is only valid for enum fields: %w", f.Name, ErrInvalid)
	}
	if f.Vectorize && f.Type != TypeString && f.Type != TypeText && f.Type != TypeFile {
		return fmt.Errorf("field %q: vectorize requires string, text, or file type: %w", f.Name, ErrInvalid)
	}
	if f.Extract != nil && f.Type != TypeFile {
		return fmt.Errorf("field %q: extract_config is only applicable to file fields: %w", f.Name, ErrInvalid)
	}
	if f.Unique && f.Type != TypeString && f.Type != TypeInt && f.Type != TypeFloat {
		return fmt.Errorf("field %q: unique is only supported for string, int, or float fields: %w", f.Name, ErrInvalid)
	}
	return nil
}

func (f *ArrayField) validate() error {
	if !identRe.MatchString(f.Name) {
		return fmt.Errorf("field name %q must match %s: %w", f.Name, identRe.String(), ErrInvalid)
	}
	if len(f.StoreIn) == 0 {
		return fmt.Errorf("field %q: store_in must contain at least one location: %w", f.Name, ErrInvalid)
	}
	if len(f.Fields) == 0 {
		return fmt.Errorf("field %q: array fields require a non-empty nested schema: %w", f.Name, ErrInvalid)
	}
	seen := make(map[string]bool, len(f.Fields))
	for i := range f.Fields {
		nested := &f.Fields[i]
		if seen[nested.Name] {
			return fmt.Errorf("field %q: duplicate nested field %q: %w", f.Name, nested.Name, ErrInvalid)
		}
		seen[nested.Name] = true
		if nested.Type == TypeArray {
			return fmt.Errorf("field %q: nested arrays are not supported: %w", f.Name, ErrInvalid)
		}
		if nested.Type == TypeFile {
			return fmt.Errorf("field %q: file fields cannot nest inside arrays: %w", f.Name, ErrInvalid)
		}
		if err := nested.validate(); err != nil {
			return err
		}
	}
	return nil
}
