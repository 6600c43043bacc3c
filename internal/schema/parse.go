package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/cortexdb/cortexdb/internal/value"
)

// schemaDoc is the wire shape of a schema, both for uploaded YAML/JSON
// files and for the JSON document persisted in the control table.
type schemaDoc struct {
	Name        string     `json:"name" yaml:"name"`
	Database    string     `json:"database,omitempty" yaml:"database,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      []fieldDoc `json:"fields" yaml:"fields"`
	Config      *Config    `json:"config,omitempty" yaml:"config,omitempty"`
}

// fieldDoc is the wire shape of one field. Scalar and array fields share it;
// the type discriminator decides which variant is built.
type fieldDoc struct {
	Name        string          `json:"name" yaml:"name"`
	Type        FieldType       `json:"type" yaml:"type"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool            `json:"required,omitempty" yaml:"required,omitempty"`
	Indexed     bool            `json:"indexed,omitempty" yaml:"indexed,omitempty"`
	Unique      bool            `json:"unique,omitempty" yaml:"unique,omitempty"`
	Filterable  bool            `json:"filterable,omitempty" yaml:"filterable,omitempty"`
	Vectorize   bool            `json:"vectorize,omitempty" yaml:"vectorize,omitempty"`
	Default     any             `json:"default,omitempty" yaml:"default,omitempty"`
	Values      []string        `json:"values,omitempty" yaml:"values,omitempty"`
	StoreIn     []StoreLocation `json:"store_in,omitempty" yaml:"store_in,omitempty"`
	Schema      []fieldDoc      `json:"schema,omitempty" yaml:"schema,omitempty"`
	Extract     *extractDoc     `json:"extract_config,omitempty" yaml:"extract_config,omitempty"`
}

// extractDoc uses pointers for the booleans so that an absent key keeps its
// default of true.
type extractDoc struct {
	ExtractText  *bool `json:"extract_text,omitempty" yaml:"extract_text,omitempty"`
	OCRIfNeeded  *bool `json:"ocr_if_needed,omitempty" yaml:"ocr_if_needed,omitempty"`
	ChunkSize    int   `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`
	ChunkOverlap int   `json:"chunk_overlap,omitempty" yaml:"chunk_overlap,omitempty"`
}

// Parse decodes a schema file. YAML and JSON are both accepted; unknown
// keys, multiple documents, and invariant violations are rejected with
// ErrInvalid. The returned schema is validated.
func Parse(data []byte) (*Schema, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc schemaDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse schema: %v: %w", err, ErrInvalid)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("schema file must contain a single document: %w", ErrInvalid)
	}

	s, err := doc.build()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (d *schemaDoc) build() (*Schema, error) {
	s := &Schema{
		Name:        d.Name,
		Database:    d.Database,
		Description: d.Description,
	}
	if d.Config != nil {
		s.Config = *d.Config
	}
	for i := range d.Fields {
		f, err := d.Fields[i].build()
		if err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, f)
	}
	return s, nil
}

func (d *fieldDoc) build() (Field, error) {
	if d.Type == TypeArray {
		if len(d.Schema) == 0 {
			return nil, fmt.Errorf("field %q: array fields require a non-empty nested schema: %w", d.Name, ErrInvalid)
		}
		af := &ArrayField{
			Name:        d.Name,
			Description: d.Description,
			Required:    d.Required,
			StoreIn:     d.storeIn(),
		}
		for i := range d.Schema {
			nested := &d.Schema[i]
			if nested.Type == TypeArray {
				return nil, fmt.Errorf("field %q: nested arrays are not supported: %w", d.Name, ErrInvalid)
			}
			sf, err := nested.buildScalar()
			if err != nil {
				return nil, err
			}
			af.Fields = append(af.Fields, *sf)
		}
		return af, nil
	}
	return d.buildScalar()
}

func (d *fieldDoc) buildScalar() (*ScalarField, error) {
	if len(d.Schema) > 0 {
		return nil, fmt.Errorf("field %q: schema is only allowed for array fields: %w", d.Name, ErrInvalid)
	}
	sf := &ScalarField{
		Name:        d.Name,
		Type:        d.Type,
		Description: d.Description,
		Required:    d.Required,
		Indexed:     d.Indexed,
		Unique:      d.Unique,
		Filterable:  d.Filterable,
		Vectorize:   d.Vectorize,
		Values:      d.Values,
		StoreIn:     d.storeIn(),
	}
	if d.Default != nil {
		sf.Default = value.FromJSON(d.Default)
		sf.HasDefault = true
	}
	if d.Extract != nil {
		cfg := DefaultExtractConfig()
		if d.Extract.ExtractText != nil {
			cfg.ExtractText = *d.Extract.ExtractText
		}
		if d.Extract.OCRIfNeeded != nil {
			cfg.OCRIfNeeded = *d.Extract.OCRIfNeeded
		}
		cfg.ChunkSize = d.Extract.ChunkSize
		cfg.ChunkOverlap = d.Extract.ChunkOverlap
		sf.Extract = &cfg
	}
	return sf, nil
}

// storeIn applies the default routing of postgres-only when store_in is
// absent.
func (d *fieldDoc) storeIn() []StoreLocation {
	if len(d.StoreIn) == 0 {
		return []StoreLocation{StorePostgres}
	}
	return d.StoreIn
}

func (s *Schema) doc() *schemaDoc {
	doc := &schemaDoc{
		Name:        s.Name,
		Database:    s.Database,
		Description: s.Description,
	}
	if s.Config != (Config{}) {
		cfg := s.Config
		doc.Config = &cfg
	}
	for _, f := range s.Fields {
		doc.Fields = append(doc.Fields, fieldToDoc(f))
	}
	return doc
}

func fieldToDoc(f Field) fieldDoc {
	switch field := f.(type) {
	case *ScalarField:
		d := fieldDoc{
			Name:        field.Name,
			Type:        field.Type,
			Description: field.Description,
			Required:    field.Required,
			Indexed:     field.Indexed,
			Unique:      field.Unique,
			Filterable:  field.Filterable,
			Vectorize:   field.Vectorize,
			Values:      field.Values,
			StoreIn:     field.StoreIn,
		}
		if field.HasDefault {
			d.Default = field.Default.ToJSON()
		}
		if field.Extract != nil {
			extractText := field.Extract.ExtractText
			ocr := field.Extract.OCRIfNeeded
			d.Extract = &extractDoc{
				ExtractText:  &extractText,
				OCRIfNeeded:  &ocr,
				ChunkSize:    field.Extract.ChunkSize,
				ChunkOverlap: field.Extract.ChunkOverlap,
			}
		}
		return d
	case *ArrayField:
		d := fieldDoc{
			Name:        field.Name,
			Type:        TypeArray,
			Description: field.Description,
			Required:    field.Required,
			StoreIn:     field.StoreIn,
		}
		for i := range field.Fields {
			d.Schema = append(d.Schema, fieldToDoc(&field.Fields[i]))
		}
		return d
	default:
		return fieldDoc{Name: f.FieldName()}
	}
}

// MarshalJSON serialises the schema into the wire document persisted in the
// control table.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.doc())
}

// UnmarshalJSON rebuilds a schema from its persisted wire document.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var doc schemaDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode schema document: %w", err)
	}
	built, err := doc.build()
	if err != nil {
		return err
	}
	*s = *built
	return nil
}
