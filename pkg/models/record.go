package models

import "github.com/google/uuid"

// RecordCreated is returned after ingesting a record.
type RecordCreated struct {
	ID             uuid.UUID         `json:"id"`
	Collection     string            `json:"collection"`
	VectorsCreated int               `json:"vectors_created"`
	Files          map[string]string `json:"files,omitempty"`
}

// RecordUpdated is returned after a partial update.
type RecordUpdated struct {
	ID             uuid.UUID `json:"id"`
	VectorsCreated int       `json:"vectors_created"`
	UpdatedFields  []string  `json:"updated_fields"`
}

// RecordDetail is a hydrated record: the stored fields plus presigned URLs
// for any file fields.
type RecordDetail struct {
	ID     uuid.UUID         `json:"id"`
	Record map[string]any    `json:"record"`
	Files  map[string]string `json:"files,omitempty"`
}

// RecordVector is one stored vector point for a record, without the vector
// itself.
type RecordVector struct {
	ID         string `json:"id"`
	Field      string `json:"field"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// QueryResponse carries a relational-only filter query result.
type QueryResponse struct {
	Results []map[string]any `json:"results"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}
