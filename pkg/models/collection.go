package models

import (
	"encoding/json"
	"time"
)

// CollectionInfo is a catalog row describing one collection. Schema is the
// stored schema document verbatim.
type CollectionInfo struct {
	Name      string          `json:"name"`
	Database  string          `json:"database,omitempty"`
	Schema    json.RawMessage `json:"schema"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CreationResult reports the physical resources a new collection owns.
type CreationResult struct {
	Collection       string `json:"collection"`
	Database         string `json:"database,omitempty"`
	PostgresTable    string `json:"postgres_table"`
	QdrantCollection string `json:"qdrant_collection,omitempty"`
	MinioBucket      string `json:"minio_bucket,omitempty"`
}
