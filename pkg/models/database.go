package models

import (
	"time"

	"github.com/google/uuid"
)

// Database is a logical database: a namespace for collections with its own
// physical Postgres database.
type Database struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// DatabaseCreate is the request body for registering a database.
type DatabaseCreate struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
