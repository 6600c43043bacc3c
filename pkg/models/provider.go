package models

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingProvider is a registered embedding backend. APIKey is populated
// only on the secret-bearing read path; list responses carry HasAPIKey
// instead.
type EmbeddingProvider struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	Provider       string         `json:"provider"`
	EmbeddingModel string         `json:"embedding_model"`
	APIKey         string         `json:"-"`
	HasAPIKey      bool           `json:"has_api_key"`
	Metadata       map[string]any `json:"metadata"`
	Enabled        bool           `json:"enabled"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// EmbeddingProviderCreate is the request body for registering a provider.
type EmbeddingProviderCreate struct {
	Name           string         `json:"name"`
	Provider       string         `json:"provider"`
	EmbeddingModel string         `json:"embedding_model"`
	APIKey         string         `json:"api_key"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
