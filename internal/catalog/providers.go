package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cortexdb/cortexdb/internal/observability"
	"github.com/cortexdb/cortexdb/internal/schema"
	"github.com/cortexdb/cortexdb/pkg/models"
)

// ProviderStore is the metadata surface the provider service uses.
type ProviderStore interface {
	CreateProvider(ctx context.Context, req models.EmbeddingProviderCreate) (*models.EmbeddingProvider, error)
	ListProviders(ctx context.Context) ([]models.EmbeddingProvider, error)
	GetProvider(ctx context.Context, id uuid.UUID, includeSecret bool) (*models.EmbeddingProvider, error)
	DeleteProvider(ctx context.Context, id uuid.UUID) error
}

// Providers manages registered embedding providers.
type Providers struct {
	store     ProviderStore
	embedders Embedders
	logger    *observability.Logger
}

// NewProviders builds the provider service.
func NewProviders(store ProviderStore, embedders Embedders, logger *observability.Logger) *Providers {
	return &Providers{store: store, embedders: embedders, logger: logger}
}

// Create registers a provider. The secret is stored as-is; responses carry
// only has_api_key.
func (p *Providers) Create(ctx context.Context, req models.EmbeddingProviderCreate) (*models.EmbeddingProvider, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("provider name is required: %w", schema.ErrInvalid)
	}
	switch req.Provider {
	case "openai", "gemini":
	default:
		return nil, fmt.Errorf("provider must be %q or %q, got %q: %w", "openai", "gemini", req.Provider, schema.ErrInvalid)
	}
	if req.APIKey == "" {
		return nil, fmt.Errorf("api_key is required: %w", schema.ErrInvalid)
	}
	if req.EmbeddingModel == "" {
		return nil, fmt.Errorf("embedding_model is required: %w", schema.ErrInvalid)
	}

	provider, err := p.store.CreateProvider(ctx, req)
	if err != nil {
		return nil, err
	}

	p.embedders.Invalidate(provider.ID.String())
	p.logger.Info(ctx, "embedding provider registered",
		"provider_id", provider.ID.String(), "name", provider.Name, "kind", provider.Provider)
	return provider, nil
}

// List returns all providers with secrets masked.
func (p *Providers) List(ctx context.Context) ([]models.EmbeddingProvider, error) {
	return p.store.ListProviders(ctx)
}

// Get returns one provider with its secret masked.
func (p *Providers) Get(ctx context.Context, id uuid.UUID) (*models.EmbeddingProvider, error) {
	return p.store.GetProvider(ctx, id, false)
}

// Delete removes a provider and evicts any embedder built from it.
// Collections bound to the provider fail on next use until rebound.
func (p *Providers) Delete(ctx context.Context, id uuid.UUID) error {
	if err := p.store.DeleteProvider(ctx, id); err != nil {
		return err
	}
	p.embedders.Invalidate(id.String())
	p.logger.Info(ctx, "embedding provider deleted", "provider_id", id.String())
	return nil
}
