// Package embed turns text into vectors. It exposes one Embedder interface,
// provider implementations for OpenAI and Gemini, and a Registry that caches
// a ready embedder per registered provider with its probed dimension.
package embed

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cortexdb/cortexdb/internal/config"
	"github.com/cortexdb/cortexdb/internal/observability"
	"github.com/cortexdb/cortexdb/pkg/models"
)

// probeText is embedded once per provider to learn the vector dimension.
const probeText = "probe"

// defaultKey caches the process-default provider built from configuration.
const defaultKey = "__default__"

// Embedder produces embedding vectors.
type Embedder interface {
	// EmbedText embeds a single text.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in order; result[i] corresponds to texts[i].
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dim reports the provider's vector dimension.
	Dim(ctx context.Context) (int, error)
}

// ProviderCatalog loads registered embedding provider rows.
type ProviderCatalog interface {
	GetProvider(ctx context.Context, id uuid.UUID, includeSecret bool) (*models.EmbeddingProvider, error)
}

// Registry hands out embedders keyed by provider id. The first use of a key
// builds the client and probes its dimension under a per-key lock, so
// concurrent first use costs exactly one probe; later uses are cache hits.
type Registry struct {
	catalog  ProviderCatalog
	defaults config.EmbeddingsConfig
	logger   *observability.Logger
	metrics  *observability.Metrics

	// build is swapped in tests.
	build func(ctx context.Context, providerID string) (Embedder, error)

	mu      sync.Mutex
	entries map[string]*entry
	locks   map[string]*sync.Mutex
}

// entry memoizes the probed dimension so Dim never reaches the provider
// after first use.
type entry struct {
	Embedder
	dim int
}

func (e *entry) Dim(context.Context) (int, error) { return e.dim, nil }

// NewRegistry builds a registry over the provider catalog. The defaults
// section backs collections that do not bind a registered provider.
func NewRegistry(catalog ProviderCatalog, defaults config.EmbeddingsConfig, logger *observability.Logger, metrics *observability.Metrics) *Registry {
	r := &Registry{
		catalog:  catalog,
		defaults: defaults,
		logger:   logger,
		metrics:  metrics,
		entries:  make(map[string]*entry),
		locks:    make(map[string]*sync.Mutex),
	}
	r.build = r.buildProvider
	return r
}

// ForProvider returns the cached embedder for a provider id; the empty id
// selects the process default. The returned embedder reports its dimension
// from cache.
func (r *Registry) ForProvider(ctx context.Context, providerID string) (Embedder, error) {
	key := providerID
	if key == "" {
		key = defaultKey
	}

	lock := r.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	cached, ok := r.entries[key]
	r.mu.Unlock()
	if ok {
		if r.metrics != nil {
			r.metrics.RecordCacheLookup("embedder", true)
		}
		return cached, nil
	}
	if r.metrics != nil {
		r.metrics.RecordCacheLookup("embedder", false)
	}

	embedder, err := r.build(ctx, providerID)
	if err != nil {
		return nil, err
	}

	dim, err := embedder.Dim(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe embedding dimension: %w", err)
	}
	if r.logger != nil {
		r.logger.Info(ctx, "embedding provider ready", "provider", key, "dim", dim)
	}

	e := &entry{Embedder: embedder, dim: dim}
	r.mu.Lock()
	r.entries[key] = e
	r.mu.Unlock()
	return e, nil
}

// Invalidate drops a cached embedder, forcing a rebuild on next use. Called
// when a registered provider is updated or deleted.
func (r *Registry) Invalidate(providerID string) {
	key := providerID
	if key == "" {
		key = defaultKey
	}
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

func (r *Registry) keyLock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

// buildProvider constructs the raw embedder for a provider id: a catalog
// row when an id is given, the configuration defaults otherwise.
func (r *Registry) buildProvider(ctx context.Context, providerID string) (Embedder, error) {
	if providerID == "" {
		return r.buildDefault()
	}

	id, err := uuid.Parse(providerID)
	if err != nil {
		return nil, fmt.Errorf("embedding provider id %q: %w", providerID, err)
	}
	row, err := r.catalog.GetProvider(ctx, id, true)
	if err != nil {
		return nil, fmt.Errorf("load embedding provider %s: %w", providerID, err)
	}
	if !row.Enabled {
		return nil, fmt.Errorf("embedding provider %s is disabled", row.Name)
	}

	switch row.Provider {
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:  row.APIKey,
			BaseURL: metadataString(row.Metadata, "base_url"),
			Model:   row.EmbeddingModel,
			Metrics: r.metrics,
		}), nil
	case "gemini":
		return NewGemini(GeminiConfig{
			APIKey:  row.APIKey,
			Model:   row.EmbeddingModel,
			Metrics: r.metrics,
		})
	default:
		return nil, fmt.Errorf("embedding provider %s: unsupported provider %q", row.Name, row.Provider)
	}
}

func (r *Registry) buildDefault() (Embedder, error) {
	switch r.defaults.Provider {
	case "gemini":
		return NewGemini(GeminiConfig{
			APIKey:  r.defaults.APIKey,
			Model:   r.defaults.Model,
			Metrics: r.metrics,
		})
	default:
		return NewOpenAI(OpenAIConfig{
			APIKey:  r.defaults.APIKey,
			BaseURL: r.defaults.BaseURL,
			Model:   r.defaults.Model,
			Metrics: r.metrics,
		}), nil
	}
}

// NewDefaultVision builds the Gemini vision client from configuration, or
// nil when no Gemini key is available. Callers must nil-check the concrete
// value before storing it in an interface.
func NewDefaultVision(cfg config.EmbeddingsConfig, metrics *observability.Metrics) (*Gemini, error) {
	key := cfg.VisionAPIKey
	if key == "" && cfg.Provider == "gemini" {
		key = cfg.APIKey
	}
	if key == "" {
		return nil, nil
	}
	return NewGemini(GeminiConfig{
		APIKey:      key,
		Model:       cfg.Model,
		VisionModel: cfg.VisionModel,
		Metrics:     metrics,
	})
}

func metadataString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if s, ok := meta[key].(string); ok {
		return s
	}
	return ""
}
