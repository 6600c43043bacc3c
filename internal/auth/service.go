package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cortexdb/cortexdb/internal/observability"
	"github.com/cortexdb/cortexdb/internal/store/postgres"
	"github.com/cortexdb/cortexdb/pkg/models"
)

// Authentication failures (401 at the HTTP surface).
var (
	ErrMissingKey  = errors.New("missing API key")
	ErrInvalidKey  = errors.New("invalid API key")
	ErrKeyDisabled = errors.New("API key is disabled")
	ErrKeyExpired  = errors.New("API key has expired")
)

// Authorization failures (403 at the HTTP surface).
var (
	ErrAdminRequired = errors.New("admin privileges required")
	ErrDatabaseScope = errors.New("API key does not grant access to this database")
	ErrReadOnly      = errors.New("API key is read-only")
)

// Request failures (400 at the HTTP surface).
var (
	ErrValidation = errors.New("invalid request")
	ErrSelfDelete = errors.New("cannot delete your own API key")
)

// Store is the persistence surface the service uses, satisfied by the
// postgres adapter.
type Store interface {
	CreateAPIKey(ctx context.Context, hash, prefix string, req models.APIKeyCreate, perms models.Permissions, createdBy *uuid.UUID) (*models.APIKey, error)
	GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error)
	GetAPIKey(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]models.APIKey, error)
	UpdateAPIKey(ctx context.Context, id uuid.UUID, upd models.APIKeyUpdate) (*models.APIKey, error)
	DeleteAPIKey(ctx context.Context, id uuid.UUID) error
	TouchAPIKey(ctx context.Context, id uuid.UUID) error
	CountAdminKeys(ctx context.Context) (int, error)
}

// Service authenticates requests and manages API keys.
type Service struct {
	store   Store
	cache   *Cache
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewService builds the auth service.
func NewService(store Store, cache *Cache, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{store: store, cache: cache, logger: logger, metrics: metrics}
}

// Authenticate resolves a plaintext key to its stored record. The happy path
// is one cache lookup; misses hit the database and then populate the cache.
// last_used_at is touched in the background so it never delays a request.
func (s *Service) Authenticate(ctx context.Context, rawKey string) (*models.APIKey, error) {
	if rawKey == "" {
		s.observeAuth("missing")
		return nil, ErrMissingKey
	}

	hash := Hash(rawKey)
	if key, ok := s.cache.Get(hash); ok {
		if err := validateKey(key); err != nil {
			s.cache.Remove(hash)
			s.observeAuth(authOutcome(err))
			return nil, err
		}
		s.observeAuth("success")
		return key, nil
	}

	key, err := s.store.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			s.observeAuth("invalid")
			return nil, ErrInvalidKey
		}
		s.observeAuth("error")
		return nil, fmt.Errorf("look up api key: %w", err)
	}

	// The hash was the lookup key, but re-verify what the row actually
	// carries before trusting it.
	if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		s.observeAuth("invalid")
		return nil, ErrInvalidKey
	}
	if err := validateKey(key); err != nil {
		s.observeAuth(authOutcome(err))
		return nil, err
	}

	s.cache.Put(hash, key)
	s.touchAsync(key.ID)
	s.observeAuth("success")
	return key, nil
}

func validateKey(key *models.APIKey) error {
	if !key.Enabled {
		return ErrKeyDisabled
	}
	if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
		return ErrKeyExpired
	}
	return nil
}

func authOutcome(err error) string {
	switch {
	case errors.Is(err, ErrKeyDisabled):
		return "disabled"
	case errors.Is(err, ErrKeyExpired):
		return "expired"
	default:
		return "invalid"
	}
}

// touchAsync updates last_used_at off the request path. The request context
// is already racing the response, so a detached one is used.
func (s *Service) touchAsync(id uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.TouchAPIKey(ctx, id); err != nil && s.logger != nil {
			s.logger.Debug(ctx, "touch api key failed", "key_id", id.String(), "error", err)
		}
	}()
}

// CreateKey mints and stores a new API key. The plaintext appears only in
// the returned value.
func (s *Service) CreateKey(ctx context.Context, req models.APIKeyCreate, createdBy *uuid.UUID) (*models.APIKeyCreated, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("name is required: %w", ErrValidation)
	}
	switch req.Type {
	case models.KeyTypeAdmin, models.KeyTypeDatabase, models.KeyTypeReadonly:
	default:
		return nil, fmt.Errorf("type must be admin, database, or readonly: %w", ErrValidation)
	}

	plaintext, hash, prefix, err := Generate(req.Type)
	if err != nil {
		return nil, err
	}

	perms := models.PermissionsForType(req.Type, req.Databases)
	key, err := s.store.CreateAPIKey(ctx, hash, prefix, req, perms, createdBy)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info(ctx, "api key created",
			"key_id", key.ID.String(), "name", key.Name, "type", string(key.Type))
	}
	return &models.APIKeyCreated{
		ID:          key.ID,
		Key:         plaintext,
		KeyPrefix:   key.KeyPrefix,
		Name:        key.Name,
		Type:        key.Type,
		Permissions: key.Permissions,
		CreatedAt:   key.CreatedAt,
		ExpiresAt:   key.ExpiresAt,
	}, nil
}

// GetKey returns one key by id.
func (s *Service) GetKey(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	return s.store.GetAPIKey(ctx, id)
}

// ListKeys returns all keys, newest first.
func (s *Service) ListKeys(ctx context.Context) ([]models.APIKey, error) {
	return s.store.ListAPIKeys(ctx)
}

// UpdateKey applies a partial update and drops the key from the auth cache
// so the change takes effect immediately.
func (s *Service) UpdateKey(ctx context.Context, id uuid.UUID, upd models.APIKeyUpdate) (*models.APIKey, error) {
	key, err := s.store.UpdateAPIKey(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	s.cache.Remove(key.KeyHash)
	return key, nil
}

// DeleteKey removes a key. A key cannot delete itself: that would cut off
// the caller mid-flight and, for the last admin key, brick the deployment.
func (s *Service) DeleteKey(ctx context.Context, id uuid.UUID, caller *models.APIKey) error {
	if caller != nil && caller.ID == id {
		return ErrSelfDelete
	}

	key, err := s.store.GetAPIKey(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAPIKey(ctx, id); err != nil {
		return err
	}
	s.cache.Remove(key.KeyHash)

	if s.logger != nil {
		s.logger.Info(ctx, "api key deleted", "key_id", id.String(), "name", key.Name)
	}
	return nil
}

func (s *Service) observeAuth(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordAuth(outcome)
	}
}
