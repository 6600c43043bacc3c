package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cortexdb/cortexdb/internal/store/postgres"
	"github.com/cortexdb/cortexdb/pkg/models"
)

// memStore is an in-memory Store for service tests.
type memStore struct {
	mu     sync.Mutex
	byHash map[string]*models.APIKey
	byID   map[uuid.UUID]*models.APIKey

	hashLookups atomic.Int32
	touched     chan uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{
		byHash:  make(map[string]*models.APIKey),
		byID:    make(map[uuid.UUID]*models.APIKey),
		touched: make(chan uuid.UUID, 8),
	}
}

func (m *memStore) CreateAPIKey(_ context.Context, hash, prefix string, req models.APIKeyCreate, perms models.Permissions, createdBy *uuid.UUID) (*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.byHash[hash]; dup {
		return nil, fmt.Errorf("api key: %w", postgres.ErrConflict)
	}
	key := &models.APIKey{
		ID:          uuid.New(),
		KeyHash:     hash,
		KeyPrefix:   prefix,
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Permissions: perms,
		CreatedAt:   time.Now(),
		CreatedBy:   createdBy,
		ExpiresAt:   req.ExpiresAt,
		Enabled:     true,
	}
	m.byHash[hash] = key
	m.byID[key.ID] = key
	return key, nil
}

func (m *memStore) GetAPIKeyByHash(_ context.Context, hash string) (*models.APIKey, error) {
	m.hashLookups.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.byHash[hash]
	if !ok {
		return nil, fmt.Errorf("api key: %w", postgres.ErrNotFound)
	}
	return key, nil
}

func (m *memStore) GetAPIKey(_ context.Context, id uuid.UUID) (*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("api key %s: %w", id, postgres.ErrNotFound)
	}
	return key, nil
}

func (m *memStore) ListAPIKeys(context.Context) ([]models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.APIKey, 0, len(m.byID))
	for _, k := range m.byID {
		out = append(out, *k)
	}
	return out, nil
}

func (m *memStore) UpdateAPIKey(_ context.Context, id uuid.UUID, upd models.APIKeyUpdate) (*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("api key %s: %w", id, postgres.ErrNotFound)
	}
	if upd.Name != nil {
		key.Name = *upd.Name
	}
	if upd.Enabled != nil {
		key.Enabled = *upd.Enabled
	}
	return key, nil
}

func (m *memStore) DeleteAPIKey(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("api key %s: %w", id, postgres.ErrNotFound)
	}
	delete(m.byID, id)
	delete(m.byHash, key.KeyHash)
	return nil
}

func (m *memStore) TouchAPIKey(_ context.Context, id uuid.UUID) error {
	select {
	case m.touched <- id:
	default:
	}
	return nil
}

func (m *memStore) CountAdminKeys(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range m.byID {
		if k.Type == models.KeyTypeAdmin && k.Enabled {
			n++
		}
	}
	return n, nil
}

func newTestService(store *memStore) *Service {
	return NewService(store, NewCache(5*time.Minute, time.Minute, nil), nil, nil)
}

func mintKey(t *testing.T, svc *Service, keyType models.APIKeyType, databases ...string) (*models.APIKeyCreated, string) {
	t.Helper()
	created, err := svc.CreateKey(context.Background(), models.APIKeyCreate{
		Name: "test-" + string(keyType), Type: keyType, Databases: databases,
	}, nil)
	if err != nil {
		t.Fatalf("CreateKey() error = %v", err)
	}
	return created, created.Key
}

func TestAuthenticateSuccessUsesCache(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	_, plaintext := mintKey(t, svc, models.KeyTypeDatabase, "crm")

	first, err := svc.Authenticate(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	second, err := svc.Authenticate(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("Authenticate() second call error = %v", err)
	}

	if first.ID != second.ID {
		t.Error("both calls should resolve the same key")
	}
	if n := store.hashLookups.Load(); n != 1 {
		t.Errorf("store lookups = %d, want 1 (second call should be a cache hit)", n)
	}

	select {
	case id := <-store.touched:
		if id != first.ID {
			t.Errorf("touched key %s, want %s", id, first.ID)
		}
	case <-time.After(2 * time.Second):
		t.Error("last_used_at was never touched")
	}
}

func TestAuthenticateFailures(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	disabled, disabledPlain := mintKey(t, svc, models.KeyTypeDatabase)
	enabled := false
	if _, err := svc.UpdateKey(context.Background(), disabled.ID, models.APIKeyUpdate{Enabled: &enabled}); err != nil {
		t.Fatalf("UpdateKey() error = %v", err)
	}

	expired, expiredPlain := mintKey(t, svc, models.KeyTypeReadonly)
	past := time.Now().Add(-time.Hour)
	store.byID[expired.ID].ExpiresAt = &past

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty key", "", ErrMissingKey},
		{"unknown key", "cortexdb_live_" + Hash("nope"), ErrInvalidKey},
		{"disabled key", disabledPlain, ErrKeyDisabled},
		{"expired key", expiredPlain, ErrKeyExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Authenticate(context.Background(), tt.raw)
			if !errors.Is(err, tt.want) {
				t.Errorf("Authenticate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAuthenticateExpiryBeatsCache(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	created, plaintext := mintKey(t, svc, models.KeyTypeDatabase)

	if _, err := svc.Authenticate(context.Background(), plaintext); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	// The key expires while still cached; the next call must notice.
	past := time.Now().Add(-time.Minute)
	store.byID[created.ID].ExpiresAt = &past

	if _, err := svc.Authenticate(context.Background(), plaintext); !errors.Is(err, ErrKeyExpired) {
		t.Errorf("Authenticate() error = %v, want ErrKeyExpired", err)
	}
}

func TestCreateKeyValidation(t *testing.T) {
	svc := newTestService(newMemStore())

	_, err := svc.CreateKey(context.Background(), models.APIKeyCreate{Type: models.KeyTypeAdmin}, nil)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("missing name: error = %v, want ErrValidation", err)
	}

	_, err = svc.CreateKey(context.Background(), models.APIKeyCreate{Name: "x", Type: "superuser"}, nil)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("bad type: error = %v, want ErrValidation", err)
	}
}

func TestCreateKeyPlaintextShape(t *testing.T) {
	svc := newTestService(newMemStore())
	created, plaintext := mintKey(t, svc, models.KeyTypeReadonly, "docs")

	if !regexp.MustCompile(`^cortexdb_test_[a-f0-9]{64}$`).MatchString(plaintext) {
		t.Errorf("plaintext %q has the wrong shape", plaintext)
	}
	if !created.Permissions.Readonly {
		t.Error("readonly key should carry readonly permissions")
	}
	if len(created.Permissions.Databases) != 1 || created.Permissions.Databases[0] != "docs" {
		t.Errorf("databases = %v, want [docs]", created.Permissions.Databases)
	}
}

func TestDeleteKeyGuardsSelf(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	created, plaintext := mintKey(t, svc, models.KeyTypeAdmin)

	caller, err := svc.Authenticate(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	if err := svc.DeleteKey(context.Background(), created.ID, caller); !errors.Is(err, ErrSelfDelete) {
		t.Errorf("DeleteKey(self) error = %v, want ErrSelfDelete", err)
	}
}

func TestDeleteKeyEvictsCache(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	victim, victimPlain := mintKey(t, svc, models.KeyTypeDatabase)
	_, adminPlain := mintKey(t, svc, models.KeyTypeAdmin)

	if _, err := svc.Authenticate(context.Background(), victimPlain); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	admin, err := svc.Authenticate(context.Background(), adminPlain)
	if err != nil {
		t.Fatalf("Authenticate(admin) error = %v", err)
	}

	if err := svc.DeleteKey(context.Background(), victim.ID, admin); err != nil {
		t.Fatalf("DeleteKey() error = %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), victimPlain); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("deleted key authenticated: error = %v, want ErrInvalidKey", err)
	}
}

func TestUpdateKeyEvictsCache(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	created, plaintext := mintKey(t, svc, models.KeyTypeDatabase)

	if _, err := svc.Authenticate(context.Background(), plaintext); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	enabled := false
	if _, err := svc.UpdateKey(context.Background(), created.ID, models.APIKeyUpdate{Enabled: &enabled}); err != nil {
		t.Fatalf("UpdateKey() error = %v", err)
	}

	if _, err := svc.Authenticate(context.Background(), plaintext); !errors.Is(err, ErrKeyDisabled) {
		t.Errorf("disabled key authenticated: error = %v, want ErrKeyDisabled", err)
	}
}

func TestPredicates(t *testing.T) {
	admin := &models.APIKey{Permissions: models.PermissionsForType(models.KeyTypeAdmin, nil)}
	scoped := &models.APIKey{Permissions: models.PermissionsForType(models.KeyTypeDatabase, []string{"crm"})}
	readonly := &models.APIKey{Permissions: models.PermissionsForType(models.KeyTypeReadonly, []string{"crm"})}

	if err := RequireAdmin(admin); err != nil {
		t.Errorf("RequireAdmin(admin) = %v", err)
	}
	if err := RequireAdmin(scoped); !errors.Is(err, ErrAdminRequired) {
		t.Errorf("RequireAdmin(scoped) = %v, want ErrAdminRequired", err)
	}
	if err := RequireAdmin(nil); !errors.Is(err, ErrAdminRequired) {
		t.Errorf("RequireAdmin(nil) = %v, want ErrAdminRequired", err)
	}

	if err := CheckDatabaseAccess(admin, "anything"); err != nil {
		t.Errorf("admin database access = %v", err)
	}
	if err := CheckDatabaseAccess(scoped, "crm"); err != nil {
		t.Errorf("scoped access to own database = %v", err)
	}
	if err := CheckDatabaseAccess(scoped, "other"); !errors.Is(err, ErrDatabaseScope) {
		t.Errorf("scoped access to other database = %v, want ErrDatabaseScope", err)
	}

	for _, op := range []string{OpRead, OpSearch, OpList, OpGet} {
		if err := CheckReadOnly(readonly, op); err != nil {
			t.Errorf("CheckReadOnly(readonly, %s) = %v", op, err)
		}
	}
	for _, op := range []string{OpCreate, OpUpdate, OpDelete, OpUpload} {
		if err := CheckReadOnly(readonly, op); !errors.Is(err, ErrReadOnly) {
			t.Errorf("CheckReadOnly(readonly, %s) = %v, want ErrReadOnly", op, err)
		}
	}
	if err := CheckReadOnly(scoped, OpDelete); err != nil {
		t.Errorf("CheckReadOnly(writable, delete) = %v", err)
	}

	if err := RequireManageDatabases(admin); err != nil {
		t.Errorf("RequireManageDatabases(admin) = %v", err)
	}
	if err := RequireManageDatabases(scoped); !errors.Is(err, ErrAdminRequired) {
		t.Errorf("RequireManageDatabases(scoped) = %v, want ErrAdminRequired", err)
	}
	if err := RequireManageCollections(scoped); err != nil {
		t.Errorf("RequireManageCollections(database key) = %v", err)
	}
	if err := RequireManageCollections(readonly); !errors.Is(err, ErrAdminRequired) {
		t.Errorf("RequireManageCollections(readonly) = %v, want ErrAdminRequired", err)
	}
	if err := RequireManageProviders(admin); err != nil {
		t.Errorf("RequireManageProviders(admin) = %v", err)
	}
	if err := RequireManageProviders(scoped); !errors.Is(err, ErrAdminRequired) {
		t.Errorf("RequireManageProviders(scoped) = %v, want ErrAdminRequired", err)
	}
}

func TestEnsureAdminKeyGenerates(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	result, err := svc.EnsureAdminKey(context.Background(), "")
	if err != nil {
		t.Fatalf("EnsureAdminKey() error = %v", err)
	}
	if !result.Created || !result.Generated {
		t.Fatalf("result = %+v, want created and generated", result)
	}
	if !regexp.MustCompile(`^cortexdb_admin_[a-f0-9]{64}$`).MatchString(result.Plaintext) {
		t.Errorf("plaintext %q has the wrong shape", result.Plaintext)
	}

	// The generated key authenticates and carries full admin permissions.
	key, err := svc.Authenticate(context.Background(), result.Plaintext)
	if err != nil {
		t.Fatalf("Authenticate(bootstrap) error = %v", err)
	}
	if !key.Permissions.Admin {
		t.Error("bootstrap key should be admin")
	}
}

func TestEnsureAdminKeyUsesConfigured(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	configured := "cortexdb_admin_" + Hash("seed")

	result, err := svc.EnsureAdminKey(context.Background(), configured)
	if err != nil {
		t.Fatalf("EnsureAdminKey() error = %v", err)
	}
	if !result.Created || result.Generated {
		t.Fatalf("result = %+v, want created from configuration", result)
	}
	if result.Plaintext != "" {
		t.Error("configured key must not be echoed back")
	}
	if _, err := svc.Authenticate(context.Background(), configured); err != nil {
		t.Errorf("configured key failed to authenticate: %v", err)
	}
}

func TestEnsureAdminKeyNoopWhenPresent(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	mintKey(t, svc, models.KeyTypeAdmin)

	result, err := svc.EnsureAdminKey(context.Background(), "")
	if err != nil {
		t.Fatalf("EnsureAdminKey() error = %v", err)
	}
	if result.Created {
		t.Error("admin key already present, bootstrap should be a no-op")
	}
}
