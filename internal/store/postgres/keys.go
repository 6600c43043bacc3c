package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cortexdb/cortexdb/pkg/models"
)

// ErrNoFields marks an update request with nothing to change.
var ErrNoFields = errors.New("no fields to update")

const apiKeyColumns = `id, key_hash, key_prefix, name, description, type, permissions,
	created_at, created_by, last_used_at, expires_at, enabled`

// CreateAPIKey persists a new key. The plaintext never reaches this layer;
// callers pass the hash and display prefix.
func (s *Store) CreateAPIKey(ctx context.Context, hash, prefix string, req models.APIKeyCreate, perms models.Permissions, createdBy *uuid.UUID) (*models.APIKey, error) {
	permsJSON, err := json.Marshal(perms)
	if err != nil {
		return nil, fmt.Errorf("marshal permissions: %w", err)
	}

	var createdByArg any
	if createdBy != nil {
		createdByArg = *createdBy
	}
	var expiresArg any
	if req.ExpiresAt != nil {
		expiresArg = *req.ExpiresAt
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO api_keys (key_hash, key_prefix, name, description, type, permissions, created_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
		RETURNING `+apiKeyColumns,
		hash, prefix, req.Name, nullString(req.Description), string(req.Type), string(permsJSON),
		createdByArg, expiresArg)

	key, err := scanAPIKey(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("api key: %w", ErrConflict)
		}
		return nil, fmt.Errorf("insert api key: %w", err)
	}
	return key, nil
}

// GetAPIKeyByHash is the authentication lookup.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, hash)
	key, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("api key: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query api key by hash: %w", err)
	}
	return key, nil
}

// GetAPIKey looks a key up by id.
func (s *Store) GetAPIKey(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id)
	key, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("api key %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query api key %s: %w", id, err)
	}
	return key, nil
}

// ListAPIKeys returns every key ordered by creation time, newest first.
func (s *Store) ListAPIKeys(ctx context.Context) ([]models.APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query api keys: %w", err)
	}
	defer rows.Close()

	var out []models.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		out = append(out, *key)
	}
	return out, rows.Err()
}

// UpdateAPIKey applies a partial update. The databases field patches
// permissions.databases in place via jsonb_set.
func (s *Store) UpdateAPIKey(ctx context.Context, id uuid.UUID, upd models.APIKeyUpdate) (*models.APIKey, error) {
	var sets []string
	var args []any
	argNum := 1

	add := func(expr string, val any) {
		sets = append(sets, fmt.Sprintf(expr, argNum))
		args = append(args, val)
		argNum++
	}

	if upd.Name != nil {
		add("name = $%d", *upd.Name)
	}
	if upd.Description != nil {
		add("description = $%d", *upd.Description)
	}
	if upd.Databases != nil {
		dbJSON, err := json.Marshal(upd.Databases)
		if err != nil {
			return nil, fmt.Errorf("marshal databases: %w", err)
		}
		add("permissions = jsonb_set(permissions, '{databases}', $%d::jsonb)", string(dbJSON))
	}
	if upd.ExpiresAt != nil {
		add("expires_at = $%d", *upd.ExpiresAt)
	}
	if upd.Enabled != nil {
		add("enabled = $%d", *upd.Enabled)
	}

	if len(sets) == 0 {
		return nil, fmt.Errorf("no fields to update: %w", ErrNoFields)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE api_keys SET %s WHERE id = $%d RETURNING `+apiKeyColumns,
		strings.Join(sets, ", "), argNum)

	row := s.db.QueryRowContext(ctx, query, args...)
	key, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("api key %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update api key %s: %w", id, err)
	}
	return key, nil
}

// DeleteAPIKey removes a key.
func (s *Store) DeleteAPIKey(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete api key %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("api key %s: %w", id, ErrNotFound)
	}
	return nil
}

// TouchAPIKey stamps last_used_at. Runs best-effort off the request path.
func (s *Store) TouchAPIKey(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, id)
	return err
}

// CountAdminKeys reports how many enabled admin keys exist; zero triggers
// bootstrap.
func (s *Store) CountAdminKeys(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM api_keys WHERE type = 'admin' AND enabled = TRUE`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count admin keys: %w", err)
	}
	return n, nil
}

type rowScannerIface interface {
	Scan(dest ...any) error
}

func scanAPIKey(row rowScannerIface) (*models.APIKey, error) {
	var key models.APIKey
	var desc sql.NullString
	var keyType string
	var permsRaw []byte
	var createdBy uuid.NullUUID
	var lastUsed, expires sql.NullTime

	err := row.Scan(&key.ID, &key.KeyHash, &key.KeyPrefix, &key.Name, &desc, &keyType,
		&permsRaw, &key.CreatedAt, &createdBy, &lastUsed, &expires, &key.Enabled)
	if err != nil {
		return nil, err
	}

	key.Description = desc.String
	key.Type = models.APIKeyType(keyType)
	if err := json.Unmarshal(permsRaw, &key.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	if createdBy.Valid {
		id := createdBy.UUID
		key.CreatedBy = &id
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		key.LastUsedAt = &t
	}
	if expires.Valid {
		t := expires.Time
		key.ExpiresAt = &t
	}
	return &key, nil
}
