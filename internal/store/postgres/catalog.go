package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/cortexdb/cortexdb/internal/schema"
	"github.com/cortexdb/cortexdb/pkg/models"
)

// UpsertCollection writes the collection control row, replacing the stored
// schema on name conflicts.
func (s *Store) UpsertCollection(ctx context.Context, sch *schema.Schema) error {
	doc, err := json.Marshal(sch)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	var providerID any
	if sch.Config.EmbeddingProviderID != "" {
		id, err := uuid.Parse(sch.Config.EmbeddingProviderID)
		if err != nil {
			return fmt.Errorf("invalid embedding_provider_id %q: %w", sch.Config.EmbeddingProviderID, schema.ErrInvalid)
		}
		providerID = id
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO _cortex_collections (name, database_name, schema, embedding_model, embedding_provider_id, chunk_size, chunk_overlap)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE
		SET database_name = EXCLUDED.database_name,
			schema = EXCLUDED.schema,
			embedding_model = EXCLUDED.embedding_model,
			embedding_provider_id = EXCLUDED.embedding_provider_id,
			chunk_size = EXCLUDED.chunk_size,
			chunk_overlap = EXCLUDED.chunk_overlap,
			updated_at = NOW()
	`, sch.Name, nullString(sch.Database), string(doc), nullString(sch.Config.EmbeddingModel),
		providerID, nullInt(sch.Config.ChunkSize), nullInt(sch.Config.ChunkOverlap))
	if err != nil {
		return fmt.Errorf("upsert collection %s: %w", sch.Name, err)
	}
	return nil
}

// GetCollectionSchema loads and decodes the stored schema.
func (s *Store) GetCollectionSchema(ctx context.Context, name string) (*schema.Schema, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT schema FROM _cortex_collections WHERE name = $1`, name).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("collection %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", name, err)
	}

	var sch schema.Schema
	if err := json.Unmarshal(doc, &sch); err != nil {
		return nil, fmt.Errorf("decode schema for %s: %w", name, err)
	}
	return &sch, nil
}

// ListCollections returns catalog rows, optionally scoped to one database.
func (s *Store) ListCollections(ctx context.Context, database string) ([]models.CollectionInfo, error) {
	query := `SELECT name, database_name, schema, created_at, updated_at FROM _cortex_collections`
	args := []any{}
	if database != "" {
		query += ` WHERE database_name = $1`
		args = append(args, database)
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	defer rows.Close()

	var out []models.CollectionInfo
	for rows.Next() {
		var info models.CollectionInfo
		var db sql.NullString
		var doc []byte
		if err := rows.Scan(&info.Name, &db, &doc, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		info.Database = db.String
		info.Schema = json.RawMessage(doc)
		out = append(out, info)
	}
	return out, rows.Err()
}

// DropCollection removes the collection's data tables (children first) and
// its control row in one transaction.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	table := strings.ToLower(name)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin drop collection: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name LIKE $1 || '\_%'
	`, table)
	if err != nil {
		return fmt.Errorf("list child tables: %w", err)
	}
	var children []string
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			rows.Close()
			return fmt.Errorf("scan child table: %w", err)
		}
		children = append(children, child)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("child tables: %w", err)
	}
	rows.Close()

	for _, child := range children {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, quoteIdent(child))); err != nil {
			return fmt.Errorf("drop child table %s: %w", child, err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, quoteIdent(table))); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM _cortex_collections WHERE name = $1`, name); err != nil {
		return fmt.Errorf("delete collection row %s: %w", name, err)
	}

	return tx.Commit()
}

// RegisterDatabase inserts the control row for a logical database.
func (s *Store) RegisterDatabase(ctx context.Context, req models.DatabaseCreate) (*models.Database, error) {
	meta := req.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	var db models.Database
	var desc sql.NullString
	var metaRaw []byte
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO _cortex_databases (name, description, metadata)
		VALUES ($1, $2, $3::jsonb)
		RETURNING id, name, description, metadata, created_at, updated_at
	`, req.Name, nullString(req.Description), string(metaJSON)).Scan(
		&db.ID, &db.Name, &desc, &metaRaw, &db.CreatedAt, &db.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("database %q: %w", req.Name, ErrConflict)
		}
		return nil, fmt.Errorf("register database %s: %w", req.Name, err)
	}
	db.Description = desc.String
	if err := json.Unmarshal(metaRaw, &db.Metadata); err != nil {
		return nil, fmt.Errorf("decode database metadata: %w", err)
	}
	return &db, nil
}

// CreatePhysicalDatabase creates the Postgres database and initializes its
// control tables. CREATE DATABASE cannot run inside a transaction, so this
// happens on a dedicated admin connection.
func (s *Store) CreatePhysicalDatabase(ctx context.Context, name string) error {
	adminDSN, err := replaceDatabase(s.dsn, "postgres")
	if err != nil {
		return err
	}
	admin, err := sql.Open("postgres", adminDSN)
	if err != nil {
		return fmt.Errorf("open admin connection: %w", err)
	}
	defer admin.Close()

	if _, err := admin.ExecContext(ctx, fmt.Sprintf(`CREATE DATABASE %s`, quoteIdent(name))); err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}

	dbDSN, err := replaceDatabase(s.dsn, name)
	if err != nil {
		return err
	}
	db, err := sql.Open("postgres", dbDSN)
	if err != nil {
		return fmt.Errorf("open new database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`); err != nil {
		return fmt.Errorf("init extension in %s: %w", name, err)
	}
	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _cortex_collections (
			name TEXT PRIMARY KEY,
			database_name TEXT,
			schema JSONB NOT NULL,
			embedding_model TEXT,
			embedding_provider_id UUID,
			chunk_size INTEGER,
			chunk_overlap INTEGER,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("init control tables in %s: %w", name, err)
	}
	return nil
}

// GetDatabase looks up a logical database by name.
func (s *Store) GetDatabase(ctx context.Context, name string) (*models.Database, error) {
	var db models.Database
	var desc sql.NullString
	var metaRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, metadata, created_at, updated_at
		FROM _cortex_databases WHERE name = $1
	`, name).Scan(&db.ID, &db.Name, &desc, &metaRaw, &db.CreatedAt, &db.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("database %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query database %s: %w", name, err)
	}
	db.Description = desc.String
	if err := json.Unmarshal(metaRaw, &db.Metadata); err != nil {
		return nil, fmt.Errorf("decode database metadata: %w", err)
	}
	return &db, nil
}

// ListDatabases returns all registered logical databases.
func (s *Store) ListDatabases(ctx context.Context) ([]models.Database, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, metadata, created_at, updated_at
		FROM _cortex_databases ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query databases: %w", err)
	}
	defer rows.Close()

	var out []models.Database
	for rows.Next() {
		var db models.Database
		var desc sql.NullString
		var metaRaw []byte
		if err := rows.Scan(&db.ID, &db.Name, &desc, &metaRaw, &db.CreatedAt, &db.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan database: %w", err)
		}
		db.Description = desc.String
		if err := json.Unmarshal(metaRaw, &db.Metadata); err != nil {
			return nil, fmt.Errorf("decode database metadata: %w", err)
		}
		out = append(out, db)
	}
	return out, rows.Err()
}

// DeregisterDatabase removes the control row.
func (s *Store) DeregisterDatabase(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM _cortex_databases WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("deregister database %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("database %q: %w", name, ErrNotFound)
	}
	return nil
}

// DropPhysicalDatabase terminates open sessions and drops the Postgres
// database.
func (s *Store) DropPhysicalDatabase(ctx context.Context, name string) error {
	adminDSN, err := replaceDatabase(s.dsn, "postgres")
	if err != nil {
		return err
	}
	admin, err := sql.Open("postgres", adminDSN)
	if err != nil {
		return fmt.Errorf("open admin connection: %w", err)
	}
	defer admin.Close()

	_, err = admin.ExecContext(ctx, `
		SELECT pg_terminate_backend(pg_stat_activity.pid)
		FROM pg_stat_activity
		WHERE pg_stat_activity.datname = $1 AND pid <> pg_backend_pid()
	`, name)
	if err != nil {
		return fmt.Errorf("terminate sessions for %s: %w", name, err)
	}

	if _, err := admin.ExecContext(ctx, fmt.Sprintf(`DROP DATABASE IF EXISTS %s`, quoteIdent(name))); err != nil {
		return fmt.Errorf("drop database %s: %w", name, err)
	}
	return nil
}

// CreateProvider registers an embedding provider.
func (s *Store) CreateProvider(ctx context.Context, req models.EmbeddingProviderCreate) (*models.EmbeddingProvider, error) {
	meta := req.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	var p models.EmbeddingProvider
	var metaRaw []byte
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO _cortex_embedding_providers (name, provider, api_key, embedding_model, metadata)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		RETURNING id, name, provider, embedding_model, metadata, enabled, created_at, updated_at
	`, req.Name, req.Provider, req.APIKey, req.EmbeddingModel, string(metaJSON)).Scan(
		&p.ID, &p.Name, &p.Provider, &p.EmbeddingModel, &metaRaw, &p.Enabled, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("provider %q: %w", req.Name, ErrConflict)
		}
		return nil, fmt.Errorf("create provider %s: %w", req.Name, err)
	}
	if err := json.Unmarshal(metaRaw, &p.Metadata); err != nil {
		return nil, fmt.Errorf("decode provider metadata: %w", err)
	}
	p.HasAPIKey = true
	return &p, nil
}

// ListProviders returns all providers without API keys.
func (s *Store) ListProviders(ctx context.Context) ([]models.EmbeddingProvider, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, provider, embedding_model, metadata, enabled, created_at, updated_at
		FROM _cortex_embedding_providers ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query providers: %w", err)
	}
	defer rows.Close()

	var out []models.EmbeddingProvider
	for rows.Next() {
		var p models.EmbeddingProvider
		var metaRaw []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.Provider, &p.EmbeddingModel, &metaRaw, &p.Enabled, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		if err := json.Unmarshal(metaRaw, &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode provider metadata: %w", err)
		}
		p.HasAPIKey = true
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProvider looks up one provider. The API key is included only when
// includeSecret is set; that path feeds the embedding facade and never
// leaves the process.
func (s *Store) GetProvider(ctx context.Context, id uuid.UUID, includeSecret bool) (*models.EmbeddingProvider, error) {
	cols := `id, name, provider, embedding_model, metadata, enabled, created_at, updated_at`
	if includeSecret {
		cols += `, api_key`
	}

	var p models.EmbeddingProvider
	var metaRaw []byte
	dest := []any{&p.ID, &p.Name, &p.Provider, &p.EmbeddingModel, &metaRaw, &p.Enabled, &p.CreatedAt, &p.UpdatedAt}
	if includeSecret {
		dest = append(dest, &p.APIKey)
	}

	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM _cortex_embedding_providers WHERE id = $1`, cols), id).Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("provider %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query provider %s: %w", id, err)
	}
	if err := json.Unmarshal(metaRaw, &p.Metadata); err != nil {
		return nil, fmt.Errorf("decode provider metadata: %w", err)
	}
	p.HasAPIKey = true
	return &p, nil
}

// DeleteProvider removes a provider registration.
func (s *Store) DeleteProvider(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM _cortex_embedding_providers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete provider %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("provider %s: %w", id, ErrNotFound)
	}
	return nil
}

// replaceDatabase swaps the database segment of a DSN, handling both URL
// and key=value forms.
func replaceDatabase(dsn, dbname string) (string, error) {
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse DSN: %w", err)
		}
		u.Path = "/" + dbname
		return u.String(), nil
	}

	parts := strings.Fields(dsn)
	replaced := false
	for i, part := range parts {
		if strings.HasPrefix(part, "dbname=") {
			parts[i] = "dbname=" + dbname
			replaced = true
		}
	}
	if !replaced {
		parts = append(parts, "dbname="+dbname)
	}
	return strings.Join(parts, " "), nil
}

// quoteIdent double-quotes an identifier for interpolation into DDL, which
// cannot be parameterized.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(i int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(i), Valid: i != 0}
}
