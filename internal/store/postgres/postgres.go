// Package postgres implements the relational side of CortexDB: the control
// catalog (databases, collections, embedding providers, API keys) and the
// per-collection record tables compiled from schemas.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/cortexdb/cortexdb/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Sentinel errors callers branch on with errors.Is.
var (
	// ErrNotFound marks lookups for rows that do not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks unique-constraint violations (duplicate names,
	// duplicate unique field values).
	ErrConflict = errors.New("already exists")
)

// Store wraps the Postgres connection with catalog and record helpers.
type Store struct {
	db     *sql.DB
	dsn    string
	ownsDB bool
}

// Config contains configuration for the store.
type Config struct {
	// DSN is the PostgreSQL connection string. If empty, DB must be
	// provided.
	DSN string

	// DB is an existing database connection to reuse. If provided, DSN is
	// used only for deriving admin connections and the store will not
	// close the connection.
	DB *sql.DB

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// RunMigrations controls whether embedded migrations are applied
	// during New.
	RunMigrations bool
}

// FromAppConfig maps the application database section onto a store config.
func FromAppConfig(cfg config.DatabaseConfig) Config {
	run := cfg.RunMigrations == nil || *cfg.RunMigrations
	return Config{
		DSN:             cfg.URL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		RunMigrations:   run,
	}
}

// New opens the connection, verifies it, and optionally applies migrations.
func New(cfg Config) (*Store, error) {
	var db *sql.DB
	var ownsDB bool
	var err error

	if cfg.DB != nil {
		db = cfg.DB
		ownsDB = false
	} else if cfg.DSN != "" {
		db, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		ownsDB = true

		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
	} else {
		return nil, fmt.Errorf("either DSN or DB must be provided")
	}

	s := &Store{db: db, dsn: cfg.DSN, ownsDB: ownsDB}

	if cfg.RunMigrations {
		if err := s.runMigrations(context.Background()); err != nil {
			if ownsDB {
				db.Close()
			}
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return s, nil
}

// Ping reports connection health.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection when the store owns it.
func (s *Store) Close() error {
	if s.ownsDB && s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate applies pending embedded migrations. New already does this when
// Config.RunMigrations is set; Migrate serves callers that want the status
// before and after, like the migrate CLI command.
func (s *Store) Migrate(ctx context.Context) error {
	return s.runMigrations(ctx)
}

// runMigrations applies pending embedded migrations in filename order, each
// in its own transaction.
func (s *Store) runMigrations(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			filename VARCHAR(255) UNIQUE NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Filename] {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.Filename, err)
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.Filename, err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, m.Filename); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.Filename, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.Filename, err)
		}
	}

	return nil
}

func (s *Store) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT filename FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schema_migrations: %w", err)
	}
	return applied, nil
}

// Migration is one embedded migration file.
type Migration struct {
	Filename string
	SQL      string
}

func loadMigrations() ([]Migration, error) {
	paths, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(paths)

	migrations := make([]Migration, 0, len(paths))
	for _, path := range paths {
		data, err := migrationsFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", path, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return nil, fmt.Errorf("empty migration %s", path)
		}
		migrations = append(migrations, Migration{
			Filename: strings.TrimPrefix(path, "migrations/"),
			SQL:      string(data),
		})
	}
	return migrations, nil
}

// MigrationStatus reports one migration and whether it has been applied.
type MigrationStatus struct {
	Filename string
	Applied  bool
}

// MigrationStatuses lists embedded migrations with their applied state. A
// database that has never been migrated reports everything pending.
func (s *Store) MigrationStatuses(ctx context.Context) ([]MigrationStatus, error) {
	migrations, err := loadMigrations()
	if err != nil {
		return nil, err
	}
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		var pqErr *pq.Error
		if !errors.As(err, &pqErr) || pqErr.Code != "42P01" {
			return nil, err
		}
		applied = map[string]bool{}
	}
	out := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		out = append(out, MigrationStatus{Filename: m.Filename, Applied: applied[m.Filename]})
	}
	return out, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (class 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
