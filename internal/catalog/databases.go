package catalog

import (
	"context"
	"fmt"

	"github.com/cortexdb/cortexdb/internal/observability"
	"github.com/cortexdb/cortexdb/internal/schema"
	"github.com/cortexdb/cortexdb/pkg/models"
)

// DatabaseStore is the metadata surface the database service uses.
type DatabaseStore interface {
	RegisterDatabase(ctx context.Context, req models.DatabaseCreate) (*models.Database, error)
	CreatePhysicalDatabase(ctx context.Context, name string) error
	GetDatabase(ctx context.Context, name string) (*models.Database, error)
	ListDatabases(ctx context.Context) ([]models.Database, error)
	DeregisterDatabase(ctx context.Context, name string) error
	DropPhysicalDatabase(ctx context.Context, name string) error
	ListCollections(ctx context.Context, database string) ([]models.CollectionInfo, error)
}

// Databases manages logical database namespaces. Registration also creates
// the physical database so external tooling can connect to it directly.
type Databases struct {
	store       DatabaseStore
	collections *Collections
	logger      *observability.Logger
}

// NewDatabases builds the database service. The collections service is used
// to cascade deletes.
func NewDatabases(store DatabaseStore, collections *Collections, logger *observability.Logger) *Databases {
	return &Databases{store: store, collections: collections, logger: logger}
}

// Create registers a database and creates its physical counterpart. A
// physical-creation failure rolls the registration back so the registry
// never lists a database that does not exist.
func (d *Databases) Create(ctx context.Context, req models.DatabaseCreate) (*models.Database, error) {
	if !identRE.MatchString(req.Name) {
		return nil, fmt.Errorf("database name %q must match %s: %w", req.Name, identRE, schema.ErrInvalid)
	}

	db, err := d.store.RegisterDatabase(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := d.store.CreatePhysicalDatabase(ctx, req.Name); err != nil {
		if derr := d.store.DeregisterDatabase(ctx, req.Name); derr != nil {
			d.logger.Error(ctx, "failed to deregister database after create failure",
				"database", req.Name, "error", derr)
		}
		return nil, fmt.Errorf("create database %s: %w", req.Name, err)
	}

	d.logger.Info(ctx, "database created", "database", req.Name)
	return db, nil
}

// Get returns one registered database.
func (d *Databases) Get(ctx context.Context, name string) (*models.Database, error) {
	return d.store.GetDatabase(ctx, name)
}

// List returns all registered databases.
func (d *Databases) List(ctx context.Context) ([]models.Database, error) {
	return d.store.ListDatabases(ctx)
}

// Delete removes a database: its collections first, then the physical
// database, then the registry row. Collections must go first because their
// tables live in the gateway's own database, not the dropped one.
func (d *Databases) Delete(ctx context.Context, name string) error {
	if _, err := d.store.GetDatabase(ctx, name); err != nil {
		return err
	}

	infos, err := d.store.ListCollections(ctx, name)
	if err != nil {
		return fmt.Errorf("list collections of %s: %w", name, err)
	}
	for _, info := range infos {
		if err := d.collections.Delete(ctx, info.Name); err != nil {
			return fmt.Errorf("delete collection %s: %w", info.Name, err)
		}
	}

	if err := d.store.DropPhysicalDatabase(ctx, name); err != nil {
		return fmt.Errorf("drop database %s: %w", name, err)
	}
	if err := d.store.DeregisterDatabase(ctx, name); err != nil {
		return err
	}

	d.logger.Info(ctx, "database deleted", "database", name, "collections_removed", len(infos))
	return nil
}
