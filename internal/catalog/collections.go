package catalog

import (
	"context"
	"fmt"

	"github.com/cortexdb/cortexdb/internal/observability"
	"github.com/cortexdb/cortexdb/internal/schema"
	"github.com/cortexdb/cortexdb/pkg/models"
)

// CollectionStore is the metadata surface the collection service uses.
type CollectionStore interface {
	ApplyPlan(ctx context.Context, plan *schema.Plan) error
	UpsertCollection(ctx context.Context, sch *schema.Schema) error
	GetCollectionSchema(ctx context.Context, name string) (*schema.Schema, error)
	ListCollections(ctx context.Context, database string) ([]models.CollectionInfo, error)
	DropCollection(ctx context.Context, name string) error
	GetDatabase(ctx context.Context, name string) (*models.Database, error)
}

// Collections provisions collection storage across all three stores.
type Collections struct {
	store     CollectionStore
	vectors   VectorStore
	blobs     BlobStore
	embedders Embedders
	logger    *observability.Logger
}

// NewCollections builds the collection service.
func NewCollections(store CollectionStore, vectors VectorStore, blobs BlobStore, embedders Embedders, logger *observability.Logger) *Collections {
	return &Collections{store: store, vectors: vectors, blobs: blobs, embedders: embedders, logger: logger}
}

// Create compiles a schema and provisions everything it needs: relational
// tables, the vector collection (sized by probing the bound embedding
// provider), and the blob bucket. The control row is written last so a
// half-provisioned collection never lists as ready.
func (c *Collections) Create(ctx context.Context, sch *schema.Schema) (*models.CreationResult, error) {
	if sch.Database != "" {
		if _, err := c.store.GetDatabase(ctx, sch.Database); err != nil {
			return nil, err
		}
	}

	plan, err := schema.Compile(sch)
	if err != nil {
		return nil, err
	}

	if err := c.store.ApplyPlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("apply storage plan for %s: %w", sch.Name, err)
	}

	result := &models.CreationResult{
		Collection:    sch.Name,
		Database:      sch.Database,
		PostgresTable: plan.Table,
	}

	if plan.Vector != nil {
		embedder, err := c.embedders.ForProvider(ctx, sch.Config.EmbeddingProviderID)
		if err != nil {
			return nil, fmt.Errorf("resolve embedding provider for %s: %w", sch.Name, err)
		}
		dim, err := embedder.Dim(ctx)
		if err != nil {
			return nil, fmt.Errorf("probe embedding dimension for %s: %w", sch.Name, err)
		}
		if err := c.vectors.EnsureCollection(ctx, plan.Vector, dim); err != nil {
			return nil, err
		}
		result.QdrantCollection = plan.Vector.Collection
	}

	if plan.Bucket != "" {
		if err := c.blobs.EnsureBucket(ctx, plan.Bucket); err != nil {
			return nil, err
		}
		result.MinioBucket = plan.Bucket
	}

	if err := c.store.UpsertCollection(ctx, sch); err != nil {
		return nil, err
	}

	c.logger.Info(ctx, "collection created",
		"collection", sch.Name,
		"database", sch.Database,
		"table", plan.Table,
		"vector_collection", result.QdrantCollection,
		"bucket", result.MinioBucket)
	return result, nil
}

// Get returns one collection's schema.
func (c *Collections) Get(ctx context.Context, name string) (*schema.Schema, error) {
	return c.store.GetCollectionSchema(ctx, name)
}

// List returns collection summaries, optionally scoped to one database.
func (c *Collections) List(ctx context.Context, database string) ([]models.CollectionInfo, error) {
	return c.store.ListCollections(ctx, database)
}

// Delete tears a collection down: relational tables and control row in one
// transaction, then the vector collection if one was provisioned. The blob
// bucket is left in place; deleting uploaded files is an explicit operator
// decision.
func (c *Collections) Delete(ctx context.Context, name string) error {
	sch, err := c.store.GetCollectionSchema(ctx, name)
	if err != nil {
		return err
	}

	if err := c.store.DropCollection(ctx, name); err != nil {
		return err
	}

	if sch.NeedsVectors() {
		vc := sch.VectorCollection()
		exists, err := c.vectors.CollectionExists(ctx, vc)
		if err != nil {
			c.logger.Warn(ctx, "could not check vector collection during delete",
				"collection", name, "vector_collection", vc, "error", err)
		} else if exists {
			if err := c.vectors.DeleteCollection(ctx, vc); err != nil {
				c.logger.Warn(ctx, "vector collection left behind; remove manually",
					"collection", name, "vector_collection", vc, "error", err)
			}
		}
	}

	if sch.NeedsBucket() {
		c.logger.Warn(ctx, "bucket left in place; remove manually if unwanted",
			"collection", name, "bucket", sch.Bucket())
	}

	c.logger.Info(ctx, "collection deleted", "collection", name)
	return nil
}
