// Package catalog is the control plane: it provisions and tears down the
// storage that backs databases, collections, and embedding providers. Each
// service wraps the metadata store plus whichever backing stores the
// resource touches.
package catalog

import (
	"context"
	"regexp"

	"github.com/cortexdb/cortexdb/internal/embed"
	"github.com/cortexdb/cortexdb/internal/schema"
)

// identRE is the identifier rule shared with collection and field names.
var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// VectorStore is the vector-side surface the catalog provisions against.
type VectorStore interface {
	EnsureCollection(ctx context.Context, spec *schema.VectorSpec, dim int) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	DeleteCollection(ctx context.Context, name string) error
}

// BlobStore is the object-side surface the catalog provisions against.
type BlobStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
}

// Embedders resolves a provider id to a ready embedder, used to learn the
// vector dimension at collection creation time.
type Embedders interface {
	ForProvider(ctx context.Context, providerID string) (embed.Embedder, error)
	Invalidate(providerID string)
}

// Services bundles the three control-plane services.
type Services struct {
	Databases   *Databases
	Collections *Collections
	Providers   *Providers
}
