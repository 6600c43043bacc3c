package auth

import (
	"context"

	"github.com/cortexdb/cortexdb/pkg/models"
)

type keyContextKey struct{}

// WithKey attaches the authenticated API key to the context.
func WithKey(ctx context.Context, key *models.APIKey) context.Context {
	if key == nil {
		return ctx
	}
	return context.WithValue(ctx, keyContextKey{}, key)
}

// KeyFrom retrieves the authenticated API key from the context.
func KeyFrom(ctx context.Context) (*models.APIKey, bool) {
	key, ok := ctx.Value(keyContextKey{}).(*models.APIKey)
	return key, ok
}
