package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKeyType classifies an API key's scope.
type APIKeyType string

const (
	KeyTypeAdmin    APIKeyType = "admin"
	KeyTypeDatabase APIKeyType = "database"
	KeyTypeReadonly APIKeyType = "readonly"
)

// Permissions is the capability set attached to an API key.
type Permissions struct {
	Admin             bool     `json:"admin"`
	ManageKeys        bool     `json:"manage_keys"`
	ManageDatabases   bool     `json:"manage_databases"`
	ManageCollections bool     `json:"manage_collections"`
	ManageProviders   bool     `json:"manage_providers"`
	Databases         []string `json:"databases"`
	Readonly          bool     `json:"readonly"`
}

// PermissionsForType returns the default permission set for a key type.
func PermissionsForType(t APIKeyType, databases []string) Permissions {
	switch t {
	case KeyTypeAdmin:
		return Permissions{
			Admin:             true,
			ManageKeys:        true,
			ManageDatabases:   true,
			ManageCollections: true,
			ManageProviders:   true,
			Databases:         []string{},
		}
	case KeyTypeDatabase:
		return Permissions{
			ManageCollections: true,
			Databases:         databases,
		}
	default:
		return Permissions{
			Readonly:  true,
			Databases: databases,
		}
	}
}

// APIKey is a stored API key. KeyHash never leaves the server.
type APIKey struct {
	ID          uuid.UUID   `json:"id"`
	KeyHash     string      `json:"-"`
	KeyPrefix   string      `json:"key_prefix"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Type        APIKeyType  `json:"type"`
	Permissions Permissions `json:"permissions"`
	CreatedAt   time.Time   `json:"created_at"`
	CreatedBy   *uuid.UUID  `json:"created_by,omitempty"`
	LastUsedAt  *time.Time  `json:"last_used_at,omitempty"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
	Enabled     bool        `json:"enabled"`
}

// APIKeyCreated is returned once after key creation; Key is the only copy of
// the plaintext the caller will ever see.
type APIKeyCreated struct {
	ID          uuid.UUID   `json:"id"`
	Key         string      `json:"key"`
	KeyPrefix   string      `json:"key_prefix"`
	Name        string      `json:"name"`
	Type        APIKeyType  `json:"type"`
	Permissions Permissions `json:"permissions"`
	CreatedAt   time.Time   `json:"created_at"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
}

// APIKeyCreate is the request body for creating a key.
type APIKeyCreate struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Type        APIKeyType `json:"type"`
	Databases   []string   `json:"databases,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// APIKeyUpdate is a partial update; nil fields are left unchanged.
type APIKeyUpdate struct {
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	Databases   []string   `json:"databases,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Enabled     *bool      `json:"enabled,omitempty"`
}
