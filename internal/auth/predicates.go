package auth

import "github.com/cortexdb/cortexdb/pkg/models"

// Operation names checked against read-only keys.
const (
	OpRead   = "read"
	OpSearch = "search"
	OpList   = "list"
	OpGet    = "get"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpUpload = "upload"
)

// readonlyOps are the operations a read-only key may perform.
var readonlyOps = map[string]struct{}{
	OpRead:   {},
	OpSearch: {},
	OpList:   {},
	OpGet:    {},
}

// RequireAdmin rejects keys without the admin capability.
func RequireAdmin(key *models.APIKey) error {
	if key == nil || !key.Permissions.Admin {
		return ErrAdminRequired
	}
	return nil
}

// RequireManageDatabases gates database create and delete.
func RequireManageDatabases(key *models.APIKey) error {
	if key == nil || (!key.Permissions.Admin && !key.Permissions.ManageDatabases) {
		return ErrAdminRequired
	}
	return nil
}

// RequireManageCollections gates collection create and delete.
func RequireManageCollections(key *models.APIKey) error {
	if key == nil || (!key.Permissions.Admin && !key.Permissions.ManageCollections) {
		return ErrAdminRequired
	}
	return nil
}

// RequireManageProviders gates provider registration and removal.
func RequireManageProviders(key *models.APIKey) error {
	if key == nil || (!key.Permissions.Admin && !key.Permissions.ManageProviders) {
		return ErrAdminRequired
	}
	return nil
}

// CheckDatabaseAccess allows admins everywhere and scoped keys inside the
// databases their permissions list.
func CheckDatabaseAccess(key *models.APIKey, database string) error {
	if key == nil {
		return ErrDatabaseScope
	}
	if key.Permissions.Admin {
		return nil
	}
	for _, db := range key.Permissions.Databases {
		if db == database {
			return nil
		}
	}
	return ErrDatabaseScope
}

// CheckReadOnly rejects write operations from read-only keys.
func CheckReadOnly(key *models.APIKey, op string) error {
	if key == nil || !key.Permissions.Readonly {
		return nil
	}
	if _, ok := readonlyOps[op]; ok {
		return nil
	}
	return ErrReadOnly
}
