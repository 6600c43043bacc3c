package auth

import (
	"context"
	"fmt"

	"github.com/cortexdb/cortexdb/pkg/models"
)

// BootstrapResult reports what EnsureAdminKey did. Plaintext is set only
// when a key was generated this boot; the caller must disclose it once and
// never persist it.
type BootstrapResult struct {
	Created   bool
	Generated bool
	Plaintext string
	Prefix    string
}

// EnsureAdminKey guarantees at least one enabled admin key exists. When none
// does, the configured key (usually CORTEXDB_ADMIN_KEY) is installed, or a
// fresh one is generated. Without this a new deployment has no way to mint
// its first key.
func (s *Service) EnsureAdminKey(ctx context.Context, configured string) (*BootstrapResult, error) {
	n, err := s.store.CountAdminKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("count admin keys: %w", err)
	}
	if n > 0 {
		return &BootstrapResult{}, nil
	}

	var plaintext string
	generated := false
	if configured != "" {
		plaintext = configured
	} else {
		plaintext, _, _, err = Generate(models.KeyTypeAdmin)
		if err != nil {
			return nil, err
		}
		generated = true
	}

	req := models.APIKeyCreate{
		Name:        "bootstrap-admin",
		Description: "Initial admin key created at first startup",
		Type:        models.KeyTypeAdmin,
	}
	perms := models.PermissionsForType(models.KeyTypeAdmin, nil)
	key, err := s.store.CreateAPIKey(ctx, Hash(plaintext), Prefix(plaintext), req, perms, nil)
	if err != nil {
		return nil, fmt.Errorf("install bootstrap admin key: %w", err)
	}

	if s.logger != nil {
		if generated {
			s.logger.Warn(ctx, "no admin API key found; generated one",
				"key_id", key.ID.String(), "key_prefix", key.KeyPrefix)
		} else {
			s.logger.Warn(ctx, "no admin API key found; installed key from configuration",
				"key_id", key.ID.String(), "key_prefix", key.KeyPrefix)
		}
	}

	result := &BootstrapResult{Created: true, Generated: generated, Prefix: key.KeyPrefix}
	if generated {
		result.Plaintext = plaintext
	}
	return result, nil
}
