// Package auth implements CortexDB's API-key plane: key material, a TTL
// cache for authenticated keys, the authentication service, and the
// permission predicates the HTTP surface enforces.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cortexdb/cortexdb/pkg/models"
)

// keyBytes is the entropy of one key: 32 random bytes, 64 hex characters.
const keyBytes = 32

// prefixChars is how much of the plaintext is kept for display. Long enough
// to tell keys apart, far too short to authenticate with.
const prefixChars = 25

// Generate mints one API key. The plaintext is shown to the caller exactly
// once; only the SHA-256 hash and the display prefix are stored.
func Generate(keyType models.APIKeyType) (plaintext, hash, prefix string, err error) {
	raw := make([]byte, keyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("generate api key: %w", err)
	}

	plaintext = fmt.Sprintf("cortexdb_%s_%s", typeWord(keyType), hex.EncodeToString(raw))
	return plaintext, Hash(plaintext), Prefix(plaintext), nil
}

// typeWord is the environment marker embedded in the plaintext: admin keys
// say so, database keys look like production keys, readonly keys like test
// keys.
func typeWord(t models.APIKeyType) string {
	switch t {
	case models.KeyTypeAdmin:
		return "admin"
	case models.KeyTypeReadonly:
		return "test"
	default:
		return "live"
	}
}

// Hash returns the hex SHA-256 of a plaintext key, the stored form.
func Hash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// Prefix returns the display prefix of a plaintext key.
func Prefix(plaintext string) string {
	if len(plaintext) <= prefixChars {
		return plaintext + "..."
	}
	return plaintext[:prefixChars] + "..."
}

// FromHeader extracts the key from an Authorization header value, with or
// without the Bearer scheme.
func FromHeader(header string) string {
	header = strings.TrimSpace(header)
	if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return header
}
