package auth

import (
	"regexp"
	"strings"
	"testing"

	"github.com/cortexdb/cortexdb/pkg/models"
)

func TestGenerateFormat(t *testing.T) {
	tests := []struct {
		keyType models.APIKeyType
		pattern string
	}{
		{models.KeyTypeAdmin, `^cortexdb_admin_[a-f0-9]{64}$`},
		{models.KeyTypeDatabase, `^cortexdb_live_[a-f0-9]{64}$`},
		{models.KeyTypeReadonly, `^cortexdb_test_[a-f0-9]{64}$`},
	}

	for _, tt := range tests {
		t.Run(string(tt.keyType), func(t *testing.T) {
			plaintext, hash, prefix, err := Generate(tt.keyType)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if !regexp.MustCompile(tt.pattern).MatchString(plaintext) {
				t.Errorf("plaintext %q does not match %s", plaintext, tt.pattern)
			}
			if hash != Hash(plaintext) {
				t.Error("returned hash does not match Hash(plaintext)")
			}
			if len(hash) != 64 {
				t.Errorf("hash length = %d, want 64", len(hash))
			}
			want := plaintext[:25] + "..."
			if prefix != want {
				t.Errorf("prefix = %q, want %q", prefix, want)
			}
			if strings.Contains(prefix, plaintext[30:]) {
				t.Error("prefix leaks key material")
			}
		})
	}
}

func TestGenerateUnique(t *testing.T) {
	a, _, _, err := Generate(models.KeyTypeAdmin)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	b, _, _, err := Generate(models.KeyTypeAdmin)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if a == b {
		t.Error("two generated keys are identical")
	}
}

func TestHashDeterministic(t *testing.T) {
	if Hash("cortexdb_live_abc") != Hash("cortexdb_live_abc") {
		t.Error("hash is not deterministic")
	}
	if Hash("a") == Hash("b") {
		t.Error("distinct inputs share a hash")
	}
}

func TestPrefixShortInput(t *testing.T) {
	if got := Prefix("short"); got != "short..." {
		t.Errorf("Prefix(short) = %q", got)
	}
}

func TestFromHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"bearer scheme", "Bearer cortexdb_live_abc", "cortexdb_live_abc"},
		{"bare key", "cortexdb_live_abc", "cortexdb_live_abc"},
		{"padded", "  Bearer cortexdb_live_abc  ", "cortexdb_live_abc"},
		{"empty", "", ""},
		{"scheme only", "Bearer ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromHeader(tt.header); got != tt.want {
				t.Errorf("FromHeader(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
