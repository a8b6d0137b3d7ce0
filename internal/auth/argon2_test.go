package auth

import (
	"strings"
	"testing"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("expected PHC format hash, got %s", hash)
	}

	// Hashing the same password twice must produce different hashes (random salt)
	hash2, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if hash == hash2 {
		t.Error("expected different hashes for same password")
	}
}

func TestVerifyPassword(t *testing.T) {
	password := "s3cret-password"
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	tests := []struct {
		name     string
		password string
		hash     string
		want     bool
		wantErr  bool
	}{
		{"correct password", password, hash, true, false},
		{"wrong password", "wrong", hash, false, false},
		{"empty password", "", hash, false, false},
		{"malformed hash", password, "not-a-hash", false, true},
		{"wrong algorithm", password, "$bcrypt$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA", false, true},
		{"truncated hash", password, "$argon2id$v=19$m=65536", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := VerifyPassword(tt.password, tt.hash)
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.want {
				t.Errorf("VerifyPassword() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQuickHash(t *testing.T) {
	h1 := QuickHash("input-a")
	h2 := QuickHash("input-b")

	if len(h1) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(h1))
	}
	if h1 == h2 {
		t.Error("expected different hashes for different inputs")
	}
	if QuickHash("input-a") != h1 {
		t.Error("expected deterministic hash")
	}
}
