package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "hunter2hunter2" {
		t.Fatal("hash equals plaintext")
	}
	if err := VerifyPassword(hash, "hunter2hunter2"); err != nil {
		t.Errorf("VerifyPassword correct: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("VerifyPassword wrong: got %v, want ErrPasswordMismatch", err)
	}
}

func TestHashPassword_RejectsEmpty(t *testing.T) {
	if _, err := HashPassword(""); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("got %v, want ErrEmptyPassword", err)
	}
}

func TestMintAPIKey_RoundTrip(t *testing.T) {
	key, err := MintAPIKey()
	if err != nil {
		t.Fatalf("MintAPIKey: %v", err)
	}
	if !strings.HasPrefix(key.Raw, "cfk_") {
		t.Errorf("raw key %q missing prefix", key.Raw)
	}
	if !IsAPIKey(key.Raw) {
		t.Error("IsAPIKey = false for minted key")
	}

	id, secret, err := ParseAPIKey(key.Raw)
	if err != nil {
		t.Fatalf("ParseAPIKey: %v", err)
	}
	if id != key.ID {
		t.Errorf("parsed id = %q, want %q", id, key.ID)
	}
	if err := VerifyAPIKeySecret(key.SecretHash, secret); err != nil {
		t.Errorf("VerifyAPIKeySecret: %v", err)
	}
	if err := VerifyAPIKeySecret(key.SecretHash, "tampered"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("tampered secret: got %v, want ErrPasswordMismatch", err)
	}
}

func TestMintAPIKey_Unique(t *testing.T) {
	a, err := MintAPIKey()
	if err != nil {
		t.Fatalf("MintAPIKey: %v", err)
	}
	b, err := MintAPIKey()
	if err != nil {
		t.Fatalf("MintAPIKey: %v", err)
	}
	if a.Raw == b.Raw || a.ID == b.ID {
		t.Error("minted keys collide")
	}
}

func TestParseAPIKey_Malformed(t *testing.T) {
	for _, raw := range []string{"", "cfk_", "cfk_id", "cfk__secret", "cfk_id_", "bearer_id_secret", "session-token"} {
		if _, _, err := ParseAPIKey(raw); !errors.Is(err, ErrMalformedAPIKey) {
			t.Errorf("ParseAPIKey(%q): got %v, want ErrMalformedAPIKey", raw, err)
		}
	}
}

func TestIsAPIKey(t *testing.T) {
	if IsAPIKey("a1b2c3session") {
		t.Error("session token classified as API key")
	}
	if !IsAPIKey("cfk_abc_def") {
		t.Error("API key not recognized")
	}
}

func TestNewSessionToken(t *testing.T) {
	a, err := NewSessionToken()
	if err != nil {
		t.Fatalf("NewSessionToken: %v", err)
	}
	b, _ := NewSessionToken()
	if a == b {
		t.Error("session tokens collide")
	}
	if len(a) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(a))
	}
}
