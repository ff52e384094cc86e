package crypto

import (
	"strings"
	"testing"
)

func TestPATHasherGenerateAndVerify(t *testing.T) {
	h := NewPATHasher("agixt_", "test-master-key")
	generated, err := h.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(generated.Prefix) == 0 {
		t.Fatal("expected non-empty prefix")
	}
	if !h.Verify(generated.Token, generated.Hash) {
		t.Fatal("expected generated token to verify against its own hash")
	}
	if h.Verify("not-the-token", generated.Hash) {
		t.Fatal("expected mismatched token to fail verification")
	}
}

func TestPATHasherGenerateTokenShape(t *testing.T) {
	h := NewPATHasher("agixt_", "test-master-key")
	generated, err := h.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(generated.Token, "agixt_") {
		t.Fatalf("expected token to start with agixt_, got %q", generated.Token)
	}
	secret := strings.TrimPrefix(generated.Token, "agixt_")
	if len(secret) != 64 {
		t.Fatalf("expected 64 hex chars after prefix, got %d", len(secret))
	}
	if generated.Prefix != generated.Token[:16] {
		t.Fatalf("expected 16-char prefix, got %q", generated.Prefix)
	}
}

func TestPATHasherHashIsSaltedWithMasterKey(t *testing.T) {
	token := "agixt_deadbeef"
	h1 := NewPATHasher("agixt_", "key-one")
	h2 := NewPATHasher("agixt_", "key-two")

	hash1, _ := h1.Hash(token)
	hash2, _ := h2.Hash(token)
	if hash1 == hash2 {
		t.Fatal("expected different master keys to produce different hashes")
	}

	hash1Again, _ := h1.Hash(token)
	if hash1 != hash1Again {
		t.Fatal("expected the same master key and token to produce a deterministic hash")
	}
}

func TestPATHasherRejectsMismatchedHash(t *testing.T) {
	h := NewPATHasher("agixt_", "test-master-key")
	if h.Verify("anything", "not-a-valid-hash") {
		t.Fatal("expected mismatched stored hash to fail verification")
	}
}
