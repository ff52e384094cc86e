package crypto

import "testing"

func TestFieldCipherRoundTrip(t *testing.T) {
	keys := map[int]string{
		1: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}
	cipher, err := NewFieldCipher(keys, 1)
	if err != nil {
		t.Fatalf("NewFieldCipher: %v", err)
	}
	encrypted, err := cipher.Encrypt("super secret value")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !IsEncrypted(encrypted) {
		t.Fatal("expected enc: prefix")
	}
	decrypted, err := cipher.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if decrypted != "super secret value" {
		t.Fatalf("round trip mismatch: %q", decrypted)
	}
}

func TestFieldCipherRejectsWrongKeyVersion(t *testing.T) {
	keys := map[int]string{
		1: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}
	cipher, err := NewFieldCipher(keys, 1)
	if err != nil {
		t.Fatalf("NewFieldCipher: %v", err)
	}
	if _, err := NewFieldCipher(map[int]string{2: keys[1]}, 1); err == nil {
		t.Fatal("expected error when active version has no registered key")
	}
	_ = cipher
}

func TestFieldCipherRejectsMalformedCiphertext(t *testing.T) {
	keys := map[int]string{1: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}
	cipher, err := NewFieldCipher(keys, 1)
	if err != nil {
		t.Fatalf("NewFieldCipher: %v", err)
	}
	if _, err := cipher.Decrypt("not-encrypted-value"); err == nil {
		t.Fatal("expected malformed ciphertext to fail")
	}
}
