package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"io"
	"strconv"
	"strings"

	"github.com/flowctl/core/pkg/errx"
)

var (
	CodeEncryptionKeyInvalid = ErrRegistry.Register("ENCRYPTION_KEY_INVALID", errx.TypeInternal, 500, "field encryption key is missing or malformed")
	CodeCiphertextMalformed  = ErrRegistry.Register("CIPHERTEXT_MALFORMED", errx.TypeInternal, 500, "ciphertext is not in the expected enc:<version>:<payload> format")
	CodeDecryptionFailed     = ErrRegistry.Register("DECRYPTION_FAILED", errx.TypeInternal, 500, "decryption failed: invalid key or tampered ciphertext")
)

func ErrEncryptionKeyInvalid() *errx.Error { return ErrRegistry.New(CodeEncryptionKeyInvalid) }
func ErrCiphertextMalformed() *errx.Error  { return ErrRegistry.New(CodeCiphertextMalformed) }
func ErrDecryptionFailed(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeDecryptionFailed, cause)
}

// FieldCipher encrypts tenant-level secrets (OAuth client secrets, SMTP
// credentials) at rest with AES-256-GCM, keyed off a versioned key set so a
// key rotation does not break decryption of ciphertext written under the
// previous key.
type FieldCipher struct {
	keys          map[int][]byte
	activeVersion int
}

// NewFieldCipher builds a cipher from a version -> 64-char-hex-key map. Every
// key must decode to exactly 32 bytes (AES-256).
func NewFieldCipher(hexKeys map[int]string, activeVersion int) (*FieldCipher, error) {
	keys := make(map[int][]byte, len(hexKeys))
	for version, keyHex := range hexKeys {
		key := make([]byte, 32)
		n, err := hex.Decode(key, []byte(keyHex))
		if err != nil || n != 32 {
			return nil, ErrEncryptionKeyInvalid().WithDetail("version", version)
		}
		keys[version] = key
	}
	if _, ok := keys[activeVersion]; !ok {
		return nil, ErrEncryptionKeyInvalid().WithDetail("reason", "no key registered for the active version").WithDetail("version", activeVersion)
	}
	return &FieldCipher{keys: keys, activeVersion: activeVersion}, nil
}

// Encrypt seals plaintext under the active key version. The returned string
// is "enc:<version>:<base64(nonce||ciphertext)>", stable for direct storage
// in a text column.
func (f *FieldCipher) Encrypt(plaintext string) (string, error) {
	gcm, err := f.gcmFor(f.activeVersion)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errx.Wrap(err, "failed to generate nonce", errx.TypeInternal)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return "enc:" + strconv.Itoa(f.activeVersion) + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt, looking up the key version embedded in the
// ciphertext so old rows survive a key rotation.
func (f *FieldCipher) Decrypt(stored string) (string, error) {
	parts := strings.SplitN(stored, ":", 3)
	if len(parts) != 3 || parts[0] != "enc" {
		return "", ErrCiphertextMalformed()
	}
	version, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", ErrCiphertextMalformed()
	}
	gcm, err := f.gcmFor(version)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", ErrCiphertextMalformed()
	}
	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrCiphertextMalformed()
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed(err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether a stored value carries the enc: envelope, so
// callers can tell a freshly-decrypted field from one never encrypted.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, "enc:")
}

func (f *FieldCipher) gcmFor(version int) (cipher.AEAD, error) {
	key, ok := f.keys[version]
	if !ok {
		return nil, ErrEncryptionKeyInvalid().WithDetail("version", version)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errx.Wrap(err, "failed to build AES cipher", errx.TypeInternal)
	}
	return cipher.NewGCM(block)
}
