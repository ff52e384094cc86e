package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"

	"github.com/flowctl/core/pkg/errx"
)

const (
	patKDFIterations = 100_000
	patKDFKeyLen     = 32
)

var CodePATGenerationFailed = ErrRegistry.Register("PAT_GENERATION_FAILED", errx.TypeInternal, 500, "failed to generate personal access token")

func ErrPATGenerationFailed(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodePATGenerationFailed, cause)
}

// PATHasher derives and verifies personal access token secrets with
// PBKDF2-HMAC-SHA256 at 100,000 iterations, salted with the process master
// key rather than a per-token random salt. The salt is fixed, not absent:
// every token hashes under the same salt, so the digest stays usable as
// store.PATRepository.FindByHash's deterministic lookup key while still
// costing an attacker a full KDF run per guess against a leaked hash.
type PATHasher struct {
	prefix    string
	masterKey []byte
}

func NewPATHasher(tokenPrefix, masterKey string) *PATHasher {
	if tokenPrefix == "" {
		tokenPrefix = "agixt_"
	}
	return &PATHasher{prefix: tokenPrefix, masterKey: []byte(masterKey)}
}

// GeneratedPAT is the plaintext form of a token, returned once at creation
// time. Only Prefix and Hash are meant to be persisted.
type GeneratedPAT struct {
	Token  string // full token shown to the user exactly once: prefix + 64 hex chars
	Prefix string // first 16 chars of Token, safe to display/log for lookup hints
	Hash   string // PBKDF2 hash, safe to persist
}

// Generate mints a new random token secret, formats it as <prefix><64 hex
// chars>, and returns both the plaintext (shown once) and its persisted
// hash.
func (h *PATHasher) Generate() (*GeneratedPAT, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, ErrPATGenerationFailed(err)
	}
	token := h.prefix + hex.EncodeToString(secret)
	hash, err := h.Hash(token)
	if err != nil {
		return nil, err
	}
	prefixLen := 16
	if len(token) < prefixLen {
		prefixLen = len(token)
	}
	return &GeneratedPAT{Token: token, Prefix: token[:prefixLen], Hash: hash}, nil
}

// Hash returns the hex-encoded PBKDF2-HMAC-SHA256 digest of token, salted
// with the master key, the value persisted as
// store.PersonalAccessToken.TokenHash and used directly as the FindByHash
// lookup key.
func (h *PATHasher) Hash(token string) (string, error) {
	derived := pbkdf2.Key([]byte(token), h.masterKey, patKDFIterations, patKDFKeyLen, sha256.New)
	return hex.EncodeToString(derived), nil
}

// Verify re-derives token's digest and compares it against storedHash in
// constant time — a defense-in-depth check after the repository has
// already matched on the same digest.
func (h *PATHasher) Verify(token, storedHash string) bool {
	digest, _ := h.Hash(token)
	return hmac.Equal([]byte(digest), []byte(storedHash))
}
