package crypto

import (
	"github.com/flowctl/core/pkg/errx"
	"golang.org/x/crypto/bcrypt"
)

var (
	CodePasswordHashFailed = ErrRegistry.Register("PASSWORD_HASH_FAILED", errx.TypeInternal, 500, "failed to hash password")
	CodePasswordMismatch   = ErrRegistry.Register("PASSWORD_MISMATCH", errx.TypeAuthorization, 401, "password does not match")
)

func ErrPasswordHashFailed(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodePasswordHashFailed, cause)
}
func ErrPasswordMismatch() *errx.Error { return ErrRegistry.New(CodePasswordMismatch) }

// PasswordHasher abstracts password hashing so callers and tests are not
// coupled to bcrypt specifically.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// BcryptHasher is the production PasswordHasher.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = 12
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", ErrPasswordHashFailed(err)
	}
	return string(hashed), nil
}

func (h *BcryptHasher) Compare(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrPasswordMismatch()
	}
	return nil
}
