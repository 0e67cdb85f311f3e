package auth

import (
	"errors"
	"unicode/utf8"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted on register,
// bootstrap and password change.
const MinPasswordLength = 8

// MaxPasswordBytes is bcrypt's input limit.
const MaxPasswordBytes = 72

// PasswordHasher hashes and verifies passwords one way.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify returns (true, nil) on match, (false, nil) on mismatch and an
	// error when the stored hash is unusable.
	Verify(password, hash string) (bool, error)
}

// BcryptHasher implements PasswordHasher with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, or bcrypt.DefaultCost when cost
// is out of range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash hashes a plaintext password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", validationf("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", validationf("password must be at most %d bytes", MaxPasswordBytes)
	}
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	return string(hash), nil
}

// Verify compares a plaintext password with a stored hash.
func (h *BcryptHasher) Verify(password, hash string) (bool, error) {
	if hash == "" {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("password hash is empty")
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	return true, nil
}

func validatePassword(field, password string) error {
	if password == "" {
		return validationf("%s is required", field)
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return validationf("%s must be at least %d characters", field, MinPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return validationf("%s must be at most %d bytes", field, MaxPasswordBytes)
	}
	return nil
}
