package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// HashPassword hashes a plaintext password. Costs outside bcrypt's range use the default.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", apperrors.NewValidationError("password too long", map[string]any{"max_bytes": 72})
	}
	if err != nil {
		return "", apperrors.NewInternalError(err)
	}
	return string(hashed), nil
}

// ComparePassword fails UNAUTHORIZED when plain does not match the stored hash.
func ComparePassword(hashed, plain string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) || errors.Is(err, bcrypt.ErrHashTooShort) {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	return apperrors.NewInternalError(err)
}
