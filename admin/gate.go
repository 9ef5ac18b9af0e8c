package admin

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrDisabled is returned when no admin password hash is configured.
	ErrDisabled = errors.New("admin operations disabled: no password configured")
	// ErrBadPassword is returned on a failed password check.
	ErrBadPassword = errors.New("invalid admin password")
)

// Gate checks admin passwords against a bcrypt hash from the config. An
// empty hash disables every admin operation rather than allowing them all.
type Gate struct {
	hash string
}

// NewGate wraps a bcrypt hash. Generate one with HashPassword.
func NewGate(bcryptHash string) *Gate {
	return &Gate{hash: bcryptHash}
}

// Check verifies the password. bcrypt comparison is constant-time.
func (g *Gate) Check(password string) error {
	if g == nil || g.hash == "" {
		return ErrDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(g.hash), []byte(password)); err != nil {
		return ErrBadPassword
	}
	return nil
}

// HashPassword produces a bcrypt hash suitable for the config file.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
