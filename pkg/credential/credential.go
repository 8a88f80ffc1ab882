package credential

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrMismatch = errors.New("passphrase does not match")

// Hasher turns passphrases into storable hashes.
type Hasher interface {
	Hash(passphrase string) (string, error)
	Verify(hash, passphrase string) error
}

// Bcrypt hashes with bcrypt at the given cost.
type Bcrypt struct {
	Cost int
}

// NewBcrypt returns a bcrypt hasher. A cost outside bcrypt's range uses
// the library default.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{Cost: cost}
}

func (b *Bcrypt) Hash(passphrase string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), b.Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash passphrase: %w", err)
	}
	return string(hash), nil
}

func (b *Bcrypt) Verify(hash, passphrase string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(passphrase))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}
