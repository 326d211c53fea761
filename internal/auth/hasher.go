package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher hashes passwords with a per-call salt. It holds no mutable
// state and is safe for concurrent use.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher clamps cost into the range bcrypt accepts.
func NewBcryptHasher(cost int) *BcryptHasher {
	cost = max(bcrypt.MinCost, min(cost, bcrypt.MaxCost))
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Cost() int {
	return h.cost
}

func (h *BcryptHasher) Hash(plain string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

// Verify reports whether plain matches hash. A mismatch is not an error;
// only a malformed hash is.
func (h *BcryptHasher) Verify(plain, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}
