package validation

import (
	"errors"
)

const minPasswordLength = 6

// ValidatePassword checks length only
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return errors.New("password must be at least 6 characters long")
	}

	// Maximum length: 72 bytes (bcrypt limitation)
	// bcrypt rejects longer passwords instead of hashing them
	if len(password) > 72 {
		return errors.New("password must not exceed 72 characters")
	}

	return nil
}
