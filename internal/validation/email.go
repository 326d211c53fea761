package validation

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/checkpoint-edu/checkpoint/internal/model"
)

// NormalizeEmail lowercases and trims an address before it is stored or looked up
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail validates email format and length
// Uses Go's built-in net/mail parser which follows RFC 5322
func ValidateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}

	// Check length (RFC 5321: local part max 64, domain max 255, total max 254 with @)
	if len(email) > 254 {
		return errors.New("email is too long (max 254 characters)")
	}

	// Parse using Go's RFC 5322 compliant parser; reject display-name forms
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("email must be a valid email address")
	}

	_, domain, _ := strings.Cut(email, "@")
	if !strings.Contains(domain, ".") {
		return errors.New("email must be a valid email address")
	}

	return nil
}

// ValidateNewEmail is ValidateEmail for addresses about to be stored.
// Anonymized accounts own the reserved domain.
func ValidateNewEmail(email string) error {
	err := ValidateEmail(email)
	if err != nil {
		return err
	}

	if strings.HasSuffix(email, "@"+model.DeletedEmailDomain) {
		return errors.New("email domain is not allowed")
	}

	return nil
}
