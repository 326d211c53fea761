package validation

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const maxNameLength = 100

// SanitizeName trims whitespace, composes the name to NFC and cuts it to
// 100 characters
func SanitizeName(name string) string {
	trimmed := strings.TrimSpace(norm.NFC.String(name))
	runes := []rune(trimmed)
	if len(runes) > maxNameLength {
		return strings.TrimSpace(string(runes[:maxNameLength]))
	}
	return trimmed
}

// ValidateName expects an already sanitized name
func ValidateName(name string) error {
	if name == "" {
		return errors.New("name is required")
	}
	return nil
}
