// Package validation checks and normalizes request fields before they reach
// the services.
package validation

import (
	"strings"

	"github.com/checkpoint-edu/checkpoint/internal/apperr"
)

// Checker collects field errors for a single request
type Checker struct {
	details []apperr.FieldError
}

// Required records an error when value is blank and reports whether it was present
func (c *Checker) Required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		c.details = append(c.details, apperr.FieldError{Field: field, Message: field + " is required"})
		return false
	}
	return true
}

// Check records err against field when it is non-nil
func (c *Checker) Check(field string, err error) {
	if err != nil {
		c.details = append(c.details, apperr.FieldError{Field: field, Message: err.Error()})
	}
}

func (c *Checker) Valid() bool {
	return len(c.details) == 0
}

// Err returns a Validation error carrying every collected detail, or nil.
// A single problem becomes the message itself.
func (c *Checker) Err() error {
	if c.Valid() {
		return nil
	}
	message := "Validation failed"
	if len(c.details) == 1 {
		message = c.details[0].Message
	}
	return apperr.Validation(message, c.details...)
}
