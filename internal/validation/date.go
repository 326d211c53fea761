package validation

import (
	"errors"
	"strings"
	"time"
)

// ParseDateOfBirth parses a YYYY-MM-DD date. An empty value clears the date
// and returns nil.
func ParseDateOfBirth(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	date, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, errors.New("date_of_birth must be a date in YYYY-MM-DD format")
	}

	if date.After(time.Now()) {
		return nil, errors.New("date_of_birth must be in the past")
	}

	return &date, nil
}
