// Package apperr defines the error type that crosses from services to the
// HTTP boundary. An Error carries a Kind, a client-safe message and optional
// field details; the boundary maps Kind to a status code with Status.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindTooManyRequests
)

var statusByKind = map[Kind]int{
	KindInternal:        http.StatusInternalServerError,
	KindValidation:      http.StatusBadRequest,
	KindAuthentication:  http.StatusUnauthorized,
	KindAuthorization:   http.StatusForbidden,
	KindNotFound:        http.StatusNotFound,
	KindConflict:        http.StatusConflict,
	KindTooManyRequests: http.StatusTooManyRequests,
}

var nameByKind = map[Kind]string{
	KindInternal:        "InternalServerError",
	KindValidation:      "ValidationError",
	KindAuthentication:  "AuthenticationError",
	KindAuthorization:   "AuthorizationError",
	KindNotFound:        "NotFoundError",
	KindConflict:        "ConflictError",
	KindTooManyRequests: "TooManyRequestsError",
}

// Status returns the HTTP status code for k.
func (k Kind) Status() int {
	status, ok := statusByKind[k]
	if !ok {
		return http.StatusInternalServerError
	}
	return status
}

func (k Kind) String() string {
	name, ok := nameByKind[k]
	if !ok {
		return nameByKind[KindInternal]
	}
	return name
}

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Kind    Kind
	Message string
	Details []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a cause that is logged server-side but never shown to clients.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string, details ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

func Authentication(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return New(KindAuthentication, message)
}

func Authorization(message string) *Error {
	if message == "" {
		message = "You do not have permission to perform this action"
	}
	return New(KindAuthorization, message)
}

func NotFound(message string) *Error {
	if message == "" {
		message = "Resource not found"
	}
	return New(KindNotFound, message)
}

func Conflict(message string) *Error {
	if message == "" {
		message = "Resource conflict"
	}
	return New(KindConflict, message)
}

// As returns the *Error in err's chain, or nil.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// KindOf reports the kind of err; unclassified errors are KindInternal.
func KindOf(err error) Kind {
	appErr := As(err)
	if appErr == nil {
		return KindInternal
	}
	return appErr.Kind
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
