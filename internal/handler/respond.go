package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/checkpoint-edu/checkpoint/internal/apperr"
	"github.com/checkpoint-edu/checkpoint/internal/model"
	"github.com/samber/lo"
)

const (
	maxJSONBody        = 1 << 20
	msgInternalError   = "Internal server error"
	msgInvalidJSONBody = "Invalid request body"
)

// Responder writes the JSON envelopes. 5xx responses always carry a generic
// message; development mode adds the stack trace.
type Responder struct {
	development bool
}

func NewResponder(development bool) *Responder {
	return &Responder{development: development}
}

// JSON writes {success:true, ...payload}
func (rs *Responder) JSON(w http.ResponseWriter, status int, payload map[string]any) {
	body := lo.Assign(payload, map[string]any{"success": true})
	writeJSON(w, status, body)
}

// Error maps err to its kind and writes {success:false, error, message, details?, stack?}
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := kind.Status()

	message := msgInternalError
	var details []apperr.FieldError
	if appErr := apperr.As(err); appErr != nil {
		message = appErr.Message
		details = appErr.Details
	}

	body := map[string]any{
		"success": false,
		"error":   kind.String(),
		"message": message,
	}
	if len(details) > 0 {
		body["details"] = details
	}

	switch {
	case status >= http.StatusInternalServerError:
		stack := string(debug.Stack())
		slog.Error("request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"stack", stack,
		)
		body["message"] = msgInternalError
		if rs.development {
			body["stack"] = stack
		}
	case status == http.StatusUnauthorized:
		slog.Warn("authentication failed", "method", r.Method, "path", r.URL.Path, "message", message)
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// decodeJSON reads a size-limited JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	err := dec.Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return apperr.Validation(msgInvalidJSONBody)
	}
	return nil
}

// userFields is the outbound shape of a user. The numeric id and the
// password hash never leave the server.
func userFields(user *model.User) map[string]any {
	var dateOfBirth *string
	if user.DateOfBirth != nil {
		dateOfBirth = lo.ToPtr(user.DateOfBirth.Format(time.DateOnly))
	}
	return map[string]any{
		"uuid":          user.UUID,
		"first_name":    user.FirstName,
		"last_name":     user.LastName,
		"email":         user.Email,
		"date_of_birth": dateOfBirth,
		"user_type":     user.UserType,
		"created_at":    user.CreatedAt,
		"updated_at":    user.UpdatedAt,
	}
}

func uploadFields(upload *model.Upload, url string) map[string]any {
	return map[string]any{
		"id":            upload.ID,
		"filename":      upload.Filename,
		"original_name": upload.OriginalName,
		"mime_type":     upload.MimeType,
		"kind":          upload.Kind,
		"size":          upload.Size,
		"url":           url,
		"created_at":    upload.CreatedAt,
	}
}
