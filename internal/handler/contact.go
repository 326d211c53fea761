package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/checkpoint-edu/checkpoint/internal/validation"
)

const maxContactMessage = 5000

var errMessageTooLong = errors.New("message must not exceed 5000 characters")

type ContactMailer interface {
	SendContactForm(ctx context.Context, name, from, message string) error
}

type ContactHandler struct {
	mailer  ContactMailer
	respond *Responder
}

func NewContactHandler(mailer ContactMailer, respond *Responder) *ContactHandler {
	return &ContactHandler{mailer: mailer, respond: respond}
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	err := decodeJSON(r, &req)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	req.Name = validation.SanitizeName(req.Name)
	req.Email = validation.NormalizeEmail(req.Email)
	req.Message = strings.TrimSpace(req.Message)

	var v validation.Checker
	v.Required("name", req.Name)
	if v.Required("email", req.Email) {
		v.Check("email", validation.ValidateEmail(req.Email))
	}
	if v.Required("message", req.Message) && len(req.Message) > maxContactMessage {
		v.Check("message", errMessageTooLong)
	}
	if !v.Valid() {
		h.respond.Error(w, r, v.Err())
		return
	}

	err = h.mailer.SendContactForm(r.Context(), req.Name, req.Email, req.Message)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.respond.JSON(w, http.StatusOK, map[string]any{"message": "Message sent successfully"})
}
