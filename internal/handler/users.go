package handler

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/checkpoint-edu/checkpoint/internal/ctxkeys"
	"github.com/checkpoint-edu/checkpoint/internal/repository"
	"github.com/checkpoint-edu/checkpoint/internal/service"
	"github.com/checkpoint-edu/checkpoint/internal/validation"
	"github.com/samber/lo"
)

type UserHandler struct {
	userService *service.UserService
	respond     *Responder
}

func NewUserHandler(userService *service.UserService, respond *Responder) *UserHandler {
	return &UserHandler{
		userService: userService,
		respond:     respond,
	}
}

type registerRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	UserType    string `json:"user_type"`
	DateOfBirth string `json:"date_of_birth"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// optionalString tells an absent field apart from an explicit null
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, []byte("null")) {
		o.Value = nil
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

type profileRequest struct {
	FirstName   optionalString `json:"first_name"`
	LastName    optionalString `json:"last_name"`
	Email       optionalString `json:"email"`
	DateOfBirth optionalString `json:"date_of_birth"`
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	err := decodeJSON(r, &req)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	req.FirstName = validation.SanitizeName(req.FirstName)
	req.LastName = validation.SanitizeName(req.LastName)
	req.Email = validation.NormalizeEmail(req.Email)

	var v validation.Checker
	v.Required("first_name", req.FirstName)
	v.Required("last_name", req.LastName)
	if v.Required("email", req.Email) {
		v.Check("email", validation.ValidateNewEmail(req.Email))
	}
	if v.Required("password", req.Password) {
		v.Check("password", validation.ValidatePassword(req.Password))
	}
	dateOfBirth, err := validation.ParseDateOfBirth(req.DateOfBirth)
	v.Check("date_of_birth", err)
	if !v.Valid() {
		h.respond.Error(w, r, v.Err())
		return
	}

	result, err := h.userService.Register(r.Context(), service.RegisterInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Password:    req.Password,
		UserType:    req.UserType,
		DateOfBirth: dateOfBirth,
	})
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.respond.JSON(w, http.StatusCreated, authPayload(result, "Registration successful"))
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	err := decodeJSON(r, &req)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	req.Email = validation.NormalizeEmail(req.Email)

	var v validation.Checker
	if v.Required("email", req.Email) {
		v.Check("email", validation.ValidateEmail(req.Email))
	}
	v.Required("password", req.Password)
	if !v.Valid() {
		h.respond.Error(w, r, v.Err())
		return
	}

	result, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.respond.JSON(w, http.StatusOK, authPayload(result, "Login successful"))
}

// ValidateToken reports the user behind a bearer token that passed the auth middleware
func (h *UserHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.Profile(r.Context(), ctxkeys.UserID(r.Context()))
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.respond.JSON(w, http.StatusOK, lo.Assign(userFields(user), map[string]any{"valid": true}))
}

func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.Profile(r.Context(), ctxkeys.UserID(r.Context()))
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.respond.JSON(w, http.StatusOK, userFields(user))
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	err := decodeJSON(r, &req)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	var update repository.ProfileUpdate
	var v validation.Checker

	if req.FirstName.Set {
		name := validation.SanitizeName(lo.FromPtr(req.FirstName.Value))
		v.Check("first_name", validation.ValidateName(name))
		update.FirstName = &name
	}
	if req.LastName.Set {
		name := validation.SanitizeName(lo.FromPtr(req.LastName.Value))
		v.Check("last_name", validation.ValidateName(name))
		update.LastName = &name
	}
	if req.Email.Set {
		email := validation.NormalizeEmail(lo.FromPtr(req.Email.Value))
		v.Check("email", validation.ValidateNewEmail(email))
		update.Email = &email
	}
	if req.DateOfBirth.Set {
		// "" and null both clear the date
		dateOfBirth, err := validation.ParseDateOfBirth(lo.FromPtr(req.DateOfBirth.Value))
		v.Check("date_of_birth", err)
		update.DateOfBirth = dateOfBirth
		update.DateOfBirthSet = true
	}
	if !v.Valid() {
		h.respond.Error(w, r, v.Err())
		return
	}

	result, err := h.userService.UpdateProfile(r.Context(), ctxkeys.UserID(r.Context()), update)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.respond.JSON(w, http.StatusOK, authPayload(result, "Profile updated successfully"))
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	err := decodeJSON(r, &req)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	var v validation.Checker
	v.Required("current_password", req.CurrentPassword)
	if v.Required("new_password", req.NewPassword) {
		v.Check("new_password", validation.ValidatePassword(req.NewPassword))
	}
	if !v.Valid() {
		h.respond.Error(w, r, v.Err())
		return
	}

	err = h.userService.ChangePassword(r.Context(), ctxkeys.UserID(r.Context()), req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.respond.JSON(w, http.StatusOK, map[string]any{"message": "Password updated successfully"})
}

func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	err := h.userService.DeleteAccount(r.Context(), ctxkeys.UserID(r.Context()))
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.respond.JSON(w, http.StatusOK, map[string]any{"message": "Account deleted successfully"})
}

func (h *UserHandler) EmailAvailable(w http.ResponseWriter, r *http.Request) {
	email := validation.NormalizeEmail(r.URL.Query().Get("email"))

	var v validation.Checker
	if v.Required("email", email) {
		v.Check("email", validation.ValidateEmail(email))
	}
	if !v.Valid() {
		h.respond.Error(w, r, v.Err())
		return
	}

	available, err := h.userService.IsEmailAvailable(r.Context(), email)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.respond.JSON(w, http.StatusOK, map[string]any{"email": email, "available": available})
}

func authPayload(result *service.AuthResult, message string) map[string]any {
	return lo.Assign(userFields(result.User), map[string]any{
		"token":   result.Token,
		"message": message,
	})
}

