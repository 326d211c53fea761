package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/checkpoint-edu/checkpoint/internal/apperr"
	"github.com/checkpoint-edu/checkpoint/internal/ctxkeys"
	"github.com/checkpoint-edu/checkpoint/internal/model"
	"github.com/checkpoint-edu/checkpoint/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

// multipart overhead allowed on top of the file itself
const formOverhead = 1 << 20

type UploadHandler struct {
	fileService *service.FileService
	maxFileSize int64
	respond     *Responder
}

func NewUploadHandler(fileService *service.FileService, maxFileSize int64, respond *Responder) *UploadHandler {
	return &UploadHandler{
		fileService: fileService,
		maxFileSize: maxFileSize,
		respond:     respond,
	}
}

func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+formOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respond.Error(w, r, apperr.Validation("file is too large",
				apperr.FieldError{Field: "file", Message: "file is too large"}))
			return
		}
		h.respond.Error(w, r, apperr.Validation("file is required",
			apperr.FieldError{Field: "file", Message: "file is required"}))
		return
	}
	defer file.Close()

	upload, err := h.fileService.Upload(r.Context(), ctxkeys.UserID(r.Context()), file, header)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.respond.JSON(w, http.StatusCreated, map[string]any{
		"message": "File uploaded successfully",
		"upload":  uploadFields(upload, h.fileService.URL(upload)),
	})
}

func (h *UploadHandler) List(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.fileService.Uploads(r.Context(), ctxkeys.UserID(r.Context()))
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.respond.JSON(w, http.StatusOK, map[string]any{
		"uploads": lo.Map(uploads, func(u *model.Upload, _ int) map[string]any {
			return uploadFields(u, h.fileService.URL(u))
		}),
	})
}

func (h *UploadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.fileService.Delete(r.Context(), ctxkeys.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.respond.JSON(w, http.StatusOK, map[string]any{"message": "File deleted successfully"})
}

// Serve streams a stored upload by its generated filename
func (h *UploadHandler) Serve(w http.ResponseWriter, r *http.Request) {
	body, upload, err := h.fileService.Open(r.Context(), chi.URLParam(r, "filename"))
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", upload.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(upload.Size, 10))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	_, err = io.Copy(w, body)
	if err != nil {
		slog.Warn("failed to stream upload", "error", err, "ref", upload.Filename)
	}
}
