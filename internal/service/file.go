package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"time"

	"github.com/checkpoint-edu/checkpoint/internal/apperr"
	"github.com/checkpoint-edu/checkpoint/internal/model"
	"github.com/checkpoint-edu/checkpoint/internal/repository"
	"github.com/checkpoint-edu/checkpoint/internal/storage"
	"github.com/checkpoint-edu/checkpoint/internal/validation"
	"github.com/google/uuid"
)

const msgUploadNotFound = "Upload not found"

type FileService struct {
	userRepository   repository.UserRepository
	uploadRepository repository.UploadRepository
	storage          storage.Storage
	tx               Transactor
	maxFileSize      int64
}

func NewFileService(
	userRepository repository.UserRepository,
	uploadRepository repository.UploadRepository,
	storage storage.Storage,
	tx Transactor,
	maxFileSize int64,
) *FileService {
	return &FileService{
		userRepository:   userRepository,
		uploadRepository: uploadRepository,
		storage:          storage,
		tx:               tx,
		maxFileSize:      maxFileSize,
	}
}

// Upload validates, stores and records a file owned by userID
func (s *FileService) Upload(ctx context.Context, userID string, file multipart.File, header *multipart.FileHeader) (*model.Upload, error) {
	err := s.requireActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	info, err := validation.ValidateFile(header, s.maxFileSize)
	if err != nil {
		return nil, apperr.Validation(err.Error(), apperr.FieldError{Field: "file", Message: err.Error()})
	}

	filename := storage.SafeName(header.Filename)

	err = s.storage.Save(ctx, filename, file)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	upload := &model.Upload{
		ID:           uuid.NewString(),
		UserUUID:     userID,
		Filename:     filename,
		OriginalName: header.Filename,
		MimeType:     info.MimeType,
		Kind:         info.Kind,
		Size:         header.Size,
		CreatedAt:    time.Now().UTC(),
	}

	// The owner row stays locked until the record is in, so an account
	// deletion either sees this upload or makes the insert fail
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		err := s.userRepository.LockActive(ctx, userID)
		if err != nil {
			return err
		}
		return s.uploadRepository.Create(ctx, upload)
	}, nil)
	if err != nil {
		// If DB insert fails, try to cleanup the uploaded file
		_, delErr := s.storage.Delete(context.WithoutCancel(ctx), filename)
		if delErr != nil {
			slog.Error("failed to delete file from storage during cleanup", "error", delErr, "ref", filename)
		}
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperr.NotFound(msgUserNotFound)
		}
		return nil, fmt.Errorf("failed to create upload record: %w", err)
	}

	slog.Info("file uploaded", "user_id", userID, "ref", filename, "kind", info.Kind, "size", header.Size)
	return upload, nil
}

func (s *FileService) Uploads(ctx context.Context, userID string) ([]*model.Upload, error) {
	err := s.requireActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.uploadRepository.ByUser(ctx, userID)
}

// Open streams a recorded upload. The caller closes the reader.
func (s *FileService) Open(ctx context.Context, filename string) (io.ReadCloser, *model.Upload, error) {
	upload, err := s.uploadRepository.ByFilename(ctx, filename)
	if errors.Is(err, repository.ErrUploadNotFound) {
		return nil, nil, apperr.NotFound(msgUploadNotFound)
	}
	if err != nil {
		return nil, nil, err
	}

	r, err := s.storage.Open(ctx, upload.Filename)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, apperr.NotFound(msgUploadNotFound)
	}
	if err != nil {
		return nil, nil, err
	}

	return r, upload, nil
}

// Delete removes the record first, then the stored file (best effort).
// Uploads of other users are reported as not found.
func (s *FileService) Delete(ctx context.Context, userID, uploadID string) error {
	upload, err := s.uploadRepository.ByID(ctx, uploadID)
	if errors.Is(err, repository.ErrUploadNotFound) {
		return apperr.NotFound(msgUploadNotFound)
	}
	if err != nil {
		return err
	}
	if upload.UserUUID != userID {
		return apperr.NotFound(msgUploadNotFound)
	}

	err = s.uploadRepository.Delete(ctx, upload.ID)
	if errors.Is(err, repository.ErrUploadNotFound) {
		return apperr.NotFound(msgUploadNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete upload record: %w", err)
	}

	_, err = s.storage.Delete(context.WithoutCancel(ctx), upload.Filename)
	if err != nil {
		slog.Error("failed to delete file from storage", "error", err, "ref", upload.Filename)
	}

	return nil
}

func (s *FileService) URL(upload *model.Upload) string {
	if upload == nil {
		return ""
	}
	return s.storage.URL(upload.Filename)
}

func (s *FileService) requireActive(ctx context.Context, userID string) error {
	user, err := s.userRepository.ByUUID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return apperr.NotFound(msgUserNotFound)
	}
	if err != nil {
		return err
	}
	if user.IsDeleted() {
		return apperr.NotFound(msgUserNotFound)
	}
	return nil
}
