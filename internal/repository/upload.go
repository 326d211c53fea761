package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/checkpoint-edu/checkpoint/internal/db"
	"github.com/checkpoint-edu/checkpoint/internal/model"
	"github.com/jmoiron/sqlx"
)

var (
	ErrUploadNotFound = errors.New("upload not found")
)

type UploadRepository interface {
	Create(ctx context.Context, upload *model.Upload) error
	ByID(ctx context.Context, id string) (*model.Upload, error)
	ByFilename(ctx context.Context, filename string) (*model.Upload, error)
	ByUser(ctx context.Context, userUUID string) ([]*model.Upload, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userUUID string) (int64, error)
}

type uploadRepository struct {
	db *sqlx.DB
}

func NewUploadRepository(db *sqlx.DB) UploadRepository {
	return &uploadRepository{db: db}
}

func (r *uploadRepository) Create(ctx context.Context, upload *model.Upload) error {
	query := `INSERT INTO uploads (id, user_uuid, filename, original_name, mime_type, kind, size, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if upload.CreatedAt.IsZero() {
		upload.CreatedAt = time.Now().UTC()
	}

	_, err := db.Conn(ctx, r.db).ExecContext(ctx, query,
		upload.ID,
		upload.UserUUID,
		upload.Filename,
		upload.OriginalName,
		upload.MimeType,
		upload.Kind,
		upload.Size,
		upload.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}

	return nil
}

func (r *uploadRepository) ByID(ctx context.Context, id string) (*model.Upload, error) {
	if !validUUID(id) {
		return nil, ErrUploadNotFound
	}

	upload := &model.Upload{}
	query := `SELECT * FROM uploads WHERE id = $1`

	err := db.Conn(ctx, r.db).GetContext(ctx, upload, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUploadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find upload: %w", err)
	}

	return upload, nil
}

func (r *uploadRepository) ByFilename(ctx context.Context, filename string) (*model.Upload, error) {
	upload := &model.Upload{}
	query := `SELECT * FROM uploads WHERE filename = $1`

	err := db.Conn(ctx, r.db).GetContext(ctx, upload, query, filename)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUploadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find upload: %w", err)
	}

	return upload, nil
}

func (r *uploadRepository) ByUser(ctx context.Context, userUUID string) ([]*model.Upload, error) {
	if !validUUID(userUUID) {
		return nil, nil
	}

	var uploads []*model.Upload
	query := `SELECT * FROM uploads WHERE user_uuid = $1 ORDER BY created_at DESC`

	err := db.Conn(ctx, r.db).SelectContext(ctx, &uploads, query, userUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}

	return uploads, nil
}

func (r *uploadRepository) Delete(ctx context.Context, id string) error {
	if !validUUID(id) {
		return ErrUploadNotFound
	}

	query := `DELETE FROM uploads WHERE id = $1`

	result, err := db.Conn(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrUploadNotFound
	}

	return nil
}

// DeleteByUser removes every upload record of a user and reports how many went.
func (r *uploadRepository) DeleteByUser(ctx context.Context, userUUID string) (int64, error) {
	if !validUUID(userUUID) {
		return 0, nil
	}

	query := `DELETE FROM uploads WHERE user_uuid = $1`

	result, err := db.Conn(ctx, r.db).ExecContext(ctx, query, userUUID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete uploads: %w", err)
	}

	return result.RowsAffected()
}
