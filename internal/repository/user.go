package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/checkpoint-edu/checkpoint/internal/db"
	"github.com/checkpoint-edu/checkpoint/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
	ErrNoTransaction  = errors.New("operation requires a transaction")
)

// Placeholder names written on soft delete
const (
	DeletedFirstName = "[Deleted]"
	DeletedLastName  = "User"
)

// ProfileUpdate holds the fields to change. Nil fields are left untouched.
// DateOfBirthSet distinguishes clearing the date from leaving it alone.
type ProfileUpdate struct {
	FirstName      *string
	LastName       *string
	Email          *string
	DateOfBirth    *time.Time
	DateOfBirthSet bool
}

func (u ProfileUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Email == nil && !u.DateOfBirthSet
}

// UserRepository methods run on the transaction carried by ctx when there is one.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) (*model.User, error)
	ByEmail(ctx context.Context, email string) (*model.User, error)
	ByUUID(ctx context.Context, id string) (*model.User, error)
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*model.User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) (*model.User, error)
	SoftDelete(ctx context.Context, id, placeholderHash string) error
	LockActive(ctx context.Context, id string) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	IsDeleted(ctx context.Context, id string) (bool, error)
}

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) (*model.User, error) {
	query := `INSERT INTO users (uuid, first_name, last_name, email, password_hash, date_of_birth, user_type, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	          RETURNING *`

	now := time.Now().UTC()
	created := &model.User{}
	err := db.Conn(ctx, r.db).GetContext(ctx, created, query,
		user.UUID,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PasswordHash,
		user.DateOfBirth,
		user.UserType,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return created, nil
}

// ByEmail includes deleted rows; their email is already the placeholder.
func (r *userRepository) ByEmail(ctx context.Context, email string) (*model.User, error) {
	user := &model.User{}
	query := `SELECT * FROM users WHERE email = $1 LIMIT 1`

	err := db.Conn(ctx, r.db).GetContext(ctx, user, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	return user, nil
}

// ByUUID includes deleted rows.
func (r *userRepository) ByUUID(ctx context.Context, id string) (*model.User, error) {
	if !validUUID(id) {
		return nil, ErrUserNotFound
	}

	user := &model.User{}
	query := `SELECT * FROM users WHERE uuid = $1`

	err := db.Conn(ctx, r.db).GetContext(ctx, user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*model.User, error) {
	if !validUUID(id) {
		return nil, ErrUserNotFound
	}

	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.FirstName != nil {
		set("first_name", *update.FirstName)
	}
	if update.LastName != nil {
		set("last_name", *update.LastName)
	}
	if update.Email != nil {
		set("email", *update.Email)
	}
	if update.DateOfBirthSet {
		set("date_of_birth", update.DateOfBirth)
	}
	set("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE uuid = $%d AND deleted_at IS NULL RETURNING *`,
		strings.Join(sets, ", "), len(args))

	user := &model.User{}
	err := db.Conn(ctx, r.db).GetContext(ctx, user, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return user, nil
}

func (r *userRepository) UpdatePasswordHash(ctx context.Context, id, hash string) (*model.User, error) {
	if !validUUID(id) {
		return nil, ErrUserNotFound
	}

	user := &model.User{}
	query := `UPDATE users SET password_hash = $1, updated_at = $2 WHERE uuid = $3 AND deleted_at IS NULL RETURNING *`

	err := db.Conn(ctx, r.db).GetContext(ctx, user, query, hash, time.Now().UTC(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update password: %w", err)
	}

	return user, nil
}

// SoftDelete anonymizes the row. It only runs inside a transaction and
// returns ErrUserNotFound if the user is absent or already deleted.
func (r *userRepository) SoftDelete(ctx context.Context, id, placeholderHash string) error {
	tx, ok := db.TxFrom(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !validUUID(id) {
		return ErrUserNotFound
	}

	query := `UPDATE users
	          SET email = $1, first_name = $2, last_name = $3, password_hash = $4,
	              date_of_birth = NULL, deleted_at = $5, updated_at = $6
	          WHERE uuid = $7 AND deleted_at IS NULL`

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, query,
		model.DeletedEmail(id),
		DeletedFirstName,
		DeletedLastName,
		placeholderHash,
		now,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to soft delete user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

// LockActive takes the row lock of an active user until the transaction in
// ctx ends, so a concurrent SoftDelete waits for it or is waited on.
func (r *userRepository) LockActive(ctx context.Context, id string) error {
	tx, ok := db.TxFrom(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !validUUID(id) {
		return ErrUserNotFound
	}

	result, err := tx.ExecContext(ctx, `UPDATE users SET updated_at = updated_at WHERE uuid = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

// ExistsByEmail only considers active users.
func (r *userRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND deleted_at IS NULL)`

	err := db.Conn(ctx, r.db).GetContext(ctx, &exists, query, email)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}

	return exists, nil
}

func (r *userRepository) IsDeleted(ctx context.Context, id string) (bool, error) {
	user, err := r.ByUUID(ctx, id)
	if err != nil {
		return false, err
	}
	return user.IsDeleted(), nil
}

// isUniqueViolation works for both SQLite and PostgreSQL
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "duplicate key value")
}

func validUUID(id string) bool {
	return uuid.Validate(id) == nil
}
