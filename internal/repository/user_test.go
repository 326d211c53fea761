package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/checkpoint-edu/checkpoint/internal/db"
	"github.com/checkpoint-edu/checkpoint/internal/model"
	"github.com/checkpoint-edu/checkpoint/internal/repository"
	"github.com/checkpoint-edu/checkpoint/internal/testutil"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(email string) *model.User {
	return &model.User{
		UUID:         uuid.NewString(),
		FirstName:    "Grace",
		LastName:     "Hopper",
		Email:        email,
		PasswordHash: "$2a$04$placeholder",
		UserType:     model.UserTypeTeacher,
	}
}

func TestUserRepositorySQLite(t *testing.T) {
	runUserRepositoryTests(t, testutil.NewTestDB(t))
}

func TestUserRepositoryPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	runUserRepositoryTests(t, testutil.NewPostgresDB(t))
}

func runUserRepositoryTests(t *testing.T, conn *sqlx.DB) {
	repo := repository.NewUserRepository(conn)
	tr := db.NewTransactor(conn)
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		u := newUser("create@example.com")
		dob := time.Date(1990, 4, 2, 0, 0, 0, 0, time.UTC)
		u.DateOfBirth = &dob

		created, err := repo.Create(ctx, u)
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, u.UUID, created.UUID)
		assert.False(t, created.IsDeleted())
		require.NotNil(t, created.DateOfBirth)
		assert.Equal(t, "1990-04-02", created.DateOfBirth.Format(time.DateOnly))

		byEmail, err := repo.ByEmail(ctx, "create@example.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)

		byUUID, err := repo.ByUUID(ctx, u.UUID)
		require.NoError(t, err)
		assert.Equal(t, "create@example.com", byUUID.Email)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := repo.ByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, repository.ErrUserNotFound)

		_, err = repo.ByUUID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, repository.ErrUserNotFound)

		_, err = repo.ByUUID(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, repository.ErrUserNotFound)
	})

	t.Run("duplicate email is rejected by the store", func(t *testing.T) {
		_, err := repo.Create(ctx, newUser("dup@example.com"))
		require.NoError(t, err)

		_, err = repo.Create(ctx, newUser("dup@example.com"))
		assert.ErrorIs(t, err, repository.ErrDuplicateEmail)
	})

	t.Run("update profile touches only supplied fields", func(t *testing.T) {
		created, err := repo.Create(ctx, newUser("profile@example.com"))
		require.NoError(t, err)

		updated, err := repo.UpdateProfile(ctx, created.UUID, repository.ProfileUpdate{
			FirstName: lo.ToPtr("Amazing"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Amazing", updated.FirstName)
		assert.Equal(t, "Hopper", updated.LastName)
		assert.Equal(t, "profile@example.com", updated.Email)
		assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

		dob := time.Date(2001, 12, 31, 0, 0, 0, 0, time.UTC)
		updated, err = repo.UpdateProfile(ctx, created.UUID, repository.ProfileUpdate{
			DateOfBirth:    &dob,
			DateOfBirthSet: true,
		})
		require.NoError(t, err)
		require.NotNil(t, updated.DateOfBirth)

		updated, err = repo.UpdateProfile(ctx, created.UUID, repository.ProfileUpdate{DateOfBirthSet: true})
		require.NoError(t, err)
		assert.Nil(t, updated.DateOfBirth)
		assert.Equal(t, "Amazing", updated.FirstName)
	})

	t.Run("update profile to a taken email", func(t *testing.T) {
		_, err := repo.Create(ctx, newUser("taken@example.com"))
		require.NoError(t, err)
		other, err := repo.Create(ctx, newUser("other@example.com"))
		require.NoError(t, err)

		_, err = repo.UpdateProfile(ctx, other.UUID, repository.ProfileUpdate{Email: lo.ToPtr("taken@example.com")})
		assert.ErrorIs(t, err, repository.ErrDuplicateEmail)
	})

	t.Run("update password hash", func(t *testing.T) {
		created, err := repo.Create(ctx, newUser("password@example.com"))
		require.NoError(t, err)

		updated, err := repo.UpdatePasswordHash(ctx, created.UUID, "new-hash")
		require.NoError(t, err)
		assert.Equal(t, "new-hash", updated.PasswordHash)

		_, err = repo.UpdatePasswordHash(ctx, uuid.NewString(), "new-hash")
		assert.ErrorIs(t, err, repository.ErrUserNotFound)
	})

	t.Run("soft delete requires a transaction", func(t *testing.T) {
		created, err := repo.Create(ctx, newUser("notx@example.com"))
		require.NoError(t, err)

		err = repo.SoftDelete(ctx, created.UUID, "placeholder")
		assert.ErrorIs(t, err, repository.ErrNoTransaction)

		deleted, err := repo.IsDeleted(ctx, created.UUID)
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("soft delete anonymizes and frees the email", func(t *testing.T) {
		u := newUser("gone@example.com")
		dob := time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC)
		u.DateOfBirth = &dob
		created, err := repo.Create(ctx, u)
		require.NoError(t, err)

		err = tr.WithinTx(ctx, func(ctx context.Context) error {
			return repo.SoftDelete(ctx, created.UUID, "placeholder-hash")
		}, nil)
		require.NoError(t, err)

		row, err := repo.ByUUID(ctx, created.UUID)
		require.NoError(t, err)
		assert.True(t, row.IsDeleted())
		assert.Equal(t, model.DeletedEmail(created.UUID), row.Email)
		assert.Equal(t, repository.DeletedFirstName, row.FirstName)
		assert.Equal(t, repository.DeletedLastName, row.LastName)
		assert.Equal(t, "placeholder-hash", row.PasswordHash)
		assert.Nil(t, row.DateOfBirth)
		assert.Equal(t, created.ID, row.ID, "row is kept")

		exists, err := repo.ExistsByEmail(ctx, "gone@example.com")
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = repo.Create(ctx, newUser("gone@example.com"))
		assert.NoError(t, err)

		deleted, err := repo.IsDeleted(ctx, created.UUID)
		require.NoError(t, err)
		assert.True(t, deleted)
	})

	t.Run("soft delete twice reports not found", func(t *testing.T) {
		created, err := repo.Create(ctx, newUser("twice@example.com"))
		require.NoError(t, err)

		softDelete := func() error {
			return tr.WithinTx(ctx, func(ctx context.Context) error {
				return repo.SoftDelete(ctx, created.UUID, "placeholder")
			}, nil)
		}

		require.NoError(t, softDelete())
		assert.ErrorIs(t, softDelete(), repository.ErrUserNotFound)
	})

	t.Run("deleted users are not updated", func(t *testing.T) {
		created, err := repo.Create(ctx, newUser("frozen@example.com"))
		require.NoError(t, err)
		require.NoError(t, tr.WithinTx(ctx, func(ctx context.Context) error {
			return repo.SoftDelete(ctx, created.UUID, "placeholder")
		}, nil))

		_, err = repo.UpdateProfile(ctx, created.UUID, repository.ProfileUpdate{FirstName: lo.ToPtr("Back")})
		assert.ErrorIs(t, err, repository.ErrUserNotFound)

		_, err = repo.UpdatePasswordHash(ctx, created.UUID, "hash")
		assert.ErrorIs(t, err, repository.ErrUserNotFound)
	})

	t.Run("rolled back soft delete leaves the row active", func(t *testing.T) {
		created, err := repo.Create(ctx, newUser("rollback@example.com"))
		require.NoError(t, err)

		err = tr.WithinTx(ctx, func(ctx context.Context) error {
			require.NoError(t, repo.SoftDelete(ctx, created.UUID, "placeholder"))
			return assert.AnError
		}, nil)
		require.ErrorIs(t, err, assert.AnError)

		row, err := repo.ByEmail(ctx, "rollback@example.com")
		require.NoError(t, err)
		assert.False(t, row.IsDeleted())
	})

	t.Run("lock active only holds active rows", func(t *testing.T) {
		created, err := repo.Create(ctx, newUser("lock@example.com"))
		require.NoError(t, err)

		lock := func() error {
			return tr.WithinTx(ctx, func(ctx context.Context) error {
				return repo.LockActive(ctx, created.UUID)
			}, nil)
		}

		assert.ErrorIs(t, repo.LockActive(ctx, created.UUID), repository.ErrNoTransaction)
		require.NoError(t, lock())

		require.NoError(t, tr.WithinTx(ctx, func(ctx context.Context) error {
			return repo.SoftDelete(ctx, created.UUID, "placeholder")
		}, nil))
		assert.ErrorIs(t, lock(), repository.ErrUserNotFound)
	})
}
