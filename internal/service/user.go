package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/checkpoint-edu/checkpoint/internal/apperr"
	"github.com/checkpoint-edu/checkpoint/internal/auth"
	"github.com/checkpoint-edu/checkpoint/internal/model"
	"github.com/checkpoint-edu/checkpoint/internal/repository"
	"github.com/checkpoint-edu/checkpoint/internal/storage"
	"github.com/checkpoint-edu/checkpoint/internal/validation"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgAccountDeleted     = "This account has been deleted"
	msgUserNotFound       = "User not found"
	msgEmailRegistered    = "User with this email already exists"
	msgEmailTaken         = "Email is already taken"
	msgWrongPassword      = "Current password is incorrect"
	msgInvalidToken       = "Invalid or expired token"
)

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) (bool, error)
}

type TokenIssuer interface {
	Issue(claims auth.Claims) (string, error)
	Verify(token string) (*auth.Claims, error)
}

// Transactor runs fn in a store transaction; afterCommit runs only after commit
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error, afterCommit func(ctx context.Context)) error
}

type BatchDeleter interface {
	DeleteBatch(ctx context.Context, refs []string) storage.BatchResult
}

type Mailer interface {
	SendWelcomeEmail(ctx context.Context, to, name string) error
	SendPasswordChangedEmail(ctx context.Context, to, name string) error
	SendAccountDeletedEmail(ctx context.Context, to, name string) error
}

type UserService struct {
	userRepository   repository.UserRepository
	uploadRepository repository.UploadRepository
	files            BatchDeleter
	hasher           PasswordHasher
	tokens           TokenIssuer
	tx               Transactor
	mailer           Mailer
}

func NewUserService(
	userRepository repository.UserRepository,
	uploadRepository repository.UploadRepository,
	files BatchDeleter,
	hasher PasswordHasher,
	tokens TokenIssuer,
	tx Transactor,
	mailer Mailer,
) *UserService {
	return &UserService{
		userRepository:   userRepository,
		uploadRepository: uploadRepository,
		files:            files,
		hasher:           hasher,
		tokens:           tokens,
		tx:               tx,
		mailer:           mailer,
	}
}

// AuthResult is a user together with a freshly issued session token
type AuthResult struct {
	User  *model.User
	Token string
}

type RegisterInput struct {
	FirstName   string
	LastName    string
	Email       string
	Password    string
	UserType    string
	DateOfBirth *time.Time
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := validation.NormalizeEmail(in.Email)

	userType := in.UserType
	if userType == "" {
		userType = model.UserTypeStudent
	}
	if !model.ValidUserType(userType) {
		return nil, apperr.Validation("user_type must be either 'student' or 'teacher'",
			apperr.FieldError{Field: "user_type", Message: "user_type must be either 'student' or 'teacher'"})
	}

	// Fast path only; the unique index decides under concurrent registration
	exists, err := s.userRepository.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, apperr.Conflict(msgEmailRegistered)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.userRepository.Create(ctx, &model.User{
		UUID:         uuid.NewString(),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        email,
		PasswordHash: hash,
		DateOfBirth:  in.DateOfBirth,
		UserType:     userType,
	})
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return nil, apperr.Conflict(msgEmailRegistered)
	}
	if err != nil {
		return nil, err
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}

	slog.Info("user registered", "user_id", user.UUID, "user_type", user.UserType)
	s.notify(ctx, "welcome", func(ctx context.Context) error {
		return s.mailer.SendWelcomeEmail(ctx, user.Email, user.FirstName)
	})

	return &AuthResult{User: withoutHash(user), Token: token}, nil
}

// Login answers an unknown email and a wrong password identically. Deleted
// accounts are told so explicitly.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.userRepository.ByEmail(ctx, validation.NormalizeEmail(email))
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, apperr.Authentication(msgInvalidCredentials)
	}
	if err != nil {
		return nil, err
	}

	if user.IsDeleted() {
		return nil, apperr.Authorization(msgAccountDeleted)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, apperr.Authentication(msgInvalidCredentials)
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: withoutHash(user), Token: token}, nil
}

func (s *UserService) Profile(ctx context.Context, id string) (*model.User, error) {
	user, err := s.activeUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return withoutHash(user), nil
}

// UpdateProfile applies the supplied fields and reissues the token. Tokens
// issued earlier stay valid until they expire.
func (s *UserService) UpdateProfile(ctx context.Context, id string, update repository.ProfileUpdate) (*AuthResult, error) {
	if update.Empty() {
		return nil, apperr.Validation("No fields to update")
	}

	user, err := s.activeUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Email != nil {
		email := validation.NormalizeEmail(*update.Email)
		update.Email = &email

		if email != user.Email {
			exists, err := s.userRepository.ExistsByEmail(ctx, email)
			if err != nil {
				return nil, fmt.Errorf("failed to check email: %w", err)
			}
			if exists {
				return nil, apperr.Conflict(msgEmailTaken)
			}
		}
	}

	updated, err := s.userRepository.UpdateProfile(ctx, user.UUID, update)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return nil, apperr.NotFound(msgUserNotFound)
	case errors.Is(err, repository.ErrDuplicateEmail):
		return nil, apperr.Conflict(msgEmailTaken)
	case err != nil:
		return nil, err
	}

	token, err := s.issueToken(updated)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: withoutHash(updated), Token: token}, nil
}

func (s *UserService) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	user, err := s.activeUser(ctx, id)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return apperr.Authentication(msgWrongPassword)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = s.userRepository.UpdatePasswordHash(ctx, user.UUID, hash)
	if errors.Is(err, repository.ErrUserNotFound) {
		return apperr.NotFound(msgUserNotFound)
	}
	if err != nil {
		return err
	}

	slog.Info("password changed", "user_id", user.UUID)
	s.notify(ctx, "password_changed", func(ctx context.Context) error {
		return s.mailer.SendPasswordChangedEmail(ctx, user.Email, user.FirstName)
	})

	return nil
}

// DeleteAccount anonymizes the user and drops their upload records in one
// transaction. Stored files are purged only after that transaction has
// committed; purge failures are logged and never undo the deletion.
func (s *UserService) DeleteAccount(ctx context.Context, id string) error {
	user, err := s.activeUser(ctx, id)
	if err != nil {
		return err
	}

	// Hash of random data nobody knows, so the account can never sign in again
	placeholderHash, err := s.hasher.Hash(uuid.NewString())
	if err != nil {
		return fmt.Errorf("failed to hash placeholder: %w", err)
	}

	var refs []string
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		err := s.userRepository.SoftDelete(ctx, user.UUID, placeholderHash)
		if err != nil {
			return err
		}

		uploads, err := s.uploadRepository.ByUser(ctx, user.UUID)
		if err != nil {
			return err
		}

		_, err = s.uploadRepository.DeleteByUser(ctx, user.UUID)
		if err != nil {
			return err
		}

		refs = lo.Uniq(lo.Map(uploads, func(u *model.Upload, _ int) string {
			return u.Filename
		}))
		return nil
	}, func(ctx context.Context) {
		s.purgeFiles(ctx, user.UUID, refs)
		s.notify(ctx, "account_deleted", func(ctx context.Context) error {
			return s.mailer.SendAccountDeletedEmail(ctx, user.Email, user.FirstName)
		})
	})
	if errors.Is(err, repository.ErrUserNotFound) {
		// Lost a race with another deletion of the same account
		return apperr.NotFound(msgUserNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	slog.Info("account deleted", "user_id", user.UUID, "files", len(refs))
	return nil
}

func (s *UserService) purgeFiles(ctx context.Context, userID string, refs []string) {
	if len(refs) == 0 {
		return
	}

	result := s.files.DeleteBatch(ctx, refs)
	slog.Info("account files purged",
		"user_id", userID,
		"deleted", result.Deleted,
		"failed", result.Failed,
	)
	for _, fileErr := range result.Errors {
		slog.Warn("failed to purge file", "user_id", userID, "ref", fileErr.Ref, "error", fileErr.Message)
	}
}

// ValidateToken returns the claims of a valid token
func (s *UserService) ValidateToken(token string) (*auth.Claims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, apperr.Authentication(msgInvalidToken)
	}
	return claims, nil
}

func (s *UserService) IsEmailAvailable(ctx context.Context, email string) (bool, error) {
	exists, err := s.userRepository.ExistsByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return !exists, nil
}

func (s *UserService) IsDeleted(ctx context.Context, id string) (bool, error) {
	deleted, err := s.userRepository.IsDeleted(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return false, apperr.NotFound(msgUserNotFound)
	}
	return deleted, err
}

// activeUser loads a user that exists and is not deleted. Both failures
// look the same to the caller.
func (s *UserService) activeUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepository.ByUUID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, apperr.NotFound(msgUserNotFound)
	}
	if err != nil {
		return nil, err
	}
	if user.IsDeleted() {
		return nil, apperr.NotFound(msgUserNotFound)
	}
	return user, nil
}

func (s *UserService) issueToken(user *model.User) (string, error) {
	token, err := s.tokens.Issue(auth.ClaimsFor(user))
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}
	return token, nil
}

// notify sends an email and only logs a failure
func (s *UserService) notify(ctx context.Context, kind string, send func(ctx context.Context) error) {
	if s.mailer == nil {
		return
	}
	err := send(ctx)
	if err != nil {
		slog.Warn("failed to send email", "type", kind, "error", err)
	}
}

func withoutHash(user *model.User) *model.User {
	clean := *user
	clean.PasswordHash = ""
	return &clean
}
