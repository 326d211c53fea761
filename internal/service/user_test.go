package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/checkpoint-edu/checkpoint/internal/apperr"
	"github.com/checkpoint-edu/checkpoint/internal/auth"
	"github.com/checkpoint-edu/checkpoint/internal/db"
	"github.com/checkpoint-edu/checkpoint/internal/model"
	"github.com/checkpoint-edu/checkpoint/internal/repository"
	"github.com/checkpoint-edu/checkpoint/internal/storage"
	"github.com/checkpoint-edu/checkpoint/internal/testutil"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type sentEmail struct {
	kind string
	to   string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (m *fakeMailer) record(kind, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentEmail{kind: kind, to: to})
	return m.err
}

func (m *fakeMailer) SendWelcomeEmail(_ context.Context, to, _ string) error {
	return m.record("welcome", to)
}

func (m *fakeMailer) SendPasswordChangedEmail(_ context.Context, to, _ string) error {
	return m.record("password_changed", to)
}

func (m *fakeMailer) SendAccountDeletedEmail(_ context.Context, to, _ string) error {
	return m.record("account_deleted", to)
}

func (m *fakeMailer) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Map(m.sent, func(e sentEmail, _ int) string { return e.kind })
}

// recordingDeleter wraps a storage backend and records every batch
type recordingDeleter struct {
	next    BatchDeleter
	onBatch func(refs []string)
	batches [][]string
	results []storage.BatchResult
}

func (d *recordingDeleter) DeleteBatch(ctx context.Context, refs []string) storage.BatchResult {
	d.batches = append(d.batches, refs)
	if d.onBatch != nil {
		d.onBatch(refs)
	}
	result := d.next.DeleteBatch(ctx, refs)
	d.results = append(d.results, result)
	return result
}

type fixture struct {
	conn    *sqlx.DB
	users   repository.UserRepository
	uploads repository.UploadRepository
	store   *storage.LocalStorage
	files   *recordingDeleter
	tokens  *auth.TokenIssuer
	mailer  *fakeMailer
	svc     *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn := testutil.NewTestDB(t)
	store, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "uploads"), "/uploads")
	require.NoError(t, err)

	f := &fixture{
		conn:    conn,
		users:   repository.NewUserRepository(conn),
		uploads: repository.NewUploadRepository(conn),
		store:   store,
		files:   &recordingDeleter{next: store},
		tokens:  auth.NewTokenIssuer("test-secret", time.Hour),
		mailer:  &fakeMailer{},
	}
	f.svc = NewUserService(f.users, f.uploads, f.files, auth.NewBcryptHasher(bcrypt.MinCost), f.tokens, db.NewTransactor(conn), f.mailer)
	return f
}

func (f *fixture) register(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	res, err := f.svc.Register(t.Context(), RegisterInput{
		FirstName: "Jean",
		LastName:  "Piaget",
		Email:     email,
		Password:  password,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) addUpload(t *testing.T, userID, filename string) {
	t.Helper()
	require.NoError(t, f.store.Save(t.Context(), filename, strings.NewReader("content of "+filename)))
	require.NoError(t, f.uploads.Create(t.Context(), &model.Upload{
		ID:           uuid.NewString(),
		UserUUID:     userID,
		Filename:     filename,
		OriginalName: filename,
		MimeType:     "text/plain",
		Kind:         model.UploadKindDocument,
		Size:         10,
	}))
}

func requireKind(t *testing.T, err error, kind apperr.Kind, message string) {
	t.Helper()
	appErr := apperr.As(err)
	require.NotNil(t, appErr, "expected an apperr, got %v", err)
	assert.Equal(t, kind, appErr.Kind)
	if message != "" {
		assert.Equal(t, message, appErr.Message)
	}
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	res := f.register(t, "  Jean@Example.com ", "secret1")

	assert.NotEmpty(t, res.Token)
	assert.Empty(t, res.User.PasswordHash)
	assert.Equal(t, "jean@example.com", res.User.Email)
	assert.Equal(t, model.UserTypeStudent, res.User.UserType)
	require.NoError(t, uuid.Validate(res.User.UUID))

	claims, err := f.svc.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.UUID, claims.UUID)
	assert.Equal(t, "jean@example.com", claims.Email)

	stored, err := f.users.ByUUID(t.Context(), res.User.UUID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$2"))

	assert.Equal(t, []string{"welcome"}, f.mailer.kinds())
}

func TestRegisterRejectsUnknownUserType(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(t.Context(), RegisterInput{
		FirstName: "A", LastName: "B", Email: "a@example.com", Password: "secret1", UserType: "admin",
	})
	requireKind(t, err, apperr.KindValidation, "")
}

func TestRegisterTwiceConflicts(t *testing.T) {
	f := newFixture(t)

	f.register(t, "twice@example.com", "first-pass")

	_, err := f.svc.Register(t.Context(), RegisterInput{
		FirstName: "Other", LastName: "Person", Email: "twice@example.com", Password: "second-pass",
	})
	requireKind(t, err, apperr.KindConflict, msgEmailRegistered)

	_, err = f.svc.Login(t.Context(), "twice@example.com", "second-pass")
	requireKind(t, err, apperr.KindAuthentication, msgInvalidCredentials)

	_, err = f.svc.Login(t.Context(), "twice@example.com", "first-pass")
	assert.NoError(t, err)
}

// racingUsers hides existing rows from the pre-check, as if two
// registrations checked at the same moment
type racingUsers struct {
	repository.UserRepository
}

func (racingUsers) ExistsByEmail(context.Context, string) (bool, error) {
	return false, nil
}

func TestRegisterRaceSurfacesAsConflict(t *testing.T) {
	f := newFixture(t)
	f.register(t, "race@example.com", "secret1")

	racing := NewUserService(racingUsers{f.users}, f.uploads, f.files, auth.NewBcryptHasher(bcrypt.MinCost), f.tokens, db.NewTransactor(f.conn), nil)
	_, err := racing.Register(t.Context(), RegisterInput{
		FirstName: "B", LastName: "C", Email: "race@example.com", Password: "secret1",
	})
	requireKind(t, err, apperr.KindConflict, msgEmailRegistered)
}

func TestLoginFailuresLookAlike(t *testing.T) {
	f := newFixture(t)
	f.register(t, "known@example.com", "right-password")

	_, unknownErr := f.svc.Login(t.Context(), "unknown@example.com", "right-password")
	_, wrongErr := f.svc.Login(t.Context(), "known@example.com", "wrong-password")

	requireKind(t, unknownErr, apperr.KindAuthentication, msgInvalidCredentials)
	requireKind(t, wrongErr, apperr.KindAuthentication, msgInvalidCredentials)
	assert.Equal(t, apperr.As(unknownErr).Message, apperr.As(wrongErr).Message)

	res, err := f.svc.Login(t.Context(), "KNOWN@example.com", "right-password")
	require.NoError(t, err)
	assert.Empty(t, res.User.PasswordHash)
	assert.NotEmpty(t, res.Token)
}

func TestLoginDeletedAccountIsForbidden(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "leaving@example.com", "secret1")
	require.NoError(t, f.svc.DeleteAccount(t.Context(), res.User.UUID))

	// Soft delete rewrites the email, so the 403 branch is only reachable
	// through a lookup that still matches the anonymized row. Here that is
	// the placeholder address; clients using the original email get the
	// generic 401 below.
	_, err := f.svc.Login(t.Context(), model.DeletedEmail(res.User.UUID), "secret1")
	requireKind(t, err, apperr.KindAuthorization, msgAccountDeleted)

	_, err = f.svc.Login(t.Context(), "leaving@example.com", "secret1")
	requireKind(t, err, apperr.KindAuthentication, msgInvalidCredentials)
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "profile@example.com", "secret1")

	user, err := f.svc.Profile(t.Context(), res.User.UUID)
	require.NoError(t, err)
	assert.Equal(t, "profile@example.com", user.Email)
	assert.Empty(t, user.PasswordHash)

	_, err = f.svc.Profile(t.Context(), uuid.NewString())
	requireKind(t, err, apperr.KindNotFound, msgUserNotFound)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "before@example.com", "secret1")

	updated, err := f.svc.UpdateProfile(t.Context(), res.User.UUID, repository.ProfileUpdate{
		FirstName: lo.ToPtr("Lev"),
		Email:     lo.ToPtr(" After@Example.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Lev", updated.User.FirstName)
	assert.Equal(t, "Piaget", updated.User.LastName)
	assert.Equal(t, "after@example.com", updated.User.Email)
	assert.Empty(t, updated.User.PasswordHash)

	// Both tokens decode; nothing revokes the old one
	oldClaims, err := f.svc.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "before@example.com", oldClaims.Email)

	newClaims, err := f.svc.ValidateToken(updated.Token)
	require.NoError(t, err)
	assert.Equal(t, "after@example.com", newClaims.Email)
	assert.Equal(t, "Lev", newClaims.FirstName)
}

func TestUpdateProfileWithoutFields(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "empty@example.com", "secret1")

	_, err := f.svc.UpdateProfile(t.Context(), res.User.UUID, repository.ProfileUpdate{})
	requireKind(t, err, apperr.KindValidation, "No fields to update")
}

func TestUpdateProfileEmailConflicts(t *testing.T) {
	f := newFixture(t)
	f.register(t, "active@example.com", "secret1")
	gone := f.register(t, "gone@example.com", "secret1")
	me := f.register(t, "me@example.com", "secret1")

	_, err := f.svc.UpdateProfile(t.Context(), me.User.UUID, repository.ProfileUpdate{Email: lo.ToPtr("active@example.com")})
	requireKind(t, err, apperr.KindConflict, msgEmailTaken)

	// Keeping your own email is not a conflict
	_, err = f.svc.UpdateProfile(t.Context(), me.User.UUID, repository.ProfileUpdate{Email: lo.ToPtr("me@example.com")})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteAccount(t.Context(), gone.User.UUID))

	updated, err := f.svc.UpdateProfile(t.Context(), me.User.UUID, repository.ProfileUpdate{Email: lo.ToPtr("gone@example.com")})
	require.NoError(t, err)
	assert.Equal(t, "gone@example.com", updated.User.Email)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "pw@example.com", "old-secret")

	err := f.svc.ChangePassword(t.Context(), res.User.UUID, "not-it", "new-secret")
	requireKind(t, err, apperr.KindAuthentication, msgWrongPassword)

	require.NoError(t, f.svc.ChangePassword(t.Context(), res.User.UUID, "old-secret", "new-secret"))

	_, err = f.svc.Login(t.Context(), "pw@example.com", "old-secret")
	requireKind(t, err, apperr.KindAuthentication, msgInvalidCredentials)

	_, err = f.svc.Login(t.Context(), "pw@example.com", "new-secret")
	require.NoError(t, err)

	assert.Contains(t, f.mailer.kinds(), "password_changed")

	err = f.svc.ChangePassword(t.Context(), uuid.NewString(), "old-secret", "new-secret")
	requireKind(t, err, apperr.KindNotFound, msgUserNotFound)
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "student@example.com", "secret1")
	other := f.register(t, "classmate@example.com", "secret1")
	id := res.User.UUID

	f.addUpload(t, id, "1700000000000_aaaaaa_essay.txt")
	f.addUpload(t, id, "1700000000001_bbbbbb_drawing.txt")
	f.addUpload(t, other.User.UUID, "1700000000002_cccccc_theirs.txt")

	var committedBeforePurge bool
	f.files.onBatch = func([]string) {
		// Read outside the transaction: only committed data is visible here
		deleted, err := repository.NewUserRepository(f.conn).IsDeleted(context.Background(), id)
		committedBeforePurge = err == nil && deleted
	}

	require.NoError(t, f.svc.DeleteAccount(t.Context(), id))

	assert.True(t, committedBeforePurge, "purge must run after the soft delete committed")
	require.Len(t, f.files.batches, 1)
	assert.ElementsMatch(t, []string{"1700000000000_aaaaaa_essay.txt", "1700000000001_bbbbbb_drawing.txt"}, f.files.batches[0])

	for _, ref := range f.files.batches[0] {
		exists, err := f.store.Exists(t.Context(), ref)
		require.NoError(t, err)
		assert.False(t, exists, ref)
	}
	exists, err := f.store.Exists(t.Context(), "1700000000002_cccccc_theirs.txt")
	require.NoError(t, err)
	assert.True(t, exists, "other users' files stay")

	remaining, err := f.uploads.ByUser(t.Context(), id)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// Anonymized row
	row, err := f.users.ByUUID(t.Context(), id)
	require.NoError(t, err)
	assert.True(t, row.IsDeleted())
	assert.Equal(t, model.DeletedEmail(id), row.Email)
	assert.Equal(t, repository.DeletedFirstName, row.FirstName)
	assert.Nil(t, row.DateOfBirth)

	// Account is unreachable afterwards
	_, err = f.svc.Login(t.Context(), "student@example.com", "secret1")
	requireKind(t, err, apperr.KindAuthentication, msgInvalidCredentials)
	_, err = f.svc.Profile(t.Context(), id)
	requireKind(t, err, apperr.KindNotFound, msgUserNotFound)

	// The original email can be registered again
	again := f.register(t, "student@example.com", "fresh-secret")
	assert.NotEqual(t, id, again.User.UUID)

	assert.Contains(t, f.mailer.kinds(), "account_deleted")
	assert.Contains(t, f.mailer.sent, sentEmail{kind: "account_deleted", to: "student@example.com"})
}

func TestDeleteAccountTwice(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "twice@example.com", "secret1")
	f.addUpload(t, res.User.UUID, "1700000000000_aaaaaa_once.txt")

	require.NoError(t, f.svc.DeleteAccount(t.Context(), res.User.UUID))

	err := f.svc.DeleteAccount(t.Context(), res.User.UUID)
	requireKind(t, err, apperr.KindNotFound, msgUserNotFound)

	assert.Len(t, f.files.batches, 1, "files are purged once")
	assert.Equal(t, []string{"welcome", "account_deleted"}, f.mailer.kinds())

	_, err = f.svc.IsDeleted(t.Context(), uuid.NewString())
	requireKind(t, err, apperr.KindNotFound, "")
	deleted, err := f.svc.IsDeleted(t.Context(), res.User.UUID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

// staleUsers serves a cached active copy of the user, like a request that
// loaded the row just before a concurrent deletion committed
type staleUsers struct {
	repository.UserRepository
	stale *model.User
}

func (r staleUsers) ByUUID(context.Context, string) (*model.User, error) {
	u := *r.stale
	return &u, nil
}

func TestDeleteAccountLosingRaceIsNotFound(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "race@example.com", "secret1")
	f.addUpload(t, res.User.UUID, "1700000000000_aaaaaa_race.txt")

	snapshot, err := f.users.ByUUID(t.Context(), res.User.UUID)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteAccount(t.Context(), res.User.UUID))

	late := NewUserService(staleUsers{f.users, snapshot}, f.uploads, f.files, auth.NewBcryptHasher(bcrypt.MinCost), f.tokens, db.NewTransactor(f.conn), f.mailer)
	err = late.DeleteAccount(t.Context(), res.User.UUID)
	requireKind(t, err, apperr.KindNotFound, msgUserNotFound)

	assert.Len(t, f.files.batches, 1, "the losing call never purges")
}

// failingUploads breaks the store step inside the deletion transaction
type failingUploads struct {
	repository.UploadRepository
}

func (failingUploads) DeleteByUser(context.Context, string) (int64, error) {
	return 0, errors.New("disk I/O error")
}

func TestDeleteAccountStoreFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "kept@example.com", "secret1")
	f.addUpload(t, res.User.UUID, "1700000000000_aaaaaa_kept.txt")

	broken := NewUserService(f.users, failingUploads{f.uploads}, f.files, auth.NewBcryptHasher(bcrypt.MinCost), f.tokens, db.NewTransactor(f.conn), f.mailer)
	err := broken.DeleteAccount(t.Context(), res.User.UUID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	assert.Empty(t, f.files.batches, "no purge after rollback")
	assert.NotContains(t, f.mailer.kinds(), "account_deleted")

	row, err := f.users.ByUUID(t.Context(), res.User.UUID)
	require.NoError(t, err)
	assert.False(t, row.IsDeleted())
	assert.Equal(t, "kept@example.com", row.Email)

	exists, err := f.store.Exists(t.Context(), "1700000000000_aaaaaa_kept.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = f.svc.Login(t.Context(), "kept@example.com", "secret1")
	assert.NoError(t, err)
}

func TestDeleteAccountPurgeFailureStillDeletes(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "partial@example.com", "secret1")
	f.addUpload(t, res.User.UUID, "1700000000000_aaaaaa_fine.txt")
	f.addUpload(t, res.User.UUID, "1700000000001_bbbbbb_vanished.txt")

	// One file is already gone, another is a directory that cannot be removed
	_, err := f.store.Delete(t.Context(), "1700000000001_bbbbbb_vanished.txt")
	require.NoError(t, err)
	require.NoError(t, f.store.Save(t.Context(), "stuck/inner.txt", strings.NewReader("x")))
	require.NoError(t, f.uploads.Create(t.Context(), &model.Upload{
		ID:           uuid.NewString(),
		UserUUID:     res.User.UUID,
		Filename:     "stuck",
		OriginalName: "stuck",
		MimeType:     "text/plain",
		Kind:         model.UploadKindDocument,
		Size:         1,
	}))

	require.NoError(t, f.svc.DeleteAccount(t.Context(), res.User.UUID))

	require.Len(t, f.files.results, 1)
	result := f.files.results[0]
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "stuck", result.Errors[0].Ref)

	deleted, err := f.svc.IsDeleted(t.Context(), res.User.UUID)
	require.NoError(t, err)
	assert.True(t, deleted)

	exists, err := f.store.Exists(t.Context(), "1700000000000_aaaaaa_fine.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ValidateToken("garbage")
	requireKind(t, err, apperr.KindAuthentication, msgInvalidToken)
}

func TestIsEmailAvailable(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "taken@example.com", "secret1")

	available, err := f.svc.IsEmailAvailable(t.Context(), "TAKEN@example.com")
	require.NoError(t, err)
	assert.False(t, available)

	require.NoError(t, f.svc.DeleteAccount(t.Context(), res.User.UUID))

	available, err = f.svc.IsEmailAvailable(t.Context(), "taken@example.com")
	require.NoError(t, err)
	assert.True(t, available)
}

func TestMailerFailureDoesNotFailRegistration(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("smtp down")

	res := f.register(t, "quiet@example.com", "secret1")
	assert.NotEmpty(t, res.Token)
}
