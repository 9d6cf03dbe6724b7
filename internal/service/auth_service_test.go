package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/andresgm/shop-auth/internal/auth"
	"github.com/andresgm/shop-auth/internal/config"
	"github.com/andresgm/shop-auth/internal/queue"
	"github.com/andresgm/shop-auth/internal/repository"
	"github.com/andresgm/shop-auth/internal/storage"
	"github.com/andresgm/shop-auth/internal/utils"
)

const (
	insertUserQ    = "INSERT INTO users (name, email, password_hash, role) VALUES (?,?,?,?)"
	insertRefreshQ = "INSERT INTO refresh_tokens (user_id, token_hash, revoked, expires_at) VALUES (?,?,0,?)"
	consumeQ       = "UPDATE refresh_tokens SET revoked=1 WHERE token_hash=? AND revoked=0 AND expires_at>?"
	ownerQ         = "SELECT user_id FROM refresh_tokens WHERE token_hash=? LIMIT 1"
	selectByEmailQ = "SELECT id,name,email,password_hash,role,created_at,updated_at FROM users WHERE email=? LIMIT 1"
	selectByIDQ    = "SELECT id,name,email,password_hash,role,created_at,updated_at FROM users WHERE id=? LIMIT 1"
	insertImageQ   = "INSERT INTO images (public_id, url, owner_type, owner_id) VALUES (?,?,?,?)"
	selectImageQ   = "SELECT id, public_id, url, owner_type, owner_id, created_at FROM images WHERE owner_type=? AND owner_id=? ORDER BY id DESC LIMIT 1"
	updateUserQ    = "UPDATE users SET name=?, email=?, password_hash=? WHERE id=?"
)

// fakeStorage records gateway calls and injects failures.
type fakeStorage struct {
	mu        sync.Mutex
	uploadErr error
	uploads   []string
	destroyed []string
}

func (f *fakeStorage) Upload(_ context.Context, _ []byte, folder string) (storage.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return storage.UploadResult{}, f.uploadErr
	}
	f.uploads = append(f.uploads, folder)
	id := fmt.Sprintf("%s/obj-%d", folder, len(f.uploads))
	return storage.UploadResult{PublicID: id, URL: "https://cdn.test/" + id}, nil
}

func (f *fakeStorage) Destroy(_ context.Context, publicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, publicID)
	return nil
}

// memDenylist is an in-memory auth.Denylist.
type memDenylist struct {
	mu      sync.Mutex
	entries map[string]bool
}

func (d *memDenylist) Add(_ context.Context, jti string, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[jti] = true
	return nil
}

func (d *memDenylist) Has(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries[jti], nil
}

type fixture struct {
	svc    *AuthService
	mock   sqlmock.Sqlmock
	store  *fakeStorage
	issuer *auth.Issuer
	events []queue.UserRegisteredEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{
		BcryptCost:     4,
		AccessTTLMin:   15,
		RefreshTTLDays: 14,
		UploadTimeout:  time.Second,
		MaxImageBytes:  2 << 20,
	}
	f := &fixture{
		mock:   mock,
		store:  &fakeStorage{},
		issuer: auth.NewIssuer("test-secret", cfg.AccessTTLMin, &memDenylist{entries: map[string]bool{}}),
	}
	f.svc = NewAuthService(db,
		repository.NewUserRepo(db),
		repository.NewTokenRepo(db),
		repository.NewImageRepo(db),
		f.store, f.issuer, cfg,
		func(_ context.Context, ev queue.UserRegisteredEvent) error {
			f.events = append(f.events, ev)
			return nil
		})
	return f
}

func userRow(id uint64, name, email, hash string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "role", "created_at", "updated_at"}).
		AddRow(id, name, email, hash, "user", now, now)
}

func TestRegisterWithoutImage(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta(insertUserQ)).
		WithArgs("Ana", "ana@example.com", sqlmock.AnyArg(), "user").
		WillReturnResult(sqlmock.NewResult(7, 1))
	f.mock.ExpectExec(regexp.QuoteMeta(insertRefreshQ)).
		WithArgs(uint64(7), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectCommit()

	res, err := f.svc.Register(context.Background(), RegisterInput{
		Name: "Ana", Email: "ana@example.com", Password: "longenough1",
	})
	require.NoError(t, err)
	require.Equal(t, uint64(7), res.UserID)
	require.NotEmpty(t, res.AccessToken)
	require.Len(t, res.RefreshToken.Raw, 96)
	require.WithinDuration(t, time.Now().UTC().Add(14*24*time.Hour), res.RefreshToken.Exp, time.Minute)
	require.Nil(t, res.ImageURL)
	require.Empty(t, f.store.uploads)
	require.Len(t, f.events, 1)
	require.False(t, f.events[0].HasImage)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegisterWithImage(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta(insertUserQ)).
		WithArgs("Ana", "ana@example.com", sqlmock.AnyArg(), "user").
		WillReturnResult(sqlmock.NewResult(7, 1))
	f.mock.ExpectExec(regexp.QuoteMeta(insertImageQ)).
		WithArgs("users/7/obj-1", "https://cdn.test/users/7/obj-1", "user", uint64(7)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec(regexp.QuoteMeta(insertRefreshQ)).
		WithArgs(uint64(7), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectCommit()

	res, err := f.svc.Register(context.Background(), RegisterInput{
		Name: "Ana", Email: "ana@example.com", Password: "longenough1",
		Image: []byte("fake-image-bytes"),
	})
	require.NoError(t, err)
	require.NotNil(t, res.ImageURL)
	require.Equal(t, "https://cdn.test/users/7/obj-1", *res.ImageURL)
	// Upload folder is scoped to the new user id.
	require.Equal(t, []string{"users/7"}, f.store.uploads)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegisterRollsBackWhenUploadFails(t *testing.T) {
	f := newFixture(t)
	f.store.uploadErr = errors.New("storage unreachable")

	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta(insertUserQ)).
		WithArgs("Ana", "ana@example.com", sqlmock.AnyArg(), "user").
		WillReturnResult(sqlmock.NewResult(7, 1))
	f.mock.ExpectRollback()

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Name: "Ana", Email: "ana@example.com", Password: "longenough1",
		Image: []byte("fake-image-bytes"),
	})
	require.Error(t, err)
	// The user insert was rolled back and no event left the service.
	require.Empty(t, f.events)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	hash, err := utils.HashPassword("longenough1", 4)
	require.NoError(t, err)

	f.mock.ExpectQuery(regexp.QuoteMeta(selectByEmailQ)).
		WithArgs("ana@example.com").
		WillReturnRows(userRow(7, "Ana", "ana@example.com", hash))
	f.mock.ExpectExec(regexp.QuoteMeta(insertRefreshQ)).
		WithArgs(uint64(7), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	res, err := f.svc.Login(context.Background(), "ana@example.com", "longenough1")
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.WithinDuration(t, time.Now().UTC().Add(14*24*time.Hour), res.RefreshToken.Exp, time.Minute)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLoginUniformFailure(t *testing.T) {
	f := newFixture(t)
	hash, err := utils.HashPassword("longenough1", 4)
	require.NoError(t, err)

	// Wrong password.
	f.mock.ExpectQuery(regexp.QuoteMeta(selectByEmailQ)).
		WithArgs("ana@example.com").
		WillReturnRows(userRow(7, "Ana", "ana@example.com", hash))
	_, errWrongPass := f.svc.Login(context.Background(), "ana@example.com", "wrongpassword")

	// Unknown email.
	f.mock.ExpectQuery(regexp.QuoteMeta(selectByEmailQ)).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, errNoUser := f.svc.Login(context.Background(), "nobody@example.com", "longenough1")

	// Both paths fail identically; neither stored a refresh token.
	require.ErrorIs(t, errWrongPass, ErrBadCredentials)
	require.ErrorIs(t, errNoUser, ErrBadCredentials)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRefreshRotation(t *testing.T) {
	f := newFixture(t)
	old, err := utils.NewRefreshToken(14)
	require.NoError(t, err)
	oldHash := utils.HashRefreshRaw(old.Raw)

	f.mock.ExpectExec(regexp.QuoteMeta(consumeQ)).
		WithArgs(oldHash, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(regexp.QuoteMeta(ownerQ)).
		WithArgs(oldHash).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(7))
	f.mock.ExpectQuery(regexp.QuoteMeta(selectByIDQ)).
		WithArgs(uint64(7)).
		WillReturnRows(userRow(7, "Ana", "ana@example.com", "hash"))
	f.mock.ExpectExec(regexp.QuoteMeta(insertRefreshQ)).
		WithArgs(uint64(7), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))

	res, err := f.svc.Refresh(context.Background(), old.Raw)
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.NotEqual(t, old.Raw, res.RefreshToken.Raw)

	// Replaying the consumed token is an invalid-session outcome.
	f.mock.ExpectExec(regexp.QuoteMeta(consumeQ)).
		WithArgs(oldHash, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = f.svc.Refresh(context.Background(), old.Raw)
	require.ErrorIs(t, err, ErrSessionInvalid)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	f := newFixture(t)
	f.mock.MatchExpectationsInOrder(false)

	old, err := utils.NewRefreshToken(14)
	require.NoError(t, err)
	oldHash := utils.HashRefreshRaw(old.Raw)

	// The store serializes the conditional update: one caller flips the row,
	// the other affects zero rows.
	f.mock.ExpectExec(regexp.QuoteMeta(consumeQ)).
		WithArgs(oldHash, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(regexp.QuoteMeta(consumeQ)).
		WithArgs(oldHash, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectQuery(regexp.QuoteMeta(ownerQ)).
		WithArgs(oldHash).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(7))
	f.mock.ExpectQuery(regexp.QuoteMeta(selectByIDQ)).
		WithArgs(uint64(7)).
		WillReturnRows(userRow(7, "Ana", "ana@example.com", "hash"))
	f.mock.ExpectExec(regexp.QuoteMeta(insertRefreshQ)).
		WithArgs(uint64(7), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.Refresh(context.Background(), old.Raw)
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSessionInvalid):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, losses)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLogoutIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	access, _, err := f.issuer.Issue(7, "user")
	require.NoError(t, err)
	refresh, err := utils.NewRefreshToken(14)
	require.NoError(t, err)
	hash := utils.HashRefreshRaw(refresh.Raw)

	f.mock.ExpectExec(regexp.QuoteMeta(consumeQ)).
		WithArgs(hash, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.svc.Logout(ctx, access, refresh.Raw)

	// The access token no longer verifies.
	_, err = f.issuer.Verify(ctx, access)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	// Logging out again with the dead token and a spent cookie still works.
	f.mock.ExpectExec(regexp.QuoteMeta(consumeQ)).
		WithArgs(hash, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	f.svc.Logout(ctx, access, refresh.Raw)

	// And with no tokens at all.
	f.svc.Logout(ctx, "", "")
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGetSession(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery(regexp.QuoteMeta(selectByIDQ)).
		WithArgs(uint64(7)).
		WillReturnRows(userRow(7, "Ana", "ana@example.com", "hash"))
	f.mock.ExpectQuery(regexp.QuoteMeta(selectImageQ)).
		WithArgs("user", uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "public_id", "url", "owner_type", "owner_id", "created_at"}).
			AddRow(1, "users/7/obj-1", "https://cdn.test/users/7/obj-1", "user", 7, time.Now().UTC()))

	s, err := f.svc.GetSession(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, "Ana", s.Name)
	require.Equal(t, "ana@example.com", s.Email)
	require.NotNil(t, s.ImageURL)
	require.Equal(t, "https://cdn.test/users/7/obj-1", *s.ImageURL)
}

func TestGetSessionWithoutImage(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery(regexp.QuoteMeta(selectByIDQ)).
		WithArgs(uint64(7)).
		WillReturnRows(userRow(7, "Ana", "ana@example.com", "hash"))
	f.mock.ExpectQuery(regexp.QuoteMeta(selectImageQ)).
		WithArgs("user", uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	s, err := f.svc.GetSession(context.Background(), 7)
	require.NoError(t, err)
	require.Nil(t, s.ImageURL)
}

func TestUpdateProfilePasswordOnly(t *testing.T) {
	f := newFixture(t)
	// A storage outage must not matter when only the password changes.
	f.store.uploadErr = errors.New("storage unreachable")

	f.mock.ExpectQuery(regexp.QuoteMeta(selectByIDQ)).
		WithArgs(uint64(7)).
		WillReturnRows(userRow(7, "Ana", "ana@example.com", "oldhash"))
	f.mock.ExpectExec(regexp.QuoteMeta(updateUserQ)).
		WithArgs("Ana", "ana@example.com", sqlmock.AnyArg(), uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	pw := "brandnewpassword"
	err := f.svc.UpdateProfile(context.Background(), 7, UpdateInput{Password: &pw})
	require.NoError(t, err)
	require.Empty(t, f.store.uploads)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdateProfileSwallowsImageFailure(t *testing.T) {
	f := newFixture(t)
	f.store.uploadErr = errors.New("storage unreachable")

	f.mock.ExpectQuery(regexp.QuoteMeta(selectByIDQ)).
		WithArgs(uint64(7)).
		WillReturnRows(userRow(7, "Ana", "ana@example.com", "hash"))
	f.mock.ExpectExec(regexp.QuoteMeta(updateUserQ)).
		WithArgs("Anita", "ana@example.com", "hash", uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(regexp.QuoteMeta(selectImageQ)).
		WithArgs("user", uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	name := "Anita"
	err := f.svc.UpdateProfile(context.Background(), 7, UpdateInput{
		Name:  &name,
		Image: []byte("fake-image-bytes"),
	})
	// Field update committed even though the avatar step failed.
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdateProfileReplacesAvatar(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery(regexp.QuoteMeta(selectByIDQ)).
		WithArgs(uint64(7)).
		WillReturnRows(userRow(7, "Ana", "ana@example.com", "hash"))
	f.mock.ExpectExec(regexp.QuoteMeta(updateUserQ)).
		WithArgs("Ana", "ana@example.com", "hash", uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(regexp.QuoteMeta(selectImageQ)).
		WithArgs("user", uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "public_id", "url", "owner_type", "owner_id", "created_at"}).
			AddRow(1, "users/7/old", "https://cdn.test/users/7/old", "user", 7, time.Now().UTC()))
	f.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM images WHERE id=?")).
		WithArgs(uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(regexp.QuoteMeta(insertImageQ)).
		WithArgs("users/7/obj-1", "https://cdn.test/users/7/obj-1", "user", uint64(7)).
		WillReturnResult(sqlmock.NewResult(2, 1))

	err := f.svc.UpdateProfile(context.Background(), 7, UpdateInput{Image: []byte("fake-image-bytes")})
	require.NoError(t, err)
	// Old remote object destroyed before the new upload.
	require.Equal(t, []string{"users/7/old"}, f.store.destroyed)
	require.Equal(t, []string{"users/7"}, f.store.uploads)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdateProfileEmailTaken(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery(regexp.QuoteMeta(selectByIDQ)).
		WithArgs(uint64(7)).
		WillReturnRows(userRow(7, "Ana", "ana@example.com", "hash"))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE email=? AND id<>? LIMIT 1")).
		WithArgs("taken@example.com", uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	email := "taken@example.com"
	err := f.svc.UpdateProfile(context.Background(), 7, UpdateInput{Email: &email})
	require.ErrorIs(t, err, repository.ErrEmailExists)
	require.NoError(t, f.mock.ExpectationsWereMet())
}
