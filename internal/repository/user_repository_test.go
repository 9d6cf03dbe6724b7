package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newUserMock(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewUserRepo(db), mock
}

func userRows(id uint64, name, email, hash, role string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "role", "created_at", "updated_at"}).
		AddRow(id, name, email, hash, role, now, now)
}

func TestCreateTx(t *testing.T) {
	r, mock := newUserMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (name, email, password_hash, role) VALUES (?,?,?,?)")).
		WithArgs("Ana", "ana@example.com", "hashed", "user").
		WillReturnResult(sqlmock.NewResult(3, 1))

	tx, err := r.DB.BeginTx(context.Background(), nil)
	require.NoError(t, err)

	id, err := r.CreateTx(context.Background(), tx, "Ana", "Ana@Example.com", "hashed", "user")
	require.NoError(t, err)
	require.Equal(t, uint64(3), id)
}

func TestCreateTxDuplicateEmail(t *testing.T) {
	r, mock := newUserMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(errors.New("Error 1062 (23000): Duplicate entry 'ana@example.com' for key 'users.email'"))

	tx, err := r.DB.BeginTx(context.Background(), nil)
	require.NoError(t, err)

	_, err = r.CreateTx(context.Background(), tx, "Ana", "ana@example.com", "hashed", "user")
	require.ErrorIs(t, err, ErrEmailExists)
}

func TestGetByEmail(t *testing.T) {
	r, mock := newUserMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id,name,email,password_hash,role,created_at,updated_at FROM users WHERE email=? LIMIT 1")).
		WithArgs("ana@example.com").
		WillReturnRows(userRows(3, "Ana", "ana@example.com", "hashed", "user"))

	u, err := r.GetByEmail(context.Background(), " Ana@Example.com ")
	require.NoError(t, err)
	require.Equal(t, uint64(3), u.ID)
	require.Equal(t, "ana@example.com", u.Email)
}

func TestGetByEmailNotFound(t *testing.T) {
	r, mock := newUserMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id,name,email,password_hash,role,created_at,updated_at FROM users WHERE email=? LIMIT 1")).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := r.GetByEmail(context.Background(), "nobody@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEmailTakenByOther(t *testing.T) {
	r, mock := newUserMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE email=? AND id<>? LIMIT 1")).
		WithArgs("ana@example.com", uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	taken, err := r.EmailTakenByOther(context.Background(), "ana@example.com", 3)
	require.NoError(t, err)
	require.False(t, taken)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE email=? AND id<>? LIMIT 1")).
		WithArgs("ana@example.com", uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	taken, err = r.EmailTakenByOther(context.Background(), "ana@example.com", 4)
	require.NoError(t, err)
	require.True(t, taken)
}
