package store_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ashureev/kkoala/internal/domain"
	"github.com/ashureev/kkoala/internal/store"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*store.SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.New(db, store.DialectPostgres), mock
}

func TestPostgres_FindUserByUsername(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "username", "password_hash", "is_admin", "created_at", "dark_mode", "updated_at"}).
		AddRow(int64(7), "koala", "hash", false, int64(1700000000), "dark", int64(1700000100))
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT u.id, u.username, u.password_hash, u.is_admin, u.created_at, s.dark_mode, s.updated_at " +
			"FROM users u LEFT JOIN user_settings s ON s.user_id = u.id WHERE u.username = $1")).
		WithArgs("koala").
		WillReturnRows(rows)

	user, err := s.FindUserByUsername(context.Background(), "koala")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, int64(7), user.ID)
	require.True(t, user.HasSettings())
	assert.Equal(t, domain.DarkModeDark, user.Settings.DarkMode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindUserWithoutSettings(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "username", "password_hash", "is_admin", "created_at", "dark_mode", "updated_at"}).
		AddRow(int64(7), "koala", "hash", true, int64(1700000000), nil, nil)
	mock.ExpectQuery("SELECT .* FROM users u").WithArgs("koala").WillReturnRows(rows)

	user, err := s.FindUserByUsername(context.Background(), "koala")
	require.NoError(t, err)
	assert.True(t, user.IsAdmin)
	assert.False(t, user.HasSettings())
}

func TestPostgres_CreateUserUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"INSERT INTO users (username,password_hash,is_admin,created_at) VALUES ($1,$2,$3,$4) RETURNING id")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := s.CreateUser(context.Background(), &domain.User{Username: "koala", PasswordHash: "hash"})
	assert.ErrorIs(t, err, store.ErrUsernameTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertSettingsInRequestSession(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_settings (user_id,dark_mode,updated_at) VALUES ($1,$2,$3) ON CONFLICT (user_id)")).
		WithArgs(int64(7), "light", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	sess := s.NewSession()
	ctx := store.WithSession(context.Background(), sess)
	require.NoError(t, s.UpsertSettings(ctx, 7, domain.DarkModeLight))
	sess.Rollback()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ForeignKeysAlwaysEnabled(t *testing.T) {
	s, _ := newMockStore(t)
	enabled, err := s.ForeignKeysEnabled(context.Background())
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestPostgres_ReadInRequestSessionUsesPool(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "username", "password_hash", "is_admin", "created_at", "dark_mode", "updated_at"}).
		AddRow(int64(7), "koala", "hash", false, int64(1700000000), nil, nil)
	mock.ExpectQuery("SELECT .* FROM users u").WithArgs("koala").WillReturnRows(rows)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO user_settings").WithArgs(int64(7), "dark", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sess := s.NewSession()
	ctx := store.WithSession(context.Background(), sess)

	user, err := s.FindUserByUsername(ctx, "koala")
	require.NoError(t, err)
	assert.False(t, sess.Active())
	require.NoError(t, s.UpsertSettings(ctx, user.ID, domain.DarkModeDark))
	require.NoError(t, s.Commit(ctx))
	sess.Rollback()

	assert.NoError(t, mock.ExpectationsWereMet())
}
