package users

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	selectUserQuery = `(?s)^SELECT\s+email,\s*name,\s*password_hash\s+FROM\s+users\s+WHERE\s+email\s*=\s*\$1\s*$`
	insertUserQuery = `(?s)^INSERT\s+INTO\s+users\s*\(email,\s*name,\s*password_hash\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s*ON\s+CONFLICT\s*\(email\)\s*DO\s+NOTHING\s*$`
)

func newStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStore_GetFound(t *testing.T) {
	s, mock := newStoreWithMock(t)

	rows := sqlmock.NewRows([]string{"email", "name", "password_hash"}).
		AddRow("ada@example.com", "Ada", "hash")
	mock.ExpectQuery(selectUserQuery).WithArgs("ada@example.com").WillReturnRows(rows)

	got, err := s.Get(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, Record{Email: "ada@example.com", Name: "Ada", PasswordHash: "hash"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(selectUserQuery).WithArgs("ghost@example.com").WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_GetDBError(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(selectUserQuery).WithArgs("ada@example.com").WillReturnError(errors.New("db down"))

	_, err := s.Get(context.Background(), "ada@example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "db down")
}

func TestPostgresStore_Create(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(insertUserQuery).
		WithArgs("ada@example.com", "Ada", "hash").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Create(context.Background(), Record{Email: "ada@example.com", Name: "Ada", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateConflict(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(insertUserQuery).
		WithArgs("ada@example.com", "Ada", "hash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Create(context.Background(), Record{Email: "ada@example.com", Name: "Ada", PasswordHash: "hash"})
	assert.ErrorIs(t, err, ErrExists)
}

func TestPostgresStore_CreateDBError(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(insertUserQuery).
		WithArgs("ada@example.com", "Ada", "hash").
		WillReturnError(errors.New("db down"))

	err := s.Create(context.Background(), Record{Email: "ada@example.com", Name: "Ada", PasswordHash: "hash"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
}

func TestPostgresStore_Ping(t *testing.T) {
	s, _ := newStoreWithMock(t)
	assert.NoError(t, s.Ping(context.Background()))
}
