package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/secrets/internal/apperror"
	"github.com/sakif/secrets/internal/model"
)

const testHash = "$2a$04$0Xh0pH4ZV3SlfNUjS7eSNeQ7m2T0f5n3cG0h6iF3eJk2bq1b8m0y6"

const (
	selectUserQuery  = `(?s)^SELECT\s+id,\s*email,\s*credential,\s*secret,\s*created_at,\s*updated_at\s+FROM\s+users\s+WHERE\s+email\s*=\s*\$1\s*$`
	insertUserQuery  = `(?s)^INSERT\s+INTO\s+users\s*\(id,\s*email,\s*credential,\s*created_at,\s*updated_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*$`
	updateSecretStmt = `(?s)^UPDATE\s+users\s+SET\s+secret\s*=\s*\$1,\s*updated_at\s*=\s*\$2\s+WHERE\s+email\s*=\s*\$3\s*$`
)

var userColumns = []string{"id", "email", "credential", "secret", "created_at", "updated_at"}

func newRepoWithMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return NewWithConn(conn), mock
}

// ===== FIND BY EMAIL =====

func TestFindByEmail_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(selectUserQuery).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u1", "alice@example.com", testHash, "hello", now, now))

	u, err := repo.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, testHash, u.Credential.Hash())
	require.NotNil(t, u.Secret)
	assert.Equal(t, "hello", *u.Secret)
}

func TestFindByEmail_FederatedNoSecret(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	// "google" is what older rows hold for federated accounts.
	mock.ExpectQuery(selectUserQuery).
		WithArgs("fed@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("u2", "fed@example.com", "google", nil, now, now))

	u, err := repo.FindByEmail(context.Background(), "fed@example.com")
	require.NoError(t, err)
	assert.True(t, u.Credential.IsFederated())
	assert.Nil(t, u.Secret)
}

func TestFindByEmail_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(selectUserQuery).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestFindByEmail_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(selectUserQuery).
		WithArgs("alice@example.com").
		WillReturnError(errors.New("db down"))

	_, err := repo.FindByEmail(context.Background(), "alice@example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperror.ErrNotFound)
	assert.Contains(t, err.Error(), "db down")
}

// ===== INSERT =====

func TestInsert_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(insertUserQuery).
		WithArgs(sqlmock.AnyArg(), "alice@example.com", testHash, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, err := repo.Insert(context.Background(), "alice@example.com", model.LocalHash(testHash))
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Nil(t, u.Secret)
}

func TestInsert_FederatedStoresMarker(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(insertUserQuery).
		WithArgs(sqlmock.AnyArg(), "fed@example.com", model.FederatedMarker, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := repo.Insert(context.Background(), "fed@example.com", model.FederatedSentinel())
	require.NoError(t, err)
}

func TestInsert_UniqueViolation(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(insertUserQuery).
		WithArgs(sqlmock.AnyArg(), "alice@example.com", testHash, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := repo.Insert(context.Background(), "alice@example.com", model.LocalHash(testHash))
	assert.ErrorIs(t, err, apperror.ErrDuplicateKey)
}

func TestInsert_OtherPgError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(insertUserQuery).
		WithArgs(sqlmock.AnyArg(), "alice@example.com", testHash, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23502", Message: "null value in column"})

	_, err := repo.Insert(context.Background(), "alice@example.com", model.LocalHash(testHash))
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperror.ErrDuplicateKey)
}

// ===== UPDATE SECRET =====

func TestUpdateSecret_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(updateSecretStmt).
		WithArgs("hello", sqlmock.AnyArg(), "alice@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.UpdateSecret(context.Background(), "alice@example.com", "hello"))
}

func TestUpdateSecret_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(updateSecretStmt).
		WithArgs("hello", sqlmock.AnyArg(), "ghost@example.com").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateSecret(context.Background(), "ghost@example.com", "hello")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUpdateSecret_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(updateSecretStmt).
		WithArgs("hello", sqlmock.AnyArg(), "alice@example.com").
		WillReturnError(errors.New("connection reset"))

	err := repo.UpdateSecret(context.Background(), "alice@example.com", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
