package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/secrets/internal/apperror"
	"github.com/sakif/secrets/internal/model"
	"github.com/sakif/secrets/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// FindByEmail retrieves a user by email.
// Returns apperror.ErrNotFound if no user exists with that email.
func (db *DB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var (
		u          model.User
		credential string
		secret     sql.NullString
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, credential, secret, created_at, updated_at
		 FROM users WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.Email, &credential, &secret, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("postgres: finding user %s: %w", email, err)
	}

	u.Credential = model.ParseCredential(credential)
	if secret.Valid {
		u.Secret = &secret.String
	}
	return &u, nil
}

// Insert creates a new user with no secret. A UNIQUE violation on email
// (SQLSTATE 23505) becomes apperror.ErrDuplicateKey.
func (db *DB) Insert(ctx context.Context, email string, credential model.Credential) (*model.User, error) {
	now := time.Now().UTC()
	u := &model.User{
		ID:         xid.New().String(),
		Email:      email,
		Credential: credential,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, credential, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.Credential.String(), u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.DuplicateKey("user", email)
		}
		return nil, fmt.Errorf("postgres: inserting user %s: %w", email, err)
	}

	return u, nil
}

// UpdateSecret overwrites the user's secret.
// Returns apperror.ErrNotFound if the user no longer exists.
func (db *DB) UpdateSecret(ctx context.Context, email, secret string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET secret = $1, updated_at = $2 WHERE email = $3`,
		secret, time.Now().UTC(), email,
	)
	if err != nil {
		return fmt.Errorf("postgres: updating secret for %s: %w", email, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("user", email)
	}
	return nil
}
