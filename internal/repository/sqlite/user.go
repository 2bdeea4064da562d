package sqlite

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

// FindByEmail retrieves a user by email (exact, case-sensitive match).
// Returns apperror.ErrNotFound if no user exists with that email.
func (db *DB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var (
		u          model.User
		credential string
		secret     sql.NullString
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, credential, secret, created_at, updated_at
		 FROM users WHERE email = ?`,
		email,
	).Scan(
		&u.ID,
		&u.Email,
		&credential,
		&secret,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: finding user %s: %w", email, err)
	}

	u.Credential = model.ParseCredential(credential)
	if secret.Valid {
		u.Secret = &secret.String
	}
	return &u, nil
}

// Insert creates a new user with no secret.
//
// WHY NO "SELECT THEN INSERT"?
// Checking for an existing row first would leave a window where two requests
// both see "no row" and both insert. We let the UNIQUE constraint on email
// decide instead and translate the violation to apperror.ErrDuplicateKey.
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
		`INSERT INTO users (id, email, credential, secret, created_at, updated_at)
		 VALUES (?, ?, ?, NULL, ?, ?)`,
		u.ID,
		u.Email,
		u.Credential.String(),
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.DuplicateKey("user", email)
		}
		return nil, fmt.Errorf("sqlite: inserting user %s: %w", email, err)
	}

	return u, nil
}

// UpdateSecret overwrites the user's secret. The last write wins.
// Returns apperror.ErrNotFound if the user no longer exists.
func (db *DB) UpdateSecret(ctx context.Context, email, secret string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET secret = ?, updated_at = ? WHERE email = ?`,
		secret,
		time.Now().UTC(),
		email,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating secret for %s: %w", email, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("user", email)
	}

	return nil
}
