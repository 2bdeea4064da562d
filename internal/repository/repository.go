// Package repository declares the storage contracts the services depend on.
// Implementations live in subpackages (sqlite, postgres).
package repository

import (
	"context"

	"github.com/sakif/secrets/internal/model"
)

// UserRepository is the durable mapping email -> user record.
//
// CONTRACT:
//   - FindByEmail returns apperror.ErrNotFound when no record exists.
//   - Insert returns apperror.ErrDuplicateKey when the email is taken; the
//     store's UNIQUE constraint decides, so concurrent inserts for the same
//     email have exactly one winner.
//   - UpdateSecret overwrites the secret and returns apperror.ErrNotFound
//     when the record is gone.
//
// Every operation is atomic per record. There are no cross-record
// transactions.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Insert(ctx context.Context, email string, credential model.Credential) (*model.User, error)
	UpdateSecret(ctx context.Context, email, secret string) error
}
