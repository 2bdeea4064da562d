package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/secrets/internal/apperror"
	"github.com/sakif/secrets/internal/model"
	"github.com/sakif/secrets/internal/repository"
)

// MaxSecretBytes caps the size of a stored secret.
const MaxSecretBytes = 10000

// Authenticator resolves the user of the current request. session.Binder
// is the production implementation.
type Authenticator interface {
	Current(ctx context.Context) (*model.User, error)
}

// SecretGate lets an authenticated user read and replace their own secret.
// Every operation resolves the user afresh, so a session whose user was
// deleted stops working immediately.
type SecretGate struct {
	sessions Authenticator
	users    repository.UserRepository
	logger   *slog.Logger
}

// NewSecretGate creates a SecretGate.
func NewSecretGate(sessions Authenticator, users repository.UserRepository, logger *slog.Logger) *SecretGate {
	return &SecretGate{sessions: sessions, users: users, logger: logger}
}

// ViewSecret returns the current user's secret. set is false when the user
// has never submitted one.
func (g *SecretGate) ViewSecret(ctx context.Context) (secret string, set bool, err error) {
	user, err := g.sessions.Current(ctx)
	if err != nil {
		return "", false, err
	}
	if user.Secret == nil {
		return "", false, nil
	}
	return *user.Secret, true, nil
}

// SubmitSecret replaces the current user's secret. The last write wins.
func (g *SecretGate) SubmitSecret(ctx context.Context, secret string) error {
	user, err := g.sessions.Current(ctx)
	if err != nil {
		return err
	}

	if len(secret) > MaxSecretBytes {
		return apperror.ValidationFailed("secret",
			fmt.Sprintf("secret must be %d bytes or fewer", MaxSecretBytes))
	}

	if err := g.users.UpdateSecret(ctx, user.Email, secret); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// Deleted between Current and the update.
			return apperror.Unauthenticated()
		}
		return fmt.Errorf("service/secret: updating secret: %w", err)
	}

	g.logger.Info("secret updated", slog.String("email", user.Email))
	return nil
}
