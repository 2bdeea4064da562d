// Package service holds the identity resolution business logic.
//
// There are two ways to arrive at a user record, and both end at the same
// place (the session binder):
//
//	LoginHandler    → LocalIdentity     → UserRepository
//	                                    ↘ CredentialVerifier (bcrypt)
//	CallbackHandler → FederatedIdentity → UserRepository
//
// KEY RULES:
//   - Login never reveals whether an email is registered. Unknown email and
//     wrong password produce the same error after the same amount of work.
//   - One email is one account. A federated sign-in with the email of a local
//     account resolves to that account instead of creating a second one.
//   - The store's UNIQUE constraint is the only arbiter of "already exists";
//     the pre-checks here are fast paths, not guarantees.
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

// CredentialVerifier hashes and checks passwords. auth.PasswordService is
// the production implementation.
type CredentialVerifier interface {
	Hash(ctx context.Context, password string) (model.Credential, error)
	Compare(ctx context.Context, password string, credential model.Credential) (bool, error)
}

// =========================================================================
// LOCAL IDENTITY
// =========================================================================

// LocalIdentity resolves users by email and password.
type LocalIdentity struct {
	users    repository.UserRepository
	verifier CredentialVerifier
	logger   *slog.Logger
}

// NewLocalIdentity creates a LocalIdentity with all required dependencies.
func NewLocalIdentity(users repository.UserRepository, verifier CredentialVerifier, logger *slog.Logger) *LocalIdentity {
	return &LocalIdentity{users: users, verifier: verifier, logger: logger}
}

// Login returns the user whose email and password match.
//
// TIMING EQUALISATION:
// Without the dummy comparison, "unknown email" would answer in microseconds
// while "wrong password" takes a full bcrypt run, and an attacker could
// enumerate registered emails with a stopwatch. Comparing against the
// federated sentinel costs one bcrypt run and can never succeed.
func (s *LocalIdentity) Login(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/local: finding user: %w", err)
		}
		if _, err := s.verifier.Compare(ctx, password, model.FederatedSentinel()); err != nil {
			return nil, fmt.Errorf("service/local: %w", err)
		}
		s.logger.Info("login rejected", slog.String("email", email))
		return nil, apperror.Unauthenticated()
	}

	ok, err := s.verifier.Compare(ctx, password, user.Credential)
	if err != nil {
		return nil, fmt.Errorf("service/local: verifying password: %w", err)
	}
	if !ok {
		s.logger.Info("login rejected", slog.String("email", email))
		return nil, apperror.Unauthenticated()
	}

	s.logger.Info("user authenticated with password", slog.String("email", email))
	return user, nil
}

// Register creates a local account.
//
// The caller binds the returned user to the session straight away, so a
// successful registration is also a login.
//
// CANCELLATION:
// Insert is the single commit point. If ctx ends while the password is
// being hashed, Register returns before anything is written.
func (s *LocalIdentity) Register(ctx context.Context, email, password string) (*model.User, error) {
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, apperror.AlreadyExists()
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/local: checking existing user: %w", err)
	}

	credential, err := s.verifier.Hash(ctx, password)
	if err != nil {
		return nil, fmt.Errorf("service/local: %w", err)
	}

	user, err := s.users.Insert(ctx, email, credential)
	if err != nil {
		if errors.Is(err, apperror.ErrDuplicateKey) {
			// Lost a race with a concurrent registration for the same email.
			return nil, apperror.AlreadyExists()
		}
		return nil, fmt.Errorf("service/local: inserting user: %w", err)
	}

	s.logger.Info("user registered", slog.String("email", email), slog.String("userID", user.ID))
	return user, nil
}

// =========================================================================
// FEDERATED IDENTITY
// =========================================================================

// FederatedIdentity resolves users by the email an identity provider vouched for.
type FederatedIdentity struct {
	users  repository.UserRepository
	logger *slog.Logger
}

// NewFederatedIdentity creates a FederatedIdentity.
func NewFederatedIdentity(users repository.UserRepository, logger *slog.Logger) *FederatedIdentity {
	return &FederatedIdentity{users: users, logger: logger}
}

// ResolveOrCreate finds the user with email or creates one holding the
// federated sentinel. It is idempotent: repeated or concurrent calls for
// the same email all return the same record.
//
// An existing record is returned unchanged, whichever way it was created.
// If it holds a local password the convergence is logged at WARN, because
// from now on two different credentials open the same account.
func (s *FederatedIdentity) ResolveOrCreate(ctx context.Context, email string) (*model.User, error) {
	if email == "" {
		return nil, apperror.MissingIdentity("identity provider")
	}

	user, err := s.find(ctx, email)
	if err != nil || user != nil {
		return user, err
	}

	user, err = s.users.Insert(ctx, email, model.FederatedSentinel())
	if err == nil {
		s.logger.Info("federated user created", slog.String("email", email), slog.String("userID", user.ID))
		return user, nil
	}
	if !errors.Is(err, apperror.ErrDuplicateKey) {
		return nil, fmt.Errorf("service/federated: inserting user: %w", err)
	}

	// Someone else created the record between our find and insert.
	user, err = s.find(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("service/federated: user %s vanished after duplicate insert", email)
	}
	return user, nil
}

// find returns (nil, nil) when there is no user with email.
func (s *FederatedIdentity) find(ctx context.Context, email string) (*model.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/federated: finding user: %w", err)
	}
	if !user.Credential.IsFederated() {
		s.logger.Warn("federated sign-in resolved to a password account",
			slog.String("email", email),
			slog.String("userID", user.ID),
		)
	}
	return user, nil
}
