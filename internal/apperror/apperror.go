// Package apperror defines the error taxonomy shared by every layer.
//
// Repositories return ErrNotFound and ErrDuplicateKey. The identity
// resolvers and the session binder normalise everything they surface to
// ErrUnauthenticated, ErrAlreadyExists or ErrMissingIdentity, so an HTTP
// caller can never tell "no such user" apart from "wrong password".
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateKey    = errors.New("duplicate key")
	ErrValidation      = errors.New("validation error")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrAlreadyExists   = errors.New("already exists")
	ErrMissingIdentity = errors.New("missing identity")
)

type AppError struct {
	Err     error  // sentinel, matched with errors.Is
	Message string // safe to show to the caller
	Field   string // optional: request field that caused the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, key string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with key %s", resource, key),
	}
}

func DuplicateKey(resource, key string) *AppError {
	return &AppError{
		Err:     ErrDuplicateKey,
		Message: fmt.Sprintf("%s already stored with key %s", resource, key),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Unauthenticated carries no detail on purpose: the message is the same
// whether the user is unknown, the password is wrong or the session is gone.
func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: "authentication required",
	}
}

// AlreadyExists reports a registration for an email that is already taken.
func AlreadyExists() *AppError {
	return &AppError{
		Err:     ErrAlreadyExists,
		Message: "an account with this email already exists",
		Field:   "email",
	}
}

// MissingIdentity reports a provider profile that carried no usable email.
func MissingIdentity(provider string) *AppError {
	return &AppError{
		Err:     ErrMissingIdentity,
		Message: fmt.Sprintf("%s did not provide a verified email", provider),
	}
}
