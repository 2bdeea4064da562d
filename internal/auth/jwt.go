// Package auth provides the credential verifier, the identity providers and
// the signer for session state.
//
// SESSION STATE FLOW:
// 1. A login (local or federated) resolves a user record
// 2. The session binder asks SessionSigner for a signed state naming the
//    user's email, and stores it in the server-side session
// 3. On later requests the binder reads the state back, Verify checks it,
//    and the email is re-resolved against the user store
//
// WHY SIGN STATE THAT NEVER LEAVES THE SERVER?
// The session store may be shared (Redis) or outlive a deploy. A signed,
// expiring state means a value planted in the store by anything other than
// this process, or left over from an older secret, is rejected instead of
// trusted.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims (data) → {"sub":"alice@example.com","exp":1234567890}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// The payload carries no credential material, only the email.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/secrets/internal/apperror"
)

// Issuer is the "iss" claim of every session state.
const Issuer = "secrets"

// MinSecretLength is the shortest accepted signing secret.
const MinSecretLength = 16

// ErrInvalidState wraps every Verify failure. It is also an
// apperror.ErrUnauthenticated, so callers can treat it as "anonymous".
var ErrInvalidState = fmt.Errorf("auth: invalid session state: %w", apperror.ErrUnauthenticated)

// SessionSigner creates and verifies signed session state.
//
// It holds the HMAC secret key used to sign and verify. The same secret must
// be used for both operations; rotating it logs every session out.
type SessionSigner struct {
	secret   []byte
	lifetime time.Duration
}

// NewSessionSigner creates a SessionSigner with the given secret and state
// lifetime (normally the session lifetime).
// Example: SESSION_SECRET=$(openssl rand -hex 32)
func NewSessionSigner(secret string, lifetime time.Duration) (*SessionSigner, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: session secret must be at least %d characters", MinSecretLength)
	}
	if lifetime <= 0 {
		return nil, errors.New("auth: session lifetime must be positive")
	}
	return &SessionSigner{secret: []byte(secret), lifetime: lifetime}, nil
}

// claims is the JWT payload. We use "sub" (Subject) for the email, the
// user's natural key.
type claims struct {
	jwt.RegisteredClaims
}

// Sign creates the signed state for email, valid for the signer's lifetime.
//
// Signing algorithm: HS256 (HMAC-SHA256). Symmetric: the same key signs and
// verifies, which is all a single service needs.
func (s *SessionSigner) Sign(email string) (string, error) {
	return s.SignWithDuration(email, s.lifetime)
}

// SignWithDuration creates a state with a custom expiry.
// Used in tests to produce already-expired states.
func (s *SessionSigner) SignWithDuration(email string, d time.Duration) (string, error) {
	if email == "" {
		return "", errors.New("auth: cannot sign state for an empty email")
	}

	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing session state: %w", err)
	}
	return signed, nil
}

// Verify parses a state and returns the email it names.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - State is not expired, and carries an expiry at all
//   - Issuer matches "secrets"
//   - Algorithm is HS256 (prevents algorithm confusion attacks)
//
// Every failure wraps ErrInvalidState.
func (s *SessionSigner) Verify(state string) (string, error) {
	token, err := jwt.ParseWithClaims(
		state,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: expired", ErrInvalidState)
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", ErrInvalidState
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: no subject", ErrInvalidState)
	}

	return c.Subject, nil
}
