package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/secrets/internal/apperror"
)

// newTestSigner creates a SessionSigner for testing.
// It uses a fixed, known secret so tests are deterministic.
func newTestSigner(t *testing.T) *SessionSigner {
	t.Helper()
	s, err := NewSessionSigner("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionSigner: %v", err)
	}
	return s
}

// =========================================================================
// CONSTRUCTION TESTS
// =========================================================================

func TestNewSessionSigner(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		lifetime time.Duration
		wantErr  bool
	}{
		{name: "valid", secret: "this-is-16-chars", lifetime: time.Hour},
		{name: "short secret", secret: "short", lifetime: time.Hour, wantErr: true},
		{name: "zero lifetime", secret: "this-is-16-chars", lifetime: 0, wantErr: true},
		{name: "negative lifetime", secret: "this-is-16-chars", lifetime: -time.Minute, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSessionSigner(tt.secret, tt.lifetime)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSessionSigner() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// =========================================================================
// SIGN TESTS
// =========================================================================

func TestSign_LooksLikeJWT(t *testing.T) {
	s := newTestSigner(t)

	state, err := s.Sign("alice@example.com")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	// header.payload.signature
	if got := strings.Count(state, "."); got != 2 {
		t.Errorf("Sign() state doesn't look like a JWT (expected 2 dots, got %d)", got)
	}
}

func TestSign_EmptyEmail(t *testing.T) {
	s := newTestSigner(t)

	if _, err := s.Sign(""); err == nil {
		t.Fatal("Sign() should reject an empty email")
	}
}

// The payload must name the user and the issuer, and nothing else of note.
func TestSign_Claims(t *testing.T) {
	s := newTestSigner(t)
	state, _ := s.Sign("alice@example.com")

	c := &claims{}
	_, _, err := jwt.NewParser().ParseUnverified(state, c)
	if err != nil {
		t.Fatalf("ParseUnverified() error = %v", err)
	}
	if c.Subject != "alice@example.com" {
		t.Errorf("sub = %q, want %q", c.Subject, "alice@example.com")
	}
	if c.Issuer != Issuer {
		t.Errorf("iss = %q, want %q", c.Issuer, Issuer)
	}
	if c.ExpiresAt == nil {
		t.Fatal("exp missing")
	}
	if d := time.Until(c.ExpiresAt.Time); d < 59*time.Minute || d > time.Hour {
		t.Errorf("exp in %v, want about 1h", d)
	}
}

// =========================================================================
// VERIFY TESTS
// =========================================================================

func TestVerify_RoundTrip(t *testing.T) {
	s := newTestSigner(t)

	state, err := s.Sign("alice@example.com")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	got, err := s.Verify(state)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != "alice@example.com" {
		t.Errorf("Verify() email = %q, want %q", got, "alice@example.com")
	}
}

func TestVerify_Rejects(t *testing.T) {
	s := newTestSigner(t)
	other, _ := NewSessionSigner("wrong-secret-32-chars-long!!!!!!", time.Hour)

	valid, _ := s.Sign("alice@example.com")
	expired, _ := s.SignWithDuration("alice@example.com", -time.Second)
	foreign, _ := other.Sign("alice@example.com")

	wrongIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice@example.com",
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(s.secret)

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice@example.com", Issuer: Issuer},
	}).SignedString(s.secret)

	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(s.secret)

	tests := []struct {
		name  string
		state string
	}{
		{name: "empty", state: ""},
		{name: "garbage", state: "not.a.jwt.token"},
		{name: "tampered signature", state: valid[:len(valid)-3] + "xxx"},
		{name: "expired", state: expired},
		{name: "signed with another secret", state: foreign},
		{name: "wrong issuer", state: wrongIssuer},
		{name: "no expiry", state: noExpiry},
		{name: "no subject", state: noSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Verify(tt.state)
			if err == nil {
				t.Fatal("Verify() should have returned an error")
			}
			if !errors.Is(err, ErrInvalidState) {
				t.Errorf("Verify() error = %v, want ErrInvalidState", err)
			}
			if !errors.Is(err, apperror.ErrUnauthenticated) {
				t.Errorf("Verify() error = %v, want ErrUnauthenticated", err)
			}
		})
	}
}
