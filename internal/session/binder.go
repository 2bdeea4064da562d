// Package session ties an authenticated user to a server-held session.
//
// STATES:
// A session is either Anonymous (no identity entry) or Authenticated (holds
// the signed state naming one user's email).
//
//	Anonymous ──Bind──▶ Authenticated
//	Authenticated ──Unbind──▶ Anonymous
//	Authenticated ──state no longer resolves──▶ treated as Anonymous
//
// The last edge is read-only: a request whose state fails to resolve is
// anonymous for that request, but the stored session is left as it was.
//
// HOW SCS WORKS:
// scs.SessionManager.LoadAndSave is middleware. It loads the session named
// by the cookie into the request context before the handler runs, and
// commits it to the store (and writes the cookie) when the handler writes
// its response. Binder only ever touches the session through that context,
// so an aborted request commits nothing.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"golang.org/x/oauth2"

	"github.com/sakif/secrets/internal/apperror"
	"github.com/sakif/secrets/internal/auth"
	"github.com/sakif/secrets/internal/model"
	"github.com/sakif/secrets/internal/repository"
)

const (
	// identityKey holds the signed state. It is the session's only identity entry.
	identityKey = "identity"
	// oauthStateKey holds the CSRF state of an OAuth flow in progress.
	oauthStateKey = "oauth_state"
)

// CookieName is the name of the session cookie.
const CookieName = "secrets_session"

// ManagerConfig configures the scs session manager.
type ManagerConfig struct {
	Lifetime time.Duration
	Secure   bool      // set the cookie's Secure flag (production)
	Store    scs.Store // nil selects the in-process memstore
}

// NewManager builds the scs.SessionManager shared by the binder and the
// router's LoadAndSave middleware.
func NewManager(cfg ManagerConfig) *scs.SessionManager {
	sm := scs.New()
	sm.Lifetime = cfg.Lifetime
	sm.Cookie.Name = CookieName
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = cfg.Secure
	if cfg.Store != nil {
		sm.Store = cfg.Store
	} else {
		sm.Store = memstore.New()
	}
	return sm
}

// Binder serializes users into the session and resolves them back out.
type Binder struct {
	sessions *scs.SessionManager
	signer   *auth.SessionSigner
	users    repository.UserRepository
	logger   *slog.Logger
}

// NewBinder creates a Binder. All dependencies are injected; the binder holds
// no global state.
func NewBinder(sessions *scs.SessionManager, signer *auth.SessionSigner, users repository.UserRepository, logger *slog.Logger) *Binder {
	return &Binder{
		sessions: sessions,
		signer:   signer,
		users:    users,
		logger:   logger,
	}
}

// LoadAndSave is the middleware that must wrap every route using the binder.
func (b *Binder) LoadAndSave(next http.Handler) http.Handler {
	return b.sessions.LoadAndSave(next)
}

// Serialize produces the state stored in the session for user: a signed
// token naming the email and nothing else.
func (b *Binder) Serialize(user *model.User) (string, error) {
	if user == nil || user.Email == "" {
		return "", errors.New("session: cannot serialize a user without an email")
	}
	return b.signer.Sign(user.Email)
}

// Deserialize verifies state and re-resolves the user it names.
//
// A bad signature, an expired state or a user that no longer exists all
// return apperror.ErrUnauthenticated. A store failure is returned as-is so
// the caller can report it as a server error.
func (b *Binder) Deserialize(ctx context.Context, state string) (*model.User, error) {
	email, err := b.signer.Verify(state)
	if err != nil {
		return nil, apperror.Unauthenticated()
	}

	user, err := b.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			b.logger.Info("session names a user that no longer exists",
				slog.String("email", email),
			)
			return nil, apperror.Unauthenticated()
		}
		return nil, fmt.Errorf("session: resolving user: %w", err)
	}
	return user, nil
}

// Bind makes the request's session Authenticated as user.
//
// SESSION FIXATION:
// RenewToken issues a fresh session token (and deletes the old one) before
// the identity is written. A token an attacker planted before login is
// therefore never the one that ends up authenticated.
func (b *Binder) Bind(ctx context.Context, user *model.User) error {
	state, err := b.Serialize(user)
	if err != nil {
		return err
	}
	if err := b.sessions.RenewToken(ctx); err != nil {
		return fmt.Errorf("session: renewing token: %w", err)
	}
	b.sessions.Put(ctx, identityKey, state)
	return nil
}

// Current resolves the user of the request's session.
// Anonymous sessions return apperror.ErrUnauthenticated.
//
// Current is the only authentication check: a nil error means the session
// names a user that exists right now. Callers that need the user anyway
// (SecretGate) use it directly instead of asking a yes/no question first
// and resolving again.
func (b *Binder) Current(ctx context.Context) (*model.User, error) {
	state := b.sessions.GetString(ctx, identityKey)
	if state == "" {
		return nil, apperror.Unauthenticated()
	}
	return b.Deserialize(ctx, state)
}

// Unbind logs the session out. The stored session is destroyed, so any copy
// of the old cookie is useless afterwards. Unbinding an anonymous session is
// a no-op.
func (b *Binder) Unbind(ctx context.Context) error {
	if err := b.sessions.Destroy(ctx); err != nil {
		return fmt.Errorf("session: destroying session: %w", err)
	}
	return nil
}

// IssueOAuthState creates an unguessable state for an OAuth redirect and
// remembers it in the session. The value is 32 bytes from crypto/rand,
// base64url encoded.
func (b *Binder) IssueOAuthState(ctx context.Context) string {
	state := oauth2.GenerateVerifier()
	b.sessions.Put(ctx, oauthStateKey, state)
	return state
}

// ConsumeOAuthState checks the state returned by the provider against the one
// issued for this session. The stored value is removed either way, so a
// state can be used at most once.
func (b *Binder) ConsumeOAuthState(ctx context.Context, got string) bool {
	want := b.sessions.PopString(ctx, oauthStateKey)
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
