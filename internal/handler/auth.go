package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sakif/secrets/internal/apperror"
	"github.com/sakif/secrets/internal/auth"
	"github.com/sakif/secrets/internal/service"
	"github.com/sakif/secrets/internal/session"
)

// AuthHandler turns HTTP requests into identities and binds them to the
// session.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLogin            → email + password against the local store
//   - HandleRegister         → create a local account and sign it in
//   - HandleProviderLogin    → redirect to Google/GitHub with a fresh state
//   - HandleProviderCallback → check state, exchange code, resolve the account
//   - HandleLogout           → drop the session
//
// Every path that ends in "Authenticated" goes through binder.Bind, which
// renews the session token before storing the identity.
type AuthHandler struct {
	local     *service.LocalIdentity
	federated *service.FederatedIdentity
	binder    *session.Binder
	providers map[string]auth.IdentityProvider
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewAuthHandler creates an AuthHandler. Providers are keyed by Name(); a
// provider that is not configured is simply not passed in.
func NewAuthHandler(
	local *service.LocalIdentity,
	federated *service.FederatedIdentity,
	binder *session.Binder,
	providers []auth.IdentityProvider,
	logger *slog.Logger,
) *AuthHandler {
	byName := make(map[string]auth.IdentityProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &AuthHandler{
		local:     local,
		federated: federated,
		binder:    binder,
		providers: byName,
		validate:  newValidator(),
		logger:    logger,
	}
}

// HandleLogin authenticates with email and password.
//
// HTTP: POST /login
//
// An unknown email and a wrong password both answer 401 with the same body.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" {
		writeError(w, apperror.ValidationFailed("email", "email is required"))
		return
	}
	if req.Password == "" {
		writeError(w, apperror.ValidationFailed("password", "password is required"))
		return
	}

	user, err := h.local.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.binder.Bind(r.Context(), user); err != nil {
		writeError(w, err)
		return
	}
	writeStatus(w, http.StatusOK, StatusAuthenticated)
}

// HandleRegister creates a local account and signs it in.
//
// HTTP: POST /register
//
// The account row is committed before the session. If binding or the
// session commit fails, the account stays and the client gets an error;
// logging in with the same password recovers.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, validationError(err))
		return
	}

	user, err := h.local.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.binder.Bind(r.Context(), user); err != nil {
		writeError(w, err)
		return
	}
	writeStatus(w, http.StatusCreated, StatusAuthenticated)
}

// HandleProviderLogin starts a federated sign-in.
//
// HTTP: GET /auth/{provider}
//
// CSRF PROTECTION VIA STATE:
// The state is stored in the server-side session, not a cookie of its own.
// The callback only accepts the exact value issued here, once.
func (h *AuthHandler) HandleProviderLogin(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}

	state := h.binder.IssueOAuthState(r.Context())
	http.Redirect(w, r, p.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleProviderCallback finishes a federated sign-in.
//
// HTTP: GET /auth/{provider}/secrets?code=...&state=...
//
// FLOW:
//  1. State must match the one issued for this session
//  2. The provider must not have reported an error (e.g. user denied access)
//  3. The code is exchanged for a profile
//  4. The profile's verified email is resolved to an account (created if new)
//  5. The account is bound to the session
func (h *AuthHandler) HandleProviderCallback(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()

	if !h.binder.ConsumeOAuthState(ctx, q.Get("state")) {
		h.logger.Warn("oauth state mismatch", slog.String("provider", p.Name()))
		writeError(w, apperror.Unauthenticated())
		return
	}

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("provider denied authorization",
			slog.String("provider", p.Name()),
			slog.String("error", errParam),
		)
		writeError(w, apperror.Unauthenticated())
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, apperror.Unauthenticated())
		return
	}

	profile, err := p.Exchange(ctx, code)
	if err != nil {
		h.logger.Error("oauth exchange failed",
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()),
		)
		writeError(w, apperror.Unauthenticated())
		return
	}

	if profile.Email == "" {
		writeError(w, apperror.MissingIdentity(p.Name()))
		return
	}

	user, err := h.federated.ResolveOrCreate(ctx, profile.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.binder.Bind(ctx, user); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("federated login",
		slog.String("provider", p.Name()),
		slog.String("email", user.Email),
	)
	writeStatus(w, http.StatusOK, StatusAuthenticated)
}

// HandleLogout drops the session. Logging out without a session is not an
// error.
//
// HTTP: GET /logout, POST /logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.binder.Unbind(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeStatus(w, http.StatusOK, StatusAnonymous)
}

// provider looks up the {provider} URL parameter and answers 404 itself when
// it is not configured.
func (h *AuthHandler) provider(w http.ResponseWriter, r *http.Request) (auth.IdentityProvider, bool) {
	name := chi.URLParam(r, "provider")
	p, ok := h.providers[name]
	if !ok {
		writeError(w, apperror.NotFound("identity provider", name))
		return nil, false
	}
	return p, true
}
