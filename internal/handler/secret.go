package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/secrets/internal/service"
)

// SecretHandler serves the per-user secret. Authentication is checked by the
// gate on every call; there is no separate auth middleware to forget.
type SecretHandler struct {
	gate   *service.SecretGate
	logger *slog.Logger
}

func NewSecretHandler(gate *service.SecretGate, logger *slog.Logger) *SecretHandler {
	return &SecretHandler{gate: gate, logger: logger}
}

// SecretResponse is the body of GET /secrets.
type SecretResponse struct {
	Secret    string `json:"secret"`
	HasSecret bool   `json:"hasSecret"`
}

// HandleView returns the current user's secret.
//
// HTTP: GET /secrets
func (h *SecretHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	secret, set, err := h.gate.ViewSecret(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SecretResponse{Secret: secret, HasSecret: set})
}

// HandleSubmit replaces the current user's secret.
//
// HTTP: POST /submit
func (h *SecretHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSecret(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.gate.SubmitSecret(r.Context(), req.Secret); err != nil {
		writeError(w, err)
		return
	}
	writeStatus(w, http.StatusOK, StatusUpdated)
}
