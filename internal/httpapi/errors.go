package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/artifacts"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/auth"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/providers"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/session"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/workspace"
)

// Error kinds, transport-independent.
const (
	KindAuth             = "auth"
	KindValidation       = "validation"
	KindNotFound         = "not_found"
	KindPermissionDenied = "permission_denied"
	KindConflict         = "conflict"
	KindProviderFailure  = "provider_failure"
	KindProviderTimeout  = "provider_timeout"
	KindInternal         = "internal"
)

// APIError is the JSON error body.
type APIError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func statusFor(kind string) int {
	switch kind {
	case KindAuth:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindProviderFailure:
		return http.StatusBadGateway
	case KindProviderTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(kind))
	_ = json.NewEncoder(w).Encode(APIError{Kind: kind, Message: message})
}

// writeErr classifies a Go error into an API error. Workspace violations
// from direct endpoints surface as validation; inside a turn they stay in
// the event trace and never reach here.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, KindAuth, "unauthorized")
	case errors.Is(err, artifacts.ErrBadToken):
		writeError(w, KindPermissionDenied, "invalid or expired token")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, KindNotFound, "not found")
	case errors.Is(err, session.ErrBusy):
		writeError(w, KindConflict, "session busy")
	case errors.Is(err, workspace.ErrPathEscape),
		errors.Is(err, workspace.ErrSensitivePath),
		errors.Is(err, workspace.ErrOutsideAllowlist):
		writeError(w, KindValidation, err.Error())
	case errors.Is(err, providers.ErrProviderTimeout):
		writeError(w, KindProviderTimeout, "provider timeout")
	case errors.Is(err, providers.ErrProviderUnavailable):
		writeError(w, KindProviderFailure, "provider failure")
	default:
		slog.Error("http.internal_error", "error", err)
		writeError(w, KindInternal, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
