package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/example/animefan/internal/platform/api"
	"github.com/example/animefan/internal/platform/auth"
	"github.com/example/animefan/internal/platform/httpserver"
	"github.com/example/animefan/internal/platform/validate"
	"github.com/example/animefan/services/catalog/internal/domain"
)

// writeError maps the domain error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	rid := httpserver.RequestIDFromContext(r.Context())
	switch {
	case errors.Is(err, domain.ErrInvalid):
		var ve *validate.Error
		var details map[string]any
		if errors.As(err, &ve) {
			details = make(map[string]any, len(ve.Fields))
			for _, f := range ve.Fields {
				details[f.Field] = f.String()
			}
		}
		api.BadRequest(w, "INVALID_ARGUMENT", err.Error(), rid, details)
	case errors.Is(err, domain.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", err.Error(), rid)
	case errors.Is(err, domain.ErrConflict):
		api.Conflict(w, "CONFLICT", err.Error(), rid, nil)
	case errors.Is(err, domain.ErrForbidden):
		api.Forbidden(w, "FORBIDDEN", err.Error(), rid)
	case errors.Is(err, domain.ErrUnavailable):
		api.Unavailable(w, "catalog temporarily unavailable", rid)
	default:
		api.Internal(w, rid)
	}
}

func badJSON(w http.ResponseWriter, r *http.Request) {
	api.BadRequest(w, "INVALID_JSON", "Invalid JSON", httpserver.RequestIDFromContext(r.Context()), nil)
}

// userID reads the authenticated caller, answering 401 when absent.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok || strings.TrimSpace(uid) == "" {
		api.Unauthorized(w, "UNAUTHENTICATED", "authentication required", httpserver.RequestIDFromContext(r.Context()))
		return "", false
	}
	return uid, true
}
