package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jjudge-oj/accounts/internal/services"
	"github.com/jjudge-oj/accounts/internal/store"
)

// statusClientClosedRequest is the nginx convention for a client that went away.
const statusClientClosedRequest = 499

// writeServiceError maps identity errors onto HTTP responses. Internal
// failures are logged with detail and answered with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var (
		validation *services.ValidationError
		conflict   *store.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, conflict.Error())
	case errors.Is(err, store.ErrValueTooLong):
		writeError(w, http.StatusBadRequest, "a field exceeds its maximum length")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, services.ErrInvalidCredentials.Error())
	case errors.Is(err, services.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, services.ErrInvalidToken.Error())
	case errors.Is(err, context.Canceled):
		log.InfoContext(r.Context(), "request canceled by client", "path", r.URL.Path)
		writeError(w, statusClientClosedRequest, "request canceled")
	case errors.Is(err, store.ErrUnavailable):
		log.ErrorContext(r.Context(), "store unavailable", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
