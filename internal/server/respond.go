package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"ddnet-tracker/internal/domain"
	apperrors "ddnet-tracker/internal/errors"
	"ddnet-tracker/internal/logging"
)

const maxBodyBytes = 1 << 20

var errForbidden = apperrors.ForbiddenError("Insufficient privileges")

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

// writeError maps err to a status and a client-safe message. Causes of
// internal and upstream errors are logged, never returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	status := appErr.HTTPStatus()

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			logging.Err(appErr.Cause),
			"method", r.Method,
			"path", r.URL.Path,
			"type", string(appErr.Type),
			"message", appErr.Message,
		)
	}

	writeJSON(w, status, Response{Success: false, Message: appErr.Message})
}

func toAppError(err error) *apperrors.Error {
	switch {
	case errors.Is(err, domain.ErrUsernameTaken):
		return apperrors.ConflictError("Username already exists")
	case errors.Is(err, domain.ErrPlayerAlreadyTracked):
		return apperrors.ConflictError("Player is already being tracked")
	case errors.Is(err, domain.ErrPlayerNotFound):
		return apperrors.NotFoundError("Player not found")
	case errors.Is(err, domain.ErrInvalidCredentials):
		return apperrors.UnauthorizedError("Invalid username or password")
	case errors.Is(err, domain.ErrInvalidSession):
		return apperrors.UnauthorizedError("Session expired, please log in again")
	case errors.Is(err, domain.ErrRegistrationDisabled):
		return apperrors.ForbiddenError("Registration is disabled")
	}

	appErr := apperrors.AsStructuredError(err)
	if appErr.Type == apperrors.TypeInternal {
		return apperrors.InternalError("Internal server error", appErr.Cause)
	}
	return appErr
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.ValidationError("Invalid request body")
	}
	return nil
}
