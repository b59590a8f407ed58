package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"ddnet-tracker/internal/domain"
	apperrors "ddnet-tracker/internal/errors"
	"ddnet-tracker/internal/logging"
)

const (
	minPasswordLength = 6
	maxUsernameLength = 32
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
)

// validateCredentials checks registration input. username is already trimmed.
func validateCredentials(username, password string) error {
	if username == "" || strings.TrimSpace(password) == "" {
		return apperrors.ValidationError("Username and password are required")
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return apperrors.ValidationError(fmt.Sprintf("Username must be at most %d characters", maxUsernameLength))
	}
	if len(password) < minPasswordLength {
		return apperrors.ValidationError(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return apperrors.ValidationError(fmt.Sprintf("Password must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	username := strings.TrimSpace(req.Username)
	if err := validateCredentials(username, req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}

	if s.settings.IsRegistrationDisabled(r.Context()) {
		s.writeError(w, r, domain.ErrRegistrationDisabled)
		return
	}

	user, err := s.auth.CreateUser(r.Context(), username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "User registered", logging.UserID(user.ID), "username", user.Username, "is_admin", user.IsAdmin)
	writeJSON(w, http.StatusOK, AuthResponse{
		Response: Response{Success: true, Message: "Registration successful"},
		User:     toUserResponse(user),
	})
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || strings.TrimSpace(req.Password) == "" {
		s.writeError(w, r, apperrors.ValidationError("Username and password are required"))
		return
	}

	user, err := s.auth.AuthenticateUser(r.Context(), username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			s.authMetrics.Logins.WithLabelValues("invalid").Inc()
		} else {
			s.authMetrics.Logins.WithLabelValues("error").Inc()
		}
		s.writeError(w, r, err)
		return
	}

	token, _, err := s.auth.CreateSession(r.Context(), user.ID)
	if err != nil {
		s.authMetrics.Logins.WithLabelValues("error").Inc()
		s.writeError(w, r, err)
		return
	}

	if err := s.setSessionCookie(w, r, token); err != nil {
		s.authMetrics.Logins.WithLabelValues("error").Inc()
		s.writeError(w, r, apperrors.InternalError("failed to set session cookie", err))
		return
	}

	s.authMetrics.Logins.WithLabelValues("success").Inc()
	slog.InfoContext(r.Context(), "User logged in", logging.UserID(user.ID), "ip", s.clientIP(r))
	writeJSON(w, http.StatusOK, AuthResponse{
		Response: Response{Success: true, Message: "Login successful"},
		User:     toUserResponse(user),
	})
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if token := s.sessionToken(r); token != "" {
		if err := s.auth.DeleteSession(r.Context(), token); err != nil {
			// The reaper removes the row once it expires.
			slog.ErrorContext(r.Context(), "Failed to delete session on logout", logging.Err(err))
		}
		s.clearSessionCookie(w, r)
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Logged out"})
}

func (s *Server) meHandler(w http.ResponseWriter, r *http.Request) {
	token := s.sessionToken(r)
	if token == "" {
		if _, err := r.Cookie(sessionCookieName); err == nil {
			s.clearSessionCookie(w, r)
		}
		writeJSON(w, http.StatusOK, MeResponse{})
		return
	}

	user, err := s.auth.VerifySession(r.Context(), token)
	if errors.Is(err, domain.ErrInvalidSession) {
		slog.DebugContext(r.Context(), "Clearing invalid session cookie", "ip", s.clientIP(r))
		s.clearSessionCookie(w, r)
		writeJSON(w, http.StatusOK, MeResponse{})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MeResponse{User: toUserResponse(user), IsAuthenticated: true})
}
