package server

import (
	"log/slog"
	"net/http"
	"strings"

	apperrors "ddnet-tracker/internal/errors"
)

const settingRegistrationDisabled = "registrationDisabled"

func (s *Server) listUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := s.auth.ListUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := UsersResponse{
		Response: Response{Success: true},
		Users:    make([]UserResponse, 0, len(users)),
	}
	for i := range users {
		resp.Users = append(resp.Users, *toUserResponse(&users[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getSettingsHandler is public. Admins additionally see where the server runs.
func (s *Server) getSettingsHandler(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	view := SettingsView{
		RegistrationDisabled: s.settings.IsRegistrationDisabled(r.Context()),
	}
	if user != nil && user.IsAdmin {
		view.AppEnv = s.cfg.AppEnv
		view.Port = s.cfg.Port
		view.Host = s.cfg.Host
	}

	writeJSON(w, http.StatusOK, SettingsResponse{
		Response: Response{Success: true},
		Settings: view,
	})
}

func (s *Server) updateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req UpdateSettingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	switch req.Setting {
	case settingRegistrationDisabled:
		disabled := strings.TrimSpace(string(req.Value)) == "true"
		if err := s.settings.SetRegistrationDisabled(r.Context(), disabled, user.ID); err != nil {
			s.writeError(w, r, err)
			return
		}
		slog.InfoContext(r.Context(), "Registration setting changed", "disabled", disabled)
	default:
		s.writeError(w, r, apperrors.ValidationError("Unsupported setting"))
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Settings updated"})
}
