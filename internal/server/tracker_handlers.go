package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"ddnet-tracker/internal/domain"
	apperrors "ddnet-tracker/internal/errors"
)

// tools lists the tools the frontend can mount.
var tools = []Tool{
	{
		ID:          "player-tracker",
		Name:        "DDNet Player Tracker",
		Description: "Track whether DDNet players are online and where they are playing",
		Category:    "game",
		Path:        "/api/tools/player-tracker",
	},
}

func (s *Server) listToolsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ToolsResponse{
		Response: Response{Success: true},
		Tools:    tools,
	})
}

func (s *Server) listPlayersHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	players, err := s.tracker.List(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := PlayersResponse{
		Response: Response{Success: true},
		Players:  make([]PlayerResponse, 0, len(players)),
	}
	for i := range players {
		resp.Players = append(resp.Players, *toPlayerResponse(&players[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) addPlayerHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req AddPlayerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	player, err := s.tracker.Add(r.Context(), user.ID, req.PlayerName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.connectionManager.NotifyUser(user.ID)

	writeJSON(w, http.StatusOK, PlayerResultResponse{
		Response: Response{Success: true, Message: "Player added"},
		Player:   toPlayerResponse(player),
	})
}

func (s *Server) clearPlayersHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	removed, err := s.tracker.Clear(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.connectionManager.NotifyUser(user.ID)

	writeJSON(w, http.StatusOK, ClearPlayersResponse{
		Response: Response{Success: true, Message: fmt.Sprintf("Tracking list cleared, %d players removed", removed)},
		Removed:  removed,
	})
}

// updatePlayerHandler applies the boolean fields present in the body.
// Fields of any other type are ignored; a body with none left is rejected.
func (s *Server) updatePlayerHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	playerID, ok := parsePlayerID(r)
	if !ok {
		s.writeError(w, r, domain.ErrPlayerNotFound)
		return
	}

	var raw map[string]json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		s.writeError(w, r, err)
		return
	}

	update := domain.PlayerUpdate{
		IsActive:            boolField(raw, "isActive"),
		NotificationEnabled: boolField(raw, "notificationEnabled"),
	}

	player, err := s.tracker.Update(r.Context(), user.ID, playerID, update)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.connectionManager.NotifyUser(user.ID)

	writeJSON(w, http.StatusOK, PlayerResultResponse{
		Response: Response{Success: true, Message: "Player updated"},
		Player:   toPlayerResponse(player),
	})
}

func (s *Server) deletePlayerHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	playerID, ok := parsePlayerID(r)
	if !ok {
		s.writeError(w, r, domain.ErrPlayerNotFound)
		return
	}

	if err := s.tracker.Delete(r.Context(), user.ID, playerID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.connectionManager.NotifyUser(user.ID)

	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Player removed"})
}

func (s *Server) playerStatusHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	statuses, err := s.tracker.OnlineStatus(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Response:  Response{Success: true},
		Players:   statuses,
		CheckedAt: s.clock.Now().UTC(),
	})
}

// lookupHandler resolves ?names=a,b without an account. Only online
// players are returned.
func (s *Server) lookupHandler(w http.ResponseWriter, r *http.Request) {
	names := strings.Split(r.URL.Query().Get("names"), ",")
	if len(names) > maxLookupNames {
		s.writeError(w, r, apperrors.ValidationError(fmt.Sprintf("At most %d names per lookup", maxLookupNames)))
		return
	}

	found, err := s.tracker.Lookup(r.Context(), names)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Response:  Response{Success: true},
		Players:   found,
		CheckedAt: s.clock.Now().UTC(),
	})
}

const maxLookupNames = 50

func parsePlayerID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	return id, err == nil
}

func boolField(raw map[string]json.RawMessage, key string) *bool {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return nil
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return nil
	}
	return &b
}
