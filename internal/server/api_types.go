package server

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"ddnet-tracker/internal/ddnet"
	"ddnet-tracker/internal/domain"
)

// Every JSON body carries success and, usually, a human-readable message.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ============================================================================
// AUTH
// ============================================================================

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserResponse(u *domain.User) *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}

type AuthResponse struct {
	Response
	User *UserResponse `json:"user"`
}

type MeResponse struct {
	User            *UserResponse `json:"user"`
	IsAuthenticated bool          `json:"isAuthenticated"`
}

// ============================================================================
// ADMIN
// ============================================================================

type UsersResponse struct {
	Response
	Users []UserResponse `json:"users"`
}

// SettingsView omits the environment fields for non-admins.
type SettingsView struct {
	RegistrationDisabled bool   `json:"registrationDisabled"`
	AppEnv               string `json:"appEnv,omitempty"`
	Port                 string `json:"port,omitempty"`
	Host                 string `json:"host,omitempty"`
}

type SettingsResponse struct {
	Response
	Settings SettingsView `json:"settings"`
}

// UpdateSettingRequest's value is raw so that only a literal true enables a flag.
type UpdateSettingRequest struct {
	Setting string          `json:"setting"`
	Value   json.RawMessage `json:"value"`
}

// ============================================================================
// TOOLS
// ============================================================================

type Tool struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Path        string `json:"path"`
}

type ToolsResponse struct {
	Response
	Tools []Tool `json:"tools"`
}

// ============================================================================
// PLAYER TRACKER
// ============================================================================

type AddPlayerRequest struct {
	PlayerName string `json:"playerName"`
}

type PlayerResponse struct {
	ID                  uuid.UUID `json:"id"`
	PlayerName          string    `json:"playerName"`
	IsActive            bool      `json:"isActive"`
	NotificationEnabled bool      `json:"notificationEnabled"`
	CreatedAt           time.Time `json:"createdAt"`
}

func toPlayerResponse(p *domain.TrackedPlayer) *PlayerResponse {
	return &PlayerResponse{
		ID:                  p.ID,
		PlayerName:          p.PlayerName,
		IsActive:            p.IsActive,
		NotificationEnabled: p.NotificationEnabled,
		CreatedAt:           p.CreatedAt,
	}
}

type PlayersResponse struct {
	Response
	Players []PlayerResponse `json:"players"`
}

type PlayerResultResponse struct {
	Response
	Player *PlayerResponse `json:"player"`
}

type ClearPlayersResponse struct {
	Response
	Removed int64 `json:"removed"`
}

type StatusResponse struct {
	Response
	Players   []ddnet.PlayerStatus `json:"players"`
	CheckedAt time.Time            `json:"checkedAt"`
}

// ============================================================================
// LIVE FEED (websocket)
// ============================================================================

// LiveMessage is pushed to live feed clients. Type is "status" or "error".
type LiveMessage struct {
	Type      string               `json:"type"`
	Players   []ddnet.PlayerStatus `json:"players,omitempty"`
	Message   string               `json:"message,omitempty"`
	CheckedAt time.Time            `json:"checkedAt"`
}

// ============================================================================
// HEALTH
// ============================================================================

type HealthResponse struct {
	Status     string                       `json:"status"`
	Components map[string]map[string]string `json:"components"`
}
