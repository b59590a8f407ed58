package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TrackedPlayer struct {
	ID                  uuid.UUID
	UserID              uuid.UUID
	PlayerName          string
	IsActive            bool
	NotificationEnabled bool
	CreatedAt           time.Time
}

// PlayerUpdate carries a partial update; nil fields are left unchanged.
type PlayerUpdate struct {
	IsActive            *bool
	NotificationEnabled *bool
}

func (u PlayerUpdate) Empty() bool {
	return u.IsActive == nil && u.NotificationEnabled == nil
}

type TrackedPlayerRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]TrackedPlayer, error)
	// Add returns ErrPlayerAlreadyTracked when the user already tracks name.
	Add(ctx context.Context, userID uuid.UUID, name string) (*TrackedPlayer, error)
	// Update and Delete return ErrPlayerNotFound unless the row exists and
	// belongs to userID.
	Update(ctx context.Context, userID, playerID uuid.UUID, update PlayerUpdate) (*TrackedPlayer, error)
	Delete(ctx context.Context, userID, playerID uuid.UUID) error
	DeleteAllByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}
