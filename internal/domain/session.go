package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is a login session. The token is its own primary key.
type Session struct {
	Token     string
	UserID    uuid.UUID
	ExpiresAt time.Time
}

// Valid reports whether the session is usable at now.
func (s *Session) Valid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

type SessionRepository interface {
	Create(ctx context.Context, session Session) error
	Get(ctx context.Context, token string) (*Session, error)
	// Delete is idempotent.
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
