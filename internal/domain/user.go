package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UserRepository interface {
	// Create inserts a user. The first user ever created is made admin; the
	// decision and the insert are atomic. Returns ErrUsernameTaken on a
	// duplicate username.
	Create(ctx context.Context, username, passwordHash string) (*User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Delete(ctx context.Context, userID uuid.UUID) error
}
