// Package auth implements password hashing and the login session lifecycle:
// issue, verify, expire, revoke.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"

	"ddnet-tracker/internal/domain"
)

const (
	DefaultSessionTTL = 7 * 24 * time.Hour
	DefaultCost       = 12

	// tokenBytes of entropy back every session token.
	tokenBytes = 32
)

type Service struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	clock    clockwork.Clock
	ttl      time.Duration
	cost     int

	// dummyHash is compared against when the username is unknown so both
	// failure paths cost one bcrypt comparison.
	dummyHash []byte
}

type Option func(*Service)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

func WithCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func NewService(users domain.UserRepository, sessions domain.SessionRepository, opts ...Option) (*Service, error) {
	s := &Service{
		users:    users,
		sessions: sessions,
		clock:    clockwork.NewRealClock(),
		ttl:      DefaultSessionTTL,
		cost:     DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hasher: %w", err)
	}
	s.dummyHash = dummy

	return s, nil
}

func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CreateUser registers a new account. The username is matched exactly; a
// taken name yields domain.ErrUsernameTaken.
func (s *Service) CreateUser(ctx context.Context, username, password string) (*domain.User, error) {
	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, username, hash)
	if err != nil {
		if errors.Is(err, domain.ErrUsernameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// AuthenticateUser returns domain.ErrInvalidCredentials for an unknown
// username and for a wrong password alike.
func (s *Service) AuthenticateUser(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return user, nil
}

// GenerateSessionToken returns 256 random bits, base64url encoded without padding.
func GenerateSessionToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CreateSession issues a token for userID that expires after the session TTL.
// The returned token is the only copy outside the client.
func (s *Service) CreateSession(ctx context.Context, userID uuid.UUID) (string, *domain.Session, error) {
	token, err := GenerateSessionToken()
	if err != nil {
		return "", nil, err
	}

	session := domain.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: s.clock.Now().Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}
	return token, &session, nil
}

// VerifySession resolves token to its user. Absent, expired and orphaned
// sessions all yield domain.ErrInvalidSession. Expired rows are left for
// PurgeExpiredSessions.
func (s *Service) VerifySession(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrInvalidSession
	}

	session, err := s.sessions.Get(ctx, token)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, domain.ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if !session.Valid(s.clock.Now()) {
		return nil, domain.ErrInvalidSession
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session user: %w", err)
	}
	return user, nil
}

// DeleteSession revokes token. Unknown tokens are not an error.
func (s *Service) DeleteSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteUser removes the account; the store cascades to its sessions.
func (s *Service) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// PurgeExpiredSessions deletes sessions that can no longer verify.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	return n, nil
}
