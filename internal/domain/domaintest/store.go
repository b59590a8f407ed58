// Package domaintest provides an in-memory implementation of the domain
// repositories for unit tests. Deleting a user cascades to its sessions and
// tracked players, mirroring the foreign keys of the SQL schema.
package domaintest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ddnet-tracker/internal/domain"
)

type Store struct {
	mu       sync.Mutex
	users    map[uuid.UUID]domain.User
	sessions map[string]domain.Session
	players  map[uuid.UUID]domain.TrackedPlayer
	settings map[string]string
	seq      int

	// Err, when set, is returned by every repository call.
	Err error
}

func NewStore() *Store {
	return &Store{
		users:    make(map[uuid.UUID]domain.User),
		sessions: make(map[string]domain.Session),
		players:  make(map[uuid.UUID]domain.TrackedPlayer),
		settings: make(map[string]string),
	}
}

func (s *Store) Users() *UserRepo                   { return &UserRepo{s} }
func (s *Store) Sessions() *SessionRepo             { return &SessionRepo{s} }
func (s *Store) TrackedPlayers() *TrackedPlayerRepo { return &TrackedPlayerRepo{s} }
func (s *Store) Settings() *SettingsRepo            { return &SettingsRepo{s} }

// SessionCount returns the number of stored sessions, expired ones included.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// tick returns strictly increasing timestamps so ordering by creation time is stable.
func (s *Store) tick() time.Time {
	s.seq++
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Second)
}

type UserRepo struct{ s *Store }

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(_ context.Context, username, passwordHash string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}

	for _, u := range r.s.users {
		if u.Username == username {
			return nil, domain.ErrUsernameTaken
		}
	}

	now := r.s.tick()
	u := domain.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		IsAdmin:      len(r.s.users) == 0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.s.users[u.ID] = u
	return &u, nil
}

func (r *UserRepo) GetByID(_ context.Context, userID uuid.UUID) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}

	u, ok := r.s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (r *UserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}

	for _, u := range r.s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *UserRepo) List(_ context.Context) ([]domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}

	users := make([]domain.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (r *UserRepo) Delete(_ context.Context, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}

	if _, ok := r.s.users[userID]; !ok {
		return domain.ErrUserNotFound
	}
	delete(r.s.users, userID)
	for token, sess := range r.s.sessions {
		if sess.UserID == userID {
			delete(r.s.sessions, token)
		}
	}
	for id, p := range r.s.players {
		if p.UserID == userID {
			delete(r.s.players, id)
		}
	}
	return nil
}

type SessionRepo struct{ s *Store }

var _ domain.SessionRepository = (*SessionRepo)(nil)

func (r *SessionRepo) Create(_ context.Context, session domain.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}

	r.s.sessions[session.Token] = session
	return nil
}

func (r *SessionRepo) Get(_ context.Context, token string) (*domain.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}

	sess, ok := r.s.sessions[token]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &sess, nil
}

func (r *SessionRepo) Delete(_ context.Context, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}

	delete(r.s.sessions, token)
	return nil
}

func (r *SessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return 0, r.s.Err
	}

	var n int64
	for token, sess := range r.s.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(r.s.sessions, token)
			n++
		}
	}
	return n, nil
}

type TrackedPlayerRepo struct{ s *Store }

var _ domain.TrackedPlayerRepository = (*TrackedPlayerRepo)(nil)

func (r *TrackedPlayerRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.TrackedPlayer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}

	players := make([]domain.TrackedPlayer, 0)
	for _, p := range r.s.players {
		if p.UserID == userID {
			players = append(players, p)
		}
	}
	sort.Slice(players, func(i, j int) bool { return players[i].CreatedAt.Before(players[j].CreatedAt) })
	return players, nil
}

func (r *TrackedPlayerRepo) Add(_ context.Context, userID uuid.UUID, name string) (*domain.TrackedPlayer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}

	for _, p := range r.s.players {
		if p.UserID == userID && p.PlayerName == name {
			return nil, domain.ErrPlayerAlreadyTracked
		}
	}

	p := domain.TrackedPlayer{
		ID:                  uuid.New(),
		UserID:              userID,
		PlayerName:          name,
		IsActive:            true,
		NotificationEnabled: true,
		CreatedAt:           r.s.tick(),
	}
	r.s.players[p.ID] = p
	return &p, nil
}

func (r *TrackedPlayerRepo) Update(_ context.Context, userID, playerID uuid.UUID, update domain.PlayerUpdate) (*domain.TrackedPlayer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return nil, r.s.Err
	}

	p, ok := r.s.players[playerID]
	if !ok || p.UserID != userID {
		return nil, domain.ErrPlayerNotFound
	}
	if update.IsActive != nil {
		p.IsActive = *update.IsActive
	}
	if update.NotificationEnabled != nil {
		p.NotificationEnabled = *update.NotificationEnabled
	}
	r.s.players[playerID] = p
	return &p, nil
}

func (r *TrackedPlayerRepo) Delete(_ context.Context, userID, playerID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}

	p, ok := r.s.players[playerID]
	if !ok || p.UserID != userID {
		return domain.ErrPlayerNotFound
	}
	delete(r.s.players, playerID)
	return nil
}

func (r *TrackedPlayerRepo) DeleteAllByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return 0, r.s.Err
	}

	var n int64
	for id, p := range r.s.players {
		if p.UserID == userID {
			delete(r.s.players, id)
			n++
		}
	}
	return n, nil
}

type SettingsRepo struct{ s *Store }

var _ domain.SettingsRepository = (*SettingsRepo)(nil)

func (r *SettingsRepo) Get(_ context.Context, key string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return "", r.s.Err
	}

	v, ok := r.s.settings[key]
	if !ok {
		return "", domain.ErrSettingNotFound
	}
	return v, nil
}

func (r *SettingsRepo) Upsert(_ context.Context, key, value string, _ uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.Err != nil {
		return r.s.Err
	}

	r.s.settings[key] = value
	return nil
}
