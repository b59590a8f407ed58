// Package tracker manages each user's list of tracked DDNet players and
// resolves which of them are online.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"ddnet-tracker/internal/ddnet"
	"ddnet-tracker/internal/domain"
	apperrors "ddnet-tracker/internal/errors"
)

// MaxNameLength bounds stored player names.
const MaxNameLength = 64

// Finder looks up which of names are currently on a server.
// FindPlayerByNames reports at most one name per server; LocatePlayersByNames
// reports every online name.
type Finder interface {
	FindPlayerByNames(ctx context.Context, names []string) ([]ddnet.PlayerStatus, error)
	LocatePlayersByNames(ctx context.Context, names []string) ([]ddnet.PlayerStatus, error)
}

// Service owns tracked player lists and their online lookups.
type Service struct {
	players domain.TrackedPlayerRepository
	finder  Finder
}

func NewService(players domain.TrackedPlayerRepository, finder Finder) *Service {
	return &Service{players: players, finder: finder}
}

// List returns the user's tracked players, oldest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]domain.TrackedPlayer, error) {
	players, err := s.players.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked players: %w", err)
	}
	return players, nil
}

// Add starts tracking name for the user. Tracking a name twice yields
// domain.ErrPlayerAlreadyTracked.
func (s *Service) Add(ctx context.Context, userID uuid.UUID, name string) (*domain.TrackedPlayer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.ValidationError("Player name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, apperrors.ValidationError(fmt.Sprintf("Player name must be at most %d characters", MaxNameLength))
	}

	player, err := s.players.Add(ctx, userID, name)
	if err != nil {
		if errors.Is(err, domain.ErrPlayerAlreadyTracked) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to add tracked player: %w", err)
	}
	return player, nil
}

// Clear removes every tracked player of the user and reports how many there were.
func (s *Service) Clear(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.players.DeleteAllByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear tracked players: %w", err)
	}
	return n, nil
}

func (s *Service) Update(ctx context.Context, userID, playerID uuid.UUID, update domain.PlayerUpdate) (*domain.TrackedPlayer, error) {
	if update.Empty() {
		return nil, apperrors.ValidationError("No valid fields to update")
	}

	player, err := s.players.Update(ctx, userID, playerID, update)
	if err != nil {
		if errors.Is(err, domain.ErrPlayerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update tracked player: %w", err)
	}
	return player, nil
}

func (s *Service) Delete(ctx context.Context, userID, playerID uuid.UUID) error {
	if err := s.players.Delete(ctx, userID, playerID); err != nil {
		if errors.Is(err, domain.ErrPlayerNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete tracked player: %w", err)
	}
	return nil
}

// Lookup resolves an ad-hoc list of names. Only online players are returned.
func (s *Service) Lookup(ctx context.Context, names []string) ([]ddnet.PlayerStatus, error) {
	cleaned := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	if len(cleaned) == 0 {
		return nil, apperrors.ValidationError("At least one player name is required")
	}

	found, err := s.finder.FindPlayerByNames(ctx, cleaned)
	if err != nil {
		return nil, apperrors.ExternalError("Failed to fetch server list", err)
	}
	return found, nil
}

// OnlineStatus returns one entry per active tracked player of the user, in
// list order. Players not found on any server are reported offline.
func (s *Service) OnlineStatus(ctx context.Context, userID uuid.UUID) ([]ddnet.PlayerStatus, error) {
	players, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(players))
	for _, p := range players {
		if p.IsActive {
			names = append(names, p.PlayerName)
		}
	}
	if len(names) == 0 {
		return []ddnet.PlayerStatus{}, nil
	}

	found, err := s.finder.LocatePlayersByNames(ctx, names)
	if err != nil {
		return nil, apperrors.ExternalError("Failed to fetch server list", err)
	}

	online := make(map[string]ddnet.PlayerStatus, len(found))
	for _, f := range found {
		if _, seen := online[f.Player]; !seen {
			online[f.Player] = f
		}
	}

	statuses := make([]ddnet.PlayerStatus, 0, len(names))
	for _, name := range names {
		if st, ok := online[name]; ok {
			statuses = append(statuses, st)
			continue
		}
		statuses = append(statuses, ddnet.PlayerStatus{Player: name})
	}
	return statuses, nil
}
