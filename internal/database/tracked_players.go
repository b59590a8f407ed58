package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ddnet-tracker/internal/domain"
)

const trackedPlayerColumns = `id, user_id, player_name, is_active, notification_enabled, created_at`

type TrackedPlayerRepo struct {
	pool *pgxpool.Pool
}

func NewTrackedPlayerRepo(pool *pgxpool.Pool) *TrackedPlayerRepo {
	return &TrackedPlayerRepo{pool: pool}
}

func scanTrackedPlayer(row pgx.Row) (*domain.TrackedPlayer, error) {
	var p domain.TrackedPlayer
	if err := row.Scan(&p.ID, &p.UserID, &p.PlayerName, &p.IsActive, &p.NotificationEnabled, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *TrackedPlayerRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.TrackedPlayer, error) {
	query := `SELECT ` + trackedPlayerColumns + ` FROM tracked_players WHERE user_id = $1 ORDER BY created_at, player_name`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked players: %w", err)
	}
	defer rows.Close()

	players := make([]domain.TrackedPlayer, 0)
	for rows.Next() {
		p, err := scanTrackedPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracked player row: %w", err)
		}
		players = append(players, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracked player rows: %w", err)
	}

	return players, nil
}

func (r *TrackedPlayerRepo) Add(ctx context.Context, userID uuid.UUID, name string) (*domain.TrackedPlayer, error) {
	query := `
		INSERT INTO tracked_players (id, user_id, player_name)
		VALUES ($1, $2, $3)
		RETURNING ` + trackedPlayerColumns

	p, err := scanTrackedPlayer(r.pool.QueryRow(ctx, query, uuid.New(), userID, name))
	if isUniqueViolation(err) {
		return nil, domain.ErrPlayerAlreadyTracked
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add tracked player %q: %w", name, err)
	}
	return p, nil
}

func (r *TrackedPlayerRepo) Update(ctx context.Context, userID, playerID uuid.UUID, update domain.PlayerUpdate) (*domain.TrackedPlayer, error) {
	query := `
		UPDATE tracked_players
		SET is_active = COALESCE($3, is_active),
		    notification_enabled = COALESCE($4, notification_enabled)
		WHERE id = $1 AND user_id = $2
		RETURNING ` + trackedPlayerColumns

	p, err := scanTrackedPlayer(r.pool.QueryRow(ctx, query, playerID, userID, update.IsActive, update.NotificationEnabled))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update tracked player %s: %w", playerID, err)
	}
	return p, nil
}

func (r *TrackedPlayerRepo) Delete(ctx context.Context, userID, playerID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tracked_players WHERE id = $1 AND user_id = $2`, playerID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete tracked player %s: %w", playerID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

func (r *TrackedPlayerRepo) DeleteAllByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tracked_players WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear tracked players: %w", err)
	}
	return tag.RowsAffected(), nil
}
