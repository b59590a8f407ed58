package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddnet-tracker/internal/domain"
)

func TestUserRepo_FirstUserIsAdmin(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepo(pool)
	ctx := context.Background()

	first, err := repo.Create(ctx, "alice", "hash-a")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.True(t, first.IsAdmin)
	assert.False(t, first.CreatedAt.IsZero())

	second, err := repo.Create(ctx, "bob", "hash-b")
	require.NoError(t, err)
	assert.False(t, second.IsAdmin)
}

func TestUserRepo_ConcurrentFirstUsersOnlyOneAdmin(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepo(pool)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Create(ctx, "user"+string(rune('a'+i)), "hash")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 8)

	admins := 0
	for _, u := range users {
		if u.IsAdmin {
			admins++
		}
	}
	assert.Equal(t, 1, admins)
}

func TestUserRepo_DuplicateUsername(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepo(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, "alice", "hash")
	require.NoError(t, err)

	_, err = repo.Create(ctx, "alice", "other")
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)

	// Case-sensitive: a differently cased name is a different user.
	_, err = repo.Create(ctx, "Alice", "hash")
	assert.NoError(t, err)
}

func TestUserRepo_GetByUsernameAndID(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepo(pool)
	ctx := context.Background()

	created, err := repo.Create(ctx, "alice", "hash")
	require.NoError(t, err)

	byName, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)
	assert.Equal(t, "hash", byName.PasswordHash)

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	_, err = repo.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUserRepo_DeleteCascadesSessionsAndPlayers(t *testing.T) {
	pool := setupTestDB(t)
	users := NewUserRepo(pool)
	sessions := NewSessionRepo(pool)
	players := NewTrackedPlayerRepo(pool)
	ctx := context.Background()

	user, err := users.Create(ctx, "alice", "hash")
	require.NoError(t, err)

	require.NoError(t, sessions.Create(ctx, domain.Session{
		Token:     "token-1",
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}))
	_, err = players.Add(ctx, user.ID, "nameless tee")
	require.NoError(t, err)

	require.NoError(t, users.Delete(ctx, user.ID))

	_, err = sessions.Get(ctx, "token-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	list, err := players.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, users.Delete(ctx, user.ID), domain.ErrUserNotFound)
}
