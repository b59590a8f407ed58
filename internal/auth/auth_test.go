package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ddnet-tracker/internal/domain"
	"ddnet-tracker/internal/domain/domaintest"
)

func newTestService(t *testing.T) (*Service, *domaintest.Store, *clockwork.FakeClock) {
	t.Helper()

	store := domaintest.NewStore()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, err := NewService(store.Users(), store.Sessions(),
		WithClock(clock),
		WithCost(bcrypt.MinCost),
	)
	require.NoError(t, err)
	return svc, store, clock
}

func TestCreateUser_FirstUserIsAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateUser(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.True(t, first.IsAdmin)
	assert.NotEqual(t, uuid.Nil, first.ID)

	for _, name := range []string{"bob", "carol", "dave"} {
		u, err := svc.CreateUser(ctx, name, "secret1")
		require.NoError(t, err)
		assert.False(t, u.IsAdmin, name)
	}
}

func TestCreateUser_HashesPassword(t *testing.T) {
	svc, _, _ := newTestService(t)

	u, err := svc.CreateUser(context.Background(), "alice", "secret1")
	require.NoError(t, err)

	assert.NotEqual(t, "secret1", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret1")))
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "alice", "secret1")
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, "alice", "another")
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)

	// Exact match only.
	_, err = svc.CreateUser(ctx, "ALICE", "secret1")
	assert.NoError(t, err)
}

func TestAuthenticateUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, "alice", "secret1")
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		u, err := svc.AuthenticateUser(ctx, "alice", "secret1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, u.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		u, err := svc.AuthenticateUser(ctx, "alice", "wrong")
		assert.Nil(t, u)
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	t.Run("unknown user is indistinguishable", func(t *testing.T) {
		u, err := svc.AuthenticateUser(ctx, "mallory", "secret1")
		assert.Nil(t, u)
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	t.Run("username is case sensitive", func(t *testing.T) {
		_, err := svc.AuthenticateUser(ctx, "Alice", "secret1")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})
}

func TestAuthenticateUser_StoreFailureIsNotCredentialError(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.Err = errors.New("connection reset")

	_, err := svc.AuthenticateUser(context.Background(), "alice", "secret1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestGenerateSessionToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := GenerateSessionToken()
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(token)
		require.NoError(t, err)
		assert.Len(t, raw, 32)

		assert.False(t, seen[token], "token repeated")
		seen[token] = true
	}
}

func TestCreateSession_SetsExpiry(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "alice", "secret1")
	require.NoError(t, err)

	token, session, err := svc.CreateSession(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, token, session.Token)
	assert.Equal(t, clock.Now().Add(DefaultSessionTTL), session.ExpiresAt)
}

func TestVerifySession_ValidUntilExpiry(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "alice", "secret1")
	require.NoError(t, err)
	token, _, err := svc.CreateSession(ctx, user.ID)
	require.NoError(t, err)

	got, err := svc.VerifySession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	// One millisecond before expiry: still valid.
	clock.Advance(DefaultSessionTTL - time.Millisecond)
	_, err = svc.VerifySession(ctx, token)
	require.NoError(t, err)

	// Exactly at expiry: invalid.
	clock.Advance(time.Millisecond)
	_, err = svc.VerifySession(ctx, token)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)

	// One millisecond after expiry: invalid.
	clock.Advance(time.Millisecond)
	_, err = svc.VerifySession(ctx, token)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
}

func TestVerifySession_ExpiredSessionNotDeletedLazily(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "alice", "secret1")
	require.NoError(t, err)
	token, _, err := svc.CreateSession(ctx, user.ID)
	require.NoError(t, err)

	clock.Advance(DefaultSessionTTL + time.Second)
	_, err = svc.VerifySession(ctx, token)
	require.ErrorIs(t, err, domain.ErrInvalidSession)

	assert.Equal(t, 1, store.SessionCount())
}

func TestVerifySession_UnknownAndEmptyToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.VerifySession(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidSession)

	_, err = svc.VerifySession(ctx, "does-not-exist")
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
}

func TestDeleteSession_RevokesAndIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "alice", "secret1")
	require.NoError(t, err)
	token, _, err := svc.CreateSession(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSession(ctx, token))
	_, err = svc.VerifySession(ctx, token)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)

	assert.NoError(t, svc.DeleteSession(ctx, token))
	assert.NoError(t, svc.DeleteSession(ctx, "never-existed"))
	assert.NoError(t, svc.DeleteSession(ctx, ""))
}

func TestDeleteUser_InvalidatesAllSessions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "alice", "secret1")
	require.NoError(t, err)
	other, err := svc.CreateUser(ctx, "bob", "secret1")
	require.NoError(t, err)

	tokens := make([]string, 3)
	for i := range tokens {
		tokens[i], _, err = svc.CreateSession(ctx, user.ID)
		require.NoError(t, err)
	}
	otherToken, _, err := svc.CreateSession(ctx, other.ID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUser(ctx, user.ID))

	for _, token := range tokens {
		_, err := svc.VerifySession(ctx, token)
		assert.ErrorIs(t, err, domain.ErrInvalidSession)
	}

	_, err = svc.VerifySession(ctx, otherToken)
	assert.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteUser(ctx, user.ID), domain.ErrUserNotFound)
}

func TestPurgeExpiredSessions(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "alice", "secret1")
	require.NoError(t, err)

	_, _, err = svc.CreateSession(ctx, user.ID)
	require.NoError(t, err)
	clock.Advance(DefaultSessionTTL / 2)
	fresh, _, err := svc.CreateSession(ctx, user.ID)
	require.NoError(t, err)

	clock.Advance(DefaultSessionTTL/2 + time.Second)
	purged, err := svc.PurgeExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	assert.Equal(t, 1, store.SessionCount())

	_, err = svc.VerifySession(ctx, fresh)
	assert.NoError(t, err)
}

func TestWithSessionTTL(t *testing.T) {
	store := domaintest.NewStore()
	clock := clockwork.NewFakeClock()
	svc, err := NewService(store.Users(), store.Sessions(),
		WithClock(clock), WithCost(bcrypt.MinCost), WithSessionTTL(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, svc.SessionTTL())

	_, session, err := svc.CreateSession(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Hour), session.ExpiresAt)
}
