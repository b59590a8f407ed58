package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddnet-tracker/internal/ddnet"
	"ddnet-tracker/internal/domain"
	"ddnet-tracker/internal/domain/domaintest"
	apperrors "ddnet-tracker/internal/errors"
)

type fakeFinder struct {
	online []ddnet.PlayerStatus
	list   *ddnet.ServerList
	err    error
	asked  [][]string
}

// LocatePlayersByNames runs the real matcher when a server list is set.
func (f *fakeFinder) LocatePlayersByNames(ctx context.Context, names []string) ([]ddnet.PlayerStatus, error) {
	if f.list == nil {
		return f.FindPlayerByNames(ctx, names)
	}
	f.asked = append(f.asked, names)
	if f.err != nil {
		return nil, f.err
	}
	return ddnet.LocatePlayers(f.list, names), nil
}

func (f *fakeFinder) FindPlayerByNames(_ context.Context, names []string) ([]ddnet.PlayerStatus, error) {
	f.asked = append(f.asked, names)
	if f.err != nil {
		return nil, f.err
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var out []ddnet.PlayerStatus
	for _, p := range f.online {
		if wanted[p.Player] {
			out = append(out, p)
		}
	}
	return out, nil
}

func newTestService() (*Service, *domaintest.Store, *fakeFinder) {
	store := domaintest.NewStore()
	finder := &fakeFinder{}
	return NewService(store.TrackedPlayers(), finder), store, finder
}

func requireType(t *testing.T, err error, want apperrors.ErrorType) {
	t.Helper()
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, want, appErr.Type)
}

func TestAdd(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	user := uuid.New()

	p, err := svc.Add(ctx, user, "  Foo  ")
	require.NoError(t, err)
	assert.Equal(t, "Foo", p.PlayerName)
	assert.True(t, p.IsActive)
	assert.True(t, p.NotificationEnabled)
}

func TestAdd_RejectsDuplicateWithoutNewRow(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	user := uuid.New()

	_, err := svc.Add(ctx, user, "Foo")
	require.NoError(t, err)

	_, err = svc.Add(ctx, user, "Foo")
	assert.ErrorIs(t, err, domain.ErrPlayerAlreadyTracked)

	players, err := svc.List(ctx, user)
	require.NoError(t, err)
	assert.Len(t, players, 1)

	// Another user may track the same name.
	_, err = svc.Add(ctx, uuid.New(), "Foo")
	assert.NoError(t, err)
}

func TestAdd_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Add(ctx, uuid.New(), "   ")
	requireType(t, err, apperrors.TypeValidation)

	_, err = svc.Add(ctx, uuid.New(), strings.Repeat("x", MaxNameLength+1))
	requireType(t, err, apperrors.TypeValidation)

	_, err = svc.Add(ctx, uuid.New(), strings.Repeat("ä", MaxNameLength))
	assert.NoError(t, err)
}

func TestClear_ReturnsCount(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	user, other := uuid.New(), uuid.New()

	for _, n := range []string{"a", "b", "c"} {
		_, err := svc.Add(ctx, user, n)
		require.NoError(t, err)
	}
	_, err := svc.Add(ctx, other, "a")
	require.NoError(t, err)

	n, err := svc.Clear(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = svc.Clear(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, n)

	remaining, err := svc.List(ctx, other)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestUpdate(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	user := uuid.New()

	p, err := svc.Add(ctx, user, "Foo")
	require.NoError(t, err)

	inactive := false
	updated, err := svc.Update(ctx, user, p.ID, domain.PlayerUpdate{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.True(t, updated.NotificationEnabled)

	_, err = svc.Update(ctx, user, p.ID, domain.PlayerUpdate{})
	requireType(t, err, apperrors.TypeValidation)

	_, err = svc.Update(ctx, uuid.New(), p.ID, domain.PlayerUpdate{IsActive: &inactive})
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestDelete_OnlyOwner(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	user := uuid.New()

	p, err := svc.Add(ctx, user, "Foo")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, uuid.New(), p.ID), domain.ErrPlayerNotFound)
	require.NoError(t, svc.Delete(ctx, user, p.ID))
	assert.ErrorIs(t, svc.Delete(ctx, user, p.ID), domain.ErrPlayerNotFound)
}

func TestStoreErrorsAreWrapped(t *testing.T) {
	svc, store, _ := newTestService()
	store.Err = errors.New("connection reset")
	ctx := context.Background()

	_, err := svc.Add(ctx, uuid.New(), "Foo")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrPlayerAlreadyTracked)
	assert.ErrorIs(t, err, store.Err)
}

func TestOnlineStatus(t *testing.T) {
	svc, _, finder := newTestService()
	ctx := context.Background()
	user := uuid.New()

	for _, n := range []string{"Foo", "Bar", "Paused"} {
		_, err := svc.Add(ctx, user, n)
		require.NoError(t, err)
	}
	players, err := svc.List(ctx, user)
	require.NoError(t, err)
	inactive := false
	_, err = svc.Update(ctx, user, players[2].ID, domain.PlayerUpdate{IsActive: &inactive})
	require.NoError(t, err)

	finder.online = []ddnet.PlayerStatus{
		{Player: "Foo", Server: "A", Map: "Kobra 4", IsOnline: true},
		{Player: "Foo", Server: "B", IsOnline: true},
		{Player: "Paused", Server: "C", IsOnline: true},
	}

	statuses, err := svc.OnlineStatus(ctx, user)
	require.NoError(t, err)

	require.Len(t, statuses, 2)
	assert.Equal(t, "Foo", statuses[0].Player)
	assert.True(t, statuses[0].IsOnline)
	assert.Equal(t, "A", statuses[0].Server)
	assert.Equal(t, ddnet.PlayerStatus{Player: "Bar"}, statuses[1])

	assert.Equal(t, [][]string{{"Foo", "Bar"}}, finder.asked)
}

func TestOnlineStatus_PlayersSharingAServer(t *testing.T) {
	svc, _, finder := newTestService()
	ctx := context.Background()
	user := uuid.New()
	for _, name := range []string{"Foo", "Bar", "Baz"} {
		_, err := svc.Add(ctx, user, name)
		require.NoError(t, err)
	}
	finder.list = &ddnet.ServerList{Servers: []ddnet.Server{{
		Info: &ddnet.ServerInfo{
			Name:    "DDNet GER1",
			Clients: []ddnet.PlayerClient{{Name: "Bar"}, {Name: "Foo"}},
		},
	}}}

	statuses, err := svc.OnlineStatus(ctx, user)
	require.NoError(t, err)

	require.Len(t, statuses, 3)
	assert.True(t, statuses[0].IsOnline, "Foo")
	assert.True(t, statuses[1].IsOnline, "Bar")
	assert.Equal(t, "DDNet GER1", statuses[0].Server)
	assert.Equal(t, "DDNet GER1", statuses[1].Server)
	assert.False(t, statuses[2].IsOnline, "Baz")
}

func TestOnlineStatus_NothingActiveSkipsLookup(t *testing.T) {
	svc, _, finder := newTestService()

	statuses, err := svc.OnlineStatus(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, statuses)
	assert.Empty(t, finder.asked)
}

func TestOnlineStatus_UpstreamFailure(t *testing.T) {
	svc, _, finder := newTestService()
	ctx := context.Background()
	user := uuid.New()
	_, err := svc.Add(ctx, user, "Foo")
	require.NoError(t, err)
	finder.err = ddnet.ErrUpstream

	_, err = svc.OnlineStatus(ctx, user)
	requireType(t, err, apperrors.TypeExternal)
	assert.ErrorIs(t, err, ddnet.ErrUpstream)
}

func TestLookup(t *testing.T) {
	svc, _, finder := newTestService()
	finder.online = []ddnet.PlayerStatus{{Player: "Foo", IsOnline: true}}

	found, err := svc.Lookup(context.Background(), []string{" Foo", "", "Bar "})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, [][]string{{"Foo", "Bar"}}, finder.asked)

	_, err = svc.Lookup(context.Background(), []string{" ", ""})
	requireType(t, err, apperrors.TypeValidation)
}
