package settings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddnet-tracker/internal/domain"
	"ddnet-tracker/internal/domain/domaintest"
	"ddnet-tracker/internal/metrics"
)

// countingRepo counts store reads so tests can tell cache hits from misses.
type countingRepo struct {
	domain.SettingsRepository
	mu    sync.Mutex
	reads int
}

func (r *countingRepo) Get(ctx context.Context, key string) (string, error) {
	r.mu.Lock()
	r.reads++
	r.mu.Unlock()
	return r.SettingsRepository.Get(ctx, key)
}

func (r *countingRepo) Reads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

// stallingRepo holds its first read open until resume is closed, after
// signalling fetched.
type stallingRepo struct {
	domain.SettingsRepository
	once    sync.Once
	fetched chan struct{}
	resume  chan struct{}
}

func (r *stallingRepo) Get(ctx context.Context, key string) (string, error) {
	value, err := r.SettingsRepository.Get(ctx, key)
	r.once.Do(func() {
		close(r.fetched)
		<-r.resume
	})
	return value, err
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (p *recordingPublisher) PublishInvalidation(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return p.err
}

func newTestService(t *testing.T, opts ...Option) (*Service, *domaintest.Store, *countingRepo, *clockwork.FakeClock) {
	t.Helper()

	store := domaintest.NewStore()
	repo := &countingRepo{SettingsRepository: store.Settings()}
	clock := clockwork.NewFakeClock()
	svc := NewService(repo, append([]Option{WithClock(clock), WithTTL(time.Minute)}, opts...)...)
	return svc, store, repo, clock
}

func TestGet_DefaultWhenUnset(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	assert.Equal(t, "fallback", svc.Get(context.Background(), "missing", "fallback"))
}

func TestGet_DefaultOnStoreError(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	store.Err = errors.New("connection refused")

	assert.Equal(t, "fallback", svc.Get(context.Background(), "any", "fallback"))
}

func TestGet_CachesWithinTTL(t *testing.T) {
	svc, store, repo, clock := newTestService(t)
	ctx := context.Background()
	require.NoError(t, store.Settings().Upsert(ctx, "k", "v1", uuid.Nil))

	assert.Equal(t, "v1", svc.Get(ctx, "k", ""))
	assert.Equal(t, "v1", svc.Get(ctx, "k", ""))
	assert.Equal(t, 1, repo.Reads())

	// Writes that bypass the service are only seen after the TTL.
	require.NoError(t, store.Settings().Upsert(ctx, "k", "v2", uuid.Nil))
	assert.Equal(t, "v1", svc.Get(ctx, "k", ""))

	clock.Advance(time.Minute)
	assert.Equal(t, "v2", svc.Get(ctx, "k", ""))
	assert.Equal(t, 2, repo.Reads())
}

func TestSet_WritesThroughAndBustsCache(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _, repo, _ := newTestService(t, WithPublisher(pub))
	ctx := context.Background()
	admin := uuid.New()

	assert.Equal(t, "a", svc.Get(ctx, "k", "a"))
	require.NoError(t, svc.Set(ctx, "k", "b", admin))
	assert.Equal(t, "b", svc.Get(ctx, "k", "a"))

	assert.Equal(t, 2, repo.Reads())
	assert.Equal(t, []string{"k"}, pub.keys)
}

func TestSet_DuringSlowReadLeavesNoStaleEntry(t *testing.T) {
	store := domaintest.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Settings().Upsert(ctx, "k", "old", uuid.Nil))
	repo := &stallingRepo{
		SettingsRepository: store.Settings(),
		fetched:            make(chan struct{}),
		resume:             make(chan struct{}),
	}
	svc := NewService(repo, WithClock(clockwork.NewFakeClock()), WithTTL(time.Minute))

	done := make(chan string)
	go func() { done <- svc.Get(ctx, "k", "") }()

	<-repo.fetched
	require.NoError(t, svc.Set(ctx, "k", "new", uuid.Nil))
	close(repo.resume)
	assert.Equal(t, "old", <-done, "the racing read saw the old row")

	assert.Equal(t, "new", svc.Get(ctx, "k", ""))
}

func TestSet_StoreErrorIsReturned(t *testing.T) {
	pub := &recordingPublisher{}
	svc, store, _, _ := newTestService(t, WithPublisher(pub))
	store.Err = errors.New("disk full")

	err := svc.Set(context.Background(), "k", "v", uuid.Nil)
	require.Error(t, err)
	assert.Empty(t, pub.keys)
}

func TestSet_PublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("redis down")}
	svc, _, _, _ := newTestService(t, WithPublisher(pub))
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "k", "v", uuid.Nil))
	assert.Equal(t, "v", svc.Get(ctx, "k", ""))
}

func TestInvalidate_DropsEntry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCacheMetrics(reg)
	svc, store, repo, _ := newTestService(t, WithMetrics(m))
	ctx := context.Background()
	require.NoError(t, store.Settings().Upsert(ctx, "k", "v1", uuid.Nil))

	svc.Get(ctx, "k", "")
	require.NoError(t, store.Settings().Upsert(ctx, "k", "v2", uuid.Nil))
	svc.Invalidate("k")

	assert.Equal(t, "v2", svc.Get(ctx, "k", ""))
	assert.Equal(t, 2, repo.Reads())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Invalidations.WithLabelValues("remote")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Misses))
}

func TestClear(t *testing.T) {
	svc, store, repo, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, store.Settings().Upsert(ctx, "a", "1", uuid.Nil))
	require.NoError(t, store.Settings().Upsert(ctx, "b", "2", uuid.Nil))

	svc.GetMany(ctx, map[string]string{"a": "", "b": ""})
	svc.Clear()
	got := svc.GetMany(ctx, map[string]string{"a": "", "b": "", "c": "3"})

	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, got)
	assert.Equal(t, 5, repo.Reads())
}

func TestRegistrationDisabled(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	assert.False(t, svc.IsRegistrationDisabled(ctx))

	require.NoError(t, svc.SetRegistrationDisabled(ctx, true, uuid.New()))
	assert.True(t, svc.IsRegistrationDisabled(ctx))

	v, err := store.Settings().Get(ctx, domain.SettingRegistrationDisabled)
	require.NoError(t, err)
	assert.Equal(t, "true", v)

	require.NoError(t, svc.SetRegistrationDisabled(ctx, false, uuid.New()))
	assert.False(t, svc.IsRegistrationDisabled(ctx))
}

func TestRegistrationDisabled_GarbageValueMeansEnabled(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, store.Settings().Upsert(ctx, domain.SettingRegistrationDisabled, "maybe", uuid.Nil))

	assert.False(t, svc.IsRegistrationDisabled(ctx))
}

func TestStartEvictionTimer(t *testing.T) {
	svc, store, _, clock := newTestService(t)
	ctx := context.Background()
	require.NoError(t, store.Settings().Upsert(ctx, "k", "v", uuid.Nil))
	svc.Get(ctx, "k", "")
	require.Equal(t, 1, svc.size())

	stop := svc.StartEvictionTimer(30 * time.Second)
	defer stop()

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	clock.Advance(30 * time.Second)
	assert.Never(t, func() bool { return svc.size() == 0 }, 50*time.Millisecond, 5*time.Millisecond)

	clock.Advance(30 * time.Second)
	assert.Eventually(t, func() bool { return svc.size() == 0 }, time.Second, 5*time.Millisecond)

	stop()
	stop()
}
