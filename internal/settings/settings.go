// Package settings fronts the system_settings table with a bounded in-memory
// cache. Entries expire after a TTL and are dropped on every local write; a
// Publisher carries the drop to other replicas.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"ddnet-tracker/internal/domain"
	"ddnet-tracker/internal/metrics"
)

const DefaultCacheTTL = 5 * time.Minute

// Publisher announces that a setting changed so other replicas can drop it.
type Publisher interface {
	PublishInvalidation(ctx context.Context, key string) error
}

type noopPublisher struct{}

func (noopPublisher) PublishInvalidation(context.Context, string) error { return nil }

type Service struct {
	repo      domain.SettingsRepository
	publisher Publisher
	clock     clockwork.Clock
	metrics   *metrics.CacheMetrics
	ttl       time.Duration

	mu      sync.RWMutex
	entries map[string]entry
	// version moves on every invalidation. A read that started before the
	// move must not repopulate the cache.
	version uint64
}

type entry struct {
	value     string
	expiresAt time.Time
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

func WithMetrics(m *metrics.CacheMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo domain.SettingsRepository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		publisher: noopPublisher{},
		clock:     clockwork.NewRealClock(),
		ttl:       DefaultCacheTTL,
		entries:   make(map[string]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the value stored under key, or def when the key was never set.
// Store failures are logged and also yield def.
func (s *Service) Get(ctx context.Context, key, def string) string {
	v, version, ok := s.cached(key)
	if ok {
		s.hit()
		return v
	}
	s.miss()

	value, err := s.repo.Get(ctx, key)
	if errors.Is(err, domain.ErrSettingNotFound) {
		return def
	}
	if err != nil {
		slog.Error("Failed to load setting", "key", key, "error", err)
		return def
	}

	s.put(key, value, version)
	return value
}

// GetMany resolves several keys, each falling back to its entry in defaults.
func (s *Service) GetMany(ctx context.Context, defaults map[string]string) map[string]string {
	out := make(map[string]string, len(defaults))
	for key, def := range defaults {
		out[key] = s.Get(ctx, key, def)
	}
	return out
}

// Set writes value through to the store and drops the cached entry here and,
// via the publisher, on other replicas. updatedBy may be uuid.Nil.
func (s *Service) Set(ctx context.Context, key, value string, updatedBy uuid.UUID) error {
	if err := s.repo.Upsert(ctx, key, value, updatedBy); err != nil {
		return fmt.Errorf("failed to save setting %q: %w", key, err)
	}

	s.invalidate(key, "local")

	if err := s.publisher.PublishInvalidation(ctx, key); err != nil {
		// The write succeeded; other replicas catch up when their entry expires.
		slog.Warn("Failed to publish settings invalidation", "key", key, "error", err)
	}
	return nil
}

func (s *Service) IsRegistrationDisabled(ctx context.Context) bool {
	v := s.Get(ctx, domain.SettingRegistrationDisabled, "false")
	disabled, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("Invalid registration setting, treating as enabled", "value", v)
		return false
	}
	return disabled
}

func (s *Service) SetRegistrationDisabled(ctx context.Context, disabled bool, updatedBy uuid.UUID) error {
	return s.Set(ctx, domain.SettingRegistrationDisabled, strconv.FormatBool(disabled), updatedBy)
}

// Invalidate drops key from the local cache. It is called by the
// cross-replica subscriber.
func (s *Service) Invalidate(key string) {
	s.invalidate(key, "remote")
}

// Clear drops every cached entry.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry)
	s.version++
}

// StartEvictionTimer periodically drops expired entries. The returned
// function stops it.
func (s *Service) StartEvictionTimer(interval time.Duration) func() {
	ticker := s.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if n := s.evictExpired(); n > 0 {
					slog.Debug("Evicted expired settings cache entries", "count", n, "remaining", s.size())
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// cached returns the live entry for key along with the cache version the
// caller must hand back to put.
func (s *Service) cached(key string) (string, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || !s.clock.Now().Before(e.expiresAt) {
		return "", s.version, false
	}
	return e.value, s.version, true
}

// put stores value unless an invalidation happened since version was read.
func (s *Service) put(key, value string, version uint64) {
	if s.ttl <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != version {
		return
	}
	s.entries[key] = entry{value: value, expiresAt: s.clock.Now().Add(s.ttl)}
}

func (s *Service) invalidate(key, source string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.version++
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Invalidations.WithLabelValues(source).Inc()
	}
}

func (s *Service) evictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	evicted := 0
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
			evicted++
		}
	}
	return evicted
}

func (s *Service) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Service) hit() {
	if s.metrics != nil {
		s.metrics.Hits.Inc()
	}
}

func (s *Service) miss() {
	if s.metrics != nil {
		s.metrics.Misses.Inc()
	}
}
