package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
)

const settingsInvalidationChannel = "settings:invalidate"

// Invalidator is the local cache a subscriber drops keys from.
type Invalidator interface {
	Invalidate(key string)
}

// SettingsPublisher publishes changed setting keys.
type SettingsPublisher struct {
	rdb *goredis.Client
}

func NewSettingsPublisher(rdb *goredis.Client) *SettingsPublisher {
	return &SettingsPublisher{rdb: rdb}
}

func (p *SettingsPublisher) PublishInvalidation(ctx context.Context, key string) error {
	if err := p.rdb.Publish(ctx, settingsInvalidationChannel, key).Err(); err != nil {
		return fmt.Errorf("failed to publish settings invalidation: %w", err)
	}
	return nil
}

// SettingsSubscriber drops cached settings when another replica writes them.
type SettingsSubscriber struct {
	rdb   *goredis.Client
	cache Invalidator
}

func NewSettingsSubscriber(rdb *goredis.Client, cache Invalidator) *SettingsSubscriber {
	return &SettingsSubscriber{rdb: rdb, cache: cache}
}

// Start blocks until ctx is cancelled or the subscription closes. ready, if
// non-nil, is closed once the subscription is confirmed.
func (s *SettingsSubscriber) Start(ctx context.Context, ready chan<- struct{}) error {
	pubsub := s.rdb.Subscribe(ctx, settingsInvalidationChannel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", settingsInvalidationChannel, err)
	}
	if ready != nil {
		close(ready)
	}
	slog.Info("Listening for settings invalidations", "channel", settingsInvalidationChannel)

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handleInvalidation(msg.Payload)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *SettingsSubscriber) handleInvalidation(key string) {
	if key == "" {
		slog.Warn("Empty settings invalidation message")
		return
	}

	s.cache.Invalidate(key)
	slog.Debug("Settings cache invalidated via pub/sub", "key", key)
}
