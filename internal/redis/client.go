// Package redis connects to Redis and carries settings cache invalidations
// between replicas over pub/sub.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
)

// NewClient parses redisURL (e.g. "redis://localhost:6379/0") and verifies
// the connection with a ping.
func NewClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	slog.Info("Redis connected", "addr", opts.Addr, "db", opts.DB)
	return client, nil
}

// Health reports the redis connection state in the same shape as the
// database health map.
func Health(ctx context.Context, client *goredis.Client) map[string]string {
	stats := make(map[string]string)
	if err := client.Ping(ctx).Err(); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("redis down: %v", err)
		return stats
	}

	stats["status"] = "up"
	poolStats := client.PoolStats()
	stats["total_connections"] = fmt.Sprint(poolStats.TotalConns)
	stats["idle_connections"] = fmt.Sprint(poolStats.IdleConns)
	return stats
}
