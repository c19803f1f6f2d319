package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"consorcio_bot/internal/core"
	"consorcio_bot/internal/logger"
)

// Cache key prefixes. The layout is shared with other consumers of the
// cache and must stay stable.
const (
	sessionKeyPrefix = "session:"
	historyKeyPrefix = "history:"
)

// RedisCache implements core.CacheStore on top of a Redis client.
type RedisCache struct {
	client       *redis.Client
	sessionTTL   time.Duration
	historyTTL   time.Duration
	historyLimit int
}

// RedisCacheConfig holds the tunables for the cache store.
type RedisCacheConfig struct {
	URL          string
	SessionTTL   time.Duration
	HistoryTTL   time.Duration
	HistoryLimit int
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisCacheConfig) (*RedisCache, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client:       client,
		sessionTTL:   cfg.SessionTTL,
		historyTTL:   cfg.HistoryTTL,
		historyLimit: cfg.HistoryLimit,
	}, nil
}

// GetSession retrieves the cached snapshot, returning (nil, nil) on a miss.
func (r *RedisCache) GetSession(ctx context.Context, whatsappNumber string) (*core.SessionSnapshot, error) {
	key := sessionKeyPrefix + whatsappNumber
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session data: %w", err)
	}

	snap, err := core.UnmarshalSnapshot([]byte(data))
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// SetSession overwrites the cached snapshot and resets its TTL.
func (r *RedisCache) SetSession(ctx context.Context, snap *core.SessionSnapshot) error {
	data, err := core.MarshalSnapshot(snap)
	if err != nil {
		return err
	}

	key := sessionKeyPrefix + snap.WhatsAppNumber
	if err := r.client.Set(ctx, key, data, r.sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to set session data: %w", err)
	}
	return nil
}

// DeleteSession removes the cached snapshot and reports whether it existed.
func (r *RedisCache) DeleteSession(ctx context.Context, whatsappNumber string) (bool, error) {
	key := sessionKeyPrefix + whatsappNumber
	removed, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return removed > 0, nil
}

// RefreshSessionTTL slides the snapshot expiry forward.
func (r *RedisCache) RefreshSessionTTL(ctx context.Context, whatsappNumber string) error {
	key := sessionKeyPrefix + whatsappNumber
	if err := r.client.Expire(ctx, key, r.sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh session TTL: %w", err)
	}
	return nil
}

// AppendHistory pushes a message to the front of the recent-message list,
// trims the list to the configured bound and refreshes its TTL.
func (r *RedisCache) AppendHistory(ctx context.Context, whatsappNumber, role, content string) error {
	data, err := core.MarshalHistoryEntry(role, content)
	if err != nil {
		return err
	}

	key := historyKeyPrefix + whatsappNumber
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(r.historyLimit-1))
	pipe.Expire(ctx, key, r.historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

// History returns up to limit most recent messages in chronological order.
// Corrupt list elements are skipped.
func (r *RedisCache) History(ctx context.Context, whatsappNumber string, limit int) ([]core.HistoryEntry, error) {
	key := historyKeyPrefix + whatsappNumber
	raw, err := r.client.LRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	// The list is most-recent-first; walk it backwards to restore
	// chronological order.
	entries := make([]core.HistoryEntry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		entry, err := core.UnmarshalHistoryEntry([]byte(raw[i]))
		if err != nil {
			logger.Warn().Err(err).Str("whatsapp_number", whatsappNumber).Msg("Skipping corrupt history entry")
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Stats counts active session and history keys and reports Redis memory use.
func (r *RedisCache) Stats(ctx context.Context) (core.CacheStats, error) {
	stats := core.CacheStats{MemoryUsed: "N/A"}

	sessions, err := r.client.Keys(ctx, sessionKeyPrefix+"*").Result()
	if err != nil {
		return stats, fmt.Errorf("failed to count session keys: %w", err)
	}
	histories, err := r.client.Keys(ctx, historyKeyPrefix+"*").Result()
	if err != nil {
		return stats, fmt.Errorf("failed to count history keys: %w", err)
	}
	stats.ActiveSessions = len(sessions)
	stats.ActiveHistories = len(histories)

	info, err := r.client.Info(ctx, "memory").Result()
	if err != nil {
		return stats, fmt.Errorf("failed to read redis memory info: %w", err)
	}
	for _, line := range strings.Split(info, "\n") {
		if strings.HasPrefix(line, "used_memory_human:") {
			stats.MemoryUsed = strings.TrimSpace(strings.TrimPrefix(line, "used_memory_human:"))
			break
		}
	}
	return stats, nil
}

// Ping tests the Redis connection.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
