package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"consorcio_bot/internal/core"
	"consorcio_bot/internal/logger"
)

// Manager reconciles session snapshot freshness between the cache and the
// persistent store. Every public operation degrades gracefully instead of
// propagating storage errors: the caller always gets a usable result.
//
// Concurrent read-modify-write sequences for the same number are not
// synchronized here; UpdateSession is last-writer-wins at whole-snapshot
// granularity. Callers that need per-user ordering must serialize their own
// message processing.
type Manager struct {
	cache        core.CacheStore
	store        core.LeadStore
	historyLimit int

	mu                sync.Mutex
	totalMessages     int64
	totalResponseTime float64
	requestCount      int64
}

// Stats is the aggregate view returned by Manager.Stats.
type Stats struct {
	ActiveSessions         int     `json:"active_sessions"`
	ActiveHistories        int     `json:"active_histories"`
	MemoryUsed             string  `json:"memory_used"`
	AvgResponseTimeMS      float64 `json:"avg_response_time_ms"`
	TotalMessagesProcessed int64   `json:"total_messages_processed"`
}

// NewManager creates a session manager over the given stores.
func NewManager(cache core.CacheStore, store core.LeadStore, historyLimit int) *Manager {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &Manager{
		cache:        cache,
		store:        store,
		historyLimit: historyLimit,
	}
}

// GetOrCreateSession produces a ready-to-use snapshot for the number with
// minimum latency, hiding whether it came from the cache or the persistent
// store. It never fails: under total backing-store outage it returns a
// fresh default snapshot so the conversation can continue.
func (m *Manager) GetOrCreateSession(ctx context.Context, whatsappNumber string) *core.SessionSnapshot {
	start := time.Now()
	defer func() {
		m.recordResponseTime(time.Since(start))
	}()

	snap, err := m.cache.GetSession(ctx, whatsappNumber)
	if err != nil {
		// Unreachable cache and corrupt payloads are both treated as a
		// miss; the reload path repopulates the entry.
		logger.Warn().Err(err).Str("whatsapp_number", whatsappNumber).Msg("Cache lookup failed, falling through to store")
		snap = nil
	}

	if snap != nil {
		m.mergeHistory(ctx, snap)
		if err := m.cache.RefreshSessionTTL(ctx, whatsappNumber); err != nil {
			logger.Warn().Err(err).Str("whatsapp_number", whatsappNumber).Msg("Failed to refresh session TTL")
		}
		logger.Debug().Str("whatsapp_number", whatsappNumber).Msg("Session restored from cache")
		return snap
	}

	snap, err = m.loadFromStore(ctx, whatsappNumber)
	if err != nil {
		logger.Error().Err(err).Str("whatsapp_number", whatsappNumber).Msg("Failed to load session from store, using fallback")
		return m.fallbackSession(ctx, whatsappNumber)
	}
	return snap
}

// loadFromStore builds a snapshot from the persistent store (or defaults),
// replays recent history into the cache and persists the snapshot there.
func (m *Manager) loadFromStore(ctx context.Context, whatsappNumber string) (*core.SessionSnapshot, error) {
	lead, err := m.store.FindLead(ctx, whatsappNumber)
	if err != nil {
		return nil, err
	}

	var snap *core.SessionSnapshot
	if lead != nil {
		snap = core.SnapshotFromLead(lead)
		logger.Info().Str("whatsapp_number", whatsappNumber).Msg("Existing lead loaded")
	} else {
		snap = core.NewSessionSnapshot(whatsappNumber)
		logger.Info().Str("whatsapp_number", whatsappNumber).Msg("New lead detected")
	}

	messages, err := m.store.ListRecentMessages(ctx, whatsappNumber, m.historyLimit)
	if err != nil {
		return nil, err
	}

	if len(messages) > 0 {
		// Replay durable history into the cache list so subsequent turns
		// read it from Redis.
		for _, msg := range messages {
			if err := m.cache.AppendHistory(ctx, whatsappNumber, msg.Role, msg.Content); err != nil {
				logger.Warn().Err(err).Str("whatsapp_number", whatsappNumber).Msg("Failed to replay history entry into cache")
			}
		}

		lines := make([]string, len(messages))
		for i, msg := range messages {
			lines[i] = msg.Role + ": " + msg.Content
		}
		snap.History = strings.Join(lines, "\n")
		logger.Info().Int("messages", len(messages)).Str("whatsapp_number", whatsappNumber).Msg("History loaded from store")
	}

	if err := m.cache.SetSession(ctx, snap); err != nil {
		logger.Warn().Err(err).Str("whatsapp_number", whatsappNumber).Msg("Failed to cache session snapshot")
	}
	return snap, nil
}

// fallbackSession is the last line of defense: a minimal default snapshot,
// cached best-effort. It never fails.
func (m *Manager) fallbackSession(ctx context.Context, whatsappNumber string) *core.SessionSnapshot {
	snap := core.NewSessionSnapshot(whatsappNumber)
	if err := m.cache.SetSession(ctx, snap); err != nil {
		logger.Warn().Err(err).Str("whatsapp_number", whatsappNumber).Msg("Failed to cache fallback session")
	}
	logger.Warn().Str("whatsapp_number", whatsappNumber).Msg("Fallback session created")
	return snap
}

// mergeHistory loads the cached recent-message list into the snapshot's
// contextual history text.
func (m *Manager) mergeHistory(ctx context.Context, snap *core.SessionSnapshot) {
	entries, err := m.cache.History(ctx, snap.WhatsAppNumber, m.historyLimit)
	if err != nil {
		logger.Warn().Err(err).Str("whatsapp_number", snap.WhatsAppNumber).Msg("Failed to load cached history")
		return
	}
	if len(entries) == 0 {
		return
	}

	lines := make([]string, len(entries))
	for i, entry := range entries {
		lines[i] = entry.Type + ": " + entry.Content
	}
	snap.History = strings.Join(lines, "\n")
}

// UpdateSession overwrites the cached snapshot and refreshes its TTL.
// Last-writer-wins: no merge with concurrent updates.
func (m *Manager) UpdateSession(ctx context.Context, snap *core.SessionSnapshot) {
	if err := m.cache.SetSession(ctx, snap); err != nil {
		logger.Error().Err(err).Str("whatsapp_number", snap.WhatsAppNumber).Msg("Failed to update session snapshot")
	}
}

// AddMessageToHistory appends one message to the cached recent-message
// list. Independent of the snapshot TTL.
func (m *Manager) AddMessageToHistory(ctx context.Context, whatsappNumber, role, content string) {
	if err := m.cache.AppendHistory(ctx, whatsappNumber, role, content); err != nil {
		logger.Error().Err(err).Str("whatsapp_number", whatsappNumber).Msg("Failed to append message to history")
		return
	}
	m.mu.Lock()
	m.totalMessages++
	m.mu.Unlock()
}

// GetConversationHistory renders up to limit most recent cached messages as
// "{role}: {content}" lines, oldest first. Empty string when there are none.
func (m *Manager) GetConversationHistory(ctx context.Context, whatsappNumber string, limit int) string {
	entries, err := m.cache.History(ctx, whatsappNumber, limit)
	if err != nil {
		logger.Error().Err(err).Str("whatsapp_number", whatsappNumber).Msg("Failed to read conversation history")
		return ""
	}
	if len(entries) == 0 {
		return ""
	}

	lines := make([]string, len(entries))
	for i, entry := range entries {
		lines[i] = entry.Type + ": " + entry.Content
	}
	return strings.Join(lines, "\n")
}

// RemoveSession deletes the cached snapshot. Idempotent; reports whether a
// snapshot was actually removed.
func (m *Manager) RemoveSession(ctx context.Context, whatsappNumber string) bool {
	removed, err := m.cache.DeleteSession(ctx, whatsappNumber)
	if err != nil {
		logger.Error().Err(err).Str("whatsapp_number", whatsappNumber).Msg("Failed to remove session")
		return false
	}
	if removed {
		logger.Info().Str("whatsapp_number", whatsappNumber).Msg("Session removed from cache")
	}
	return removed
}

// Stats returns aggregate session statistics. Cache-wide counters are
// best-effort: on cache failure the local counters are still reported.
func (m *Manager) Stats(ctx context.Context) Stats {
	m.mu.Lock()
	stats := Stats{
		TotalMessagesProcessed: m.totalMessages,
	}
	if m.requestCount > 0 {
		stats.AvgResponseTimeMS = m.totalResponseTime / float64(m.requestCount)
	}
	m.mu.Unlock()

	cacheStats, err := m.cache.Stats(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read cache stats")
		stats.MemoryUsed = "N/A"
		return stats
	}
	stats.ActiveSessions = cacheStats.ActiveSessions
	stats.ActiveHistories = cacheStats.ActiveHistories
	stats.MemoryUsed = cacheStats.MemoryUsed
	return stats
}

func (m *Manager) recordResponseTime(elapsed time.Duration) {
	ms := float64(elapsed.Microseconds()) / 1000.0
	m.mu.Lock()
	m.requestCount++
	m.totalResponseTime += ms
	m.mu.Unlock()

	if elapsed > time.Second {
		logger.Warn().Float64("response_time_ms", ms).Msg("Slow session lookup")
	}
}
