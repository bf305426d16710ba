package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/irfndi/celebrum-patterns/internal/models"
	"github.com/irfndi/celebrum-patterns/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// SessionCacheStats tracks cache performance metrics
type SessionCacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Deletes int64 `json:"deletes"`
	mu      sync.RWMutex
}

// RedisSessionCache stores each session's selection in Redis. Entries expire
// after the configured TTL; every Set refreshes it.
type RedisSessionCache struct {
	redis  *redis.Client
	ttl    time.Duration
	stats  *SessionCacheStats
	prefix string
	logger *logrus.Logger
}

// NewRedisSessionCache creates a new Redis-based session cache
func NewRedisSessionCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisSessionCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisSessionCache{
		redis:  redisClient,
		ttl:    ttl,
		stats:  &SessionCacheStats{},
		prefix: "pattern_session:",
		logger: logger,
	}
}

func (c *RedisSessionCache) key(sessionID string) string {
	return c.prefix + sessionID
}

// Get returns the stored selection for sessionID. A missing entry is
// reported as (nil, false, nil).
func (c *RedisSessionCache) Get(ctx context.Context, sessionID string) (*models.Selection, bool, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.GetCacheTracer(), "session_cache.get")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	data, err := c.redis.Get(ctx, c.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		c.recordMiss()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, false, nil
	}
	if err != nil {
		c.recordMiss()
		telemetry.RecordError(span, err)
		return nil, false, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	var sel models.Selection
	if err := json.Unmarshal([]byte(data), &sel); err != nil {
		c.recordMiss()
		c.logger.WithError(err).WithField("session_id", sessionID).Warn("Dropping unreadable session entry")
		telemetry.RecordError(span, err)
		return nil, false, fmt.Errorf("decode session %s: %w", sessionID, err)
	}

	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()
	span.SetAttributes(attribute.Bool("cache.hit", true))

	return &sel, true, nil
}

// Set stores sel under its session id and refreshes the TTL.
func (c *RedisSessionCache) Set(ctx context.Context, sel models.Selection) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.GetCacheTracer(), "session_cache.set")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sel.SessionID))

	if sel.SessionID == "" {
		return errors.New("session id is required")
	}
	if sel.UpdatedAt.IsZero() {
		sel.UpdatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sel.SessionID, err)
	}
	if err := c.redis.Set(ctx, c.key(sel.SessionID), data, c.ttl).Err(); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("set session %s: %w", sel.SessionID, err)
	}

	c.stats.mu.Lock()
	c.stats.Sets++
	c.stats.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"session_id": sel.SessionID,
		"reference":  fmt.Sprintf("[%d, %d)", sel.ReferenceStart, sel.ReferenceEnd),
		"ttl":        c.ttl.String(),
	}).Debug("Stored session selection")
	return nil
}

// Delete removes the selection for sessionID and reports whether one existed.
func (c *RedisSessionCache) Delete(ctx context.Context, sessionID string) (bool, error) {
	n, err := c.redis.Del(ctx, c.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	if n > 0 {
		c.stats.mu.Lock()
		c.stats.Deletes++
		c.stats.mu.Unlock()
	}
	return n > 0, nil
}

// GetStats returns current cache statistics
func (c *RedisSessionCache) GetStats() SessionCacheStats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	return SessionCacheStats{
		Hits:    c.stats.Hits,
		Misses:  c.stats.Misses,
		Sets:    c.stats.Sets,
		Deletes: c.stats.Deletes,
	}
}

// LogStats logs current cache performance statistics
func (c *RedisSessionCache) LogStats() {
	stats := c.GetStats()
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}

	c.logger.WithFields(logrus.Fields{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"sets":     stats.Sets,
		"deletes":  stats.Deletes,
		"hit_rate": fmt.Sprintf("%.2f%%", hitRate),
	}).Info("Session cache stats")
}

func (c *RedisSessionCache) recordMiss() {
	c.stats.mu.Lock()
	c.stats.Misses++
	c.stats.mu.Unlock()
}
