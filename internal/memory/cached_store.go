package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultCacheTTL = 24 * time.Hour

	cacheTracerName = "salesbot.internal.memory.cache"
)

// CachedStore is a read-through Redis cache in front of a durable Store.
// Cached data is advisory: dropping a key only costs a round trip to the
// inner store on the next read.
type CachedStore struct {
	inner  Store
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewCachedStore wraps inner with a Redis cache.
func NewCachedStore(inner Store, redisClient *redis.Client, ttl time.Duration) *CachedStore {
	if inner == nil {
		panic("memory: inner store cannot be nil")
	}
	if redisClient == nil {
		panic("memory: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedStore{
		inner:  inner,
		redis:  redisClient,
		ttl:    ttl,
		tracer: otel.Tracer(cacheTracerName),
	}
}

func historyKey(conversationID string) string {
	return fmt.Sprintf("memcache:history:%s", conversationID)
}

func latestKey(conversationID, category string) string {
	return fmt.Sprintf("memcache:latest:%s:%s", conversationID, category)
}

// Append writes through to the durable store and invalidates the history cache.
func (s *CachedStore) Append(ctx context.Context, conversationID string, msg Message) error {
	ctx, span := s.tracer.Start(ctx, "memory.cache.append")
	defer span.End()

	if err := s.inner.Append(ctx, conversationID, msg); err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.redis.Del(ctx, historyKey(conversationID)).Err(); err != nil {
		// Cache invalidation failure is tolerable; the TTL bounds staleness.
		span.RecordError(err)
	}
	return nil
}

// GetRecent serves unfiltered history reads from Redis when possible.
func (s *CachedStore) GetRecent(ctx context.Context, conversationID string, limit int, filter MessageFilter) ([]Message, error) {
	ctx, span := s.tracer.Start(ctx, "memory.cache.get_recent")
	defer span.End()

	// Filtered reads skip the cache; the cached blob is the plain tail.
	if filter.Role != "" {
		return s.inner.GetRecent(ctx, conversationID, limit, filter)
	}

	key := historyKey(conversationID)
	if data, err := s.redis.Get(ctx, key).Bytes(); err == nil {
		var cached cachedHistory
		if err := json.Unmarshal(data, &cached); err == nil && cached.Limit >= limit {
			messages := cached.Messages
			if len(messages) > limit {
				messages = messages[len(messages)-limit:]
			}
			return messages, nil
		}
	}

	messages, err := s.inner.GetRecent(ctx, conversationID, limit, filter)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if data, err := json.Marshal(cachedHistory{Limit: limit, Messages: messages}); err == nil {
		if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
			span.RecordError(err)
		}
	}
	return messages, nil
}

type cachedHistory struct {
	Limit    int       `json:"limit"`
	Messages []Message `json:"messages"`
}

// SetValue writes through and refreshes the latest-entry cache for the category.
func (s *CachedStore) SetValue(ctx context.Context, conversationID, key, value, category string) error {
	ctx, span := s.tracer.Start(ctx, "memory.cache.set_value")
	defer span.End()

	if err := s.inner.SetValue(ctx, conversationID, key, value, category); err != nil {
		span.RecordError(err)
		return err
	}
	entry := Entry{Key: key, Category: category, Value: value, UpdatedAt: time.Now().UTC()}
	if data, err := json.Marshal(entry); err == nil {
		if err := s.redis.Set(ctx, latestKey(conversationID, category), data, s.ttl).Err(); err != nil {
			span.RecordError(err)
		}
	}
	return nil
}

// GetLatest serves category lookups from Redis when possible.
func (s *CachedStore) GetLatest(ctx context.Context, conversationID, category string) (*Entry, error) {
	ctx, span := s.tracer.Start(ctx, "memory.cache.get_latest")
	defer span.End()

	if data, err := s.redis.Get(ctx, latestKey(conversationID, category)).Bytes(); err == nil {
		var entry Entry
		if err := json.Unmarshal(data, &entry); err == nil {
			return &entry, nil
		}
	}

	entry, err := s.inner.GetLatest(ctx, conversationID, category)
	if err != nil {
		if err != ErrNotFound {
			span.RecordError(err)
		}
		return nil, err
	}
	if data, err := json.Marshal(entry); err == nil {
		if err := s.redis.Set(ctx, latestKey(conversationID, category), data, s.ttl).Err(); err != nil {
			span.RecordError(err)
		}
	}
	return entry, nil
}

// GetAll always hits the durable store; full scans are rare and not worth caching.
func (s *CachedStore) GetAll(ctx context.Context, conversationID string, filter EntryFilter) ([]Entry, error) {
	return s.inner.GetAll(ctx, conversationID, filter)
}

// Delete writes through and drops the latest-entry cache for the category.
func (s *CachedStore) Delete(ctx context.Context, conversationID, key, category string) error {
	ctx, span := s.tracer.Start(ctx, "memory.cache.delete")
	defer span.End()

	if err := s.inner.Delete(ctx, conversationID, key, category); err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.redis.Del(ctx, latestKey(conversationID, category)).Err(); err != nil {
		span.RecordError(err)
	}
	return nil
}

var _ Store = (*CachedStore)(nil)
