// internal/chat/cache.go
// Redis-backed unread-count cache. The member row stays the source of truth;
// this is only a projection invalidated on every write that can change the
// count.

package chat

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

type UnreadCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewUnreadCache wraps an optional Redis client. A nil client disables
// caching; every method degrades to a miss.
func NewUnreadCache(client *redis.Client, ttl time.Duration) *UnreadCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &UnreadCache{client: client, ttl: ttl}
}

func unreadKey(convID, userID int64) string {
	return fmt.Sprintf("chat:unread:%d:%d", convID, userID)
}

func (c *UnreadCache) Get(ctx context.Context, convID, userID int64) (int, bool) {
	if c == nil || c.client == nil {
		return 0, false
	}
	val, err := c.client.Get(ctx, unreadKey(convID, userID)).Result()
	if err != nil {
		unreadCacheLookups.WithLabelValues("miss").Inc()
		return 0, false
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, false
	}
	unreadCacheLookups.WithLabelValues("hit").Inc()
	return count, true
}

func (c *UnreadCache) Set(ctx context.Context, convID, userID int64, count int) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Set(ctx, unreadKey(convID, userID), strconv.Itoa(count), c.ttl)
}

func (c *UnreadCache) Invalidate(ctx context.Context, convID int64, userIDs ...int64) {
	if c == nil || c.client == nil || len(userIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		keys = append(keys, unreadKey(convID, userID))
	}
	c.client.Del(ctx, keys...)
}
