package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AvailabilityCache stores computed slot lists per provider, date and
// duration. It is a derived read cache: every write to a provider's calendar
// bumps the provider's version, which orphans all of its cached entries.
// Reservations never consult it.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewAvailabilityCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *AvailabilityCache {
	return &AvailabilityCache{
		client: client,
		ttl:    ttl,
		log:    log.With(zap.String("cache", "availability")),
	}
}

func versionKey(providerID uuid.UUID) string {
	return fmt.Sprintf("availability:%s:version", providerID)
}

// Entry addresses one slot list under the provider version that was current
// when it was looked up. Writing through an Entry whose version has since been
// bumped lands on an orphaned key, so a list computed from a calendar read
// that raced a reservation is never served.
type Entry struct {
	key string
}

func (c *AvailabilityCache) entry(ctx context.Context, providerID uuid.UUID, date string, duration int) (Entry, error) {
	version, err := c.client.Get(ctx, versionKey(providerID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Entry{}, err
	}
	return Entry{key: fmt.Sprintf("availability:%s:v%d:%s:%d", providerID, version, date, duration)}, nil
}

// Get returns the cached start times (minutes since midnight) and whether
// they were found. On a miss the returned Entry is where the caller stores the
// list it computes next; it must be fetched before reading the calendar.
// Redis failures count as a miss with an unusable Entry.
func (c *AvailabilityCache) Get(ctx context.Context, providerID uuid.UUID, date string, duration int) ([]int, Entry, bool) {
	if c == nil {
		return nil, Entry{}, false
	}

	entry, err := c.entry(ctx, providerID, date, duration)
	if err != nil {
		c.log.Warn("Availability cache unavailable", zap.Error(err))
		return nil, Entry{}, false
	}

	raw, err := c.client.Get(ctx, entry.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, entry, false
	}
	if err != nil {
		c.log.Warn("Availability cache read failed", zap.Error(err), zap.String("key", entry.key))
		return nil, entry, false
	}

	var slots []int
	if err := json.Unmarshal(raw, &slots); err != nil {
		c.log.Warn("Discarding corrupt availability entry", zap.Error(err), zap.String("key", entry.key))
		return nil, entry, false
	}
	return slots, entry, true
}

// Set stores slots under entry. A zero Entry is ignored.
func (c *AvailabilityCache) Set(ctx context.Context, entry Entry, slots []int) {
	if c == nil || entry.key == "" {
		return
	}

	if slots == nil {
		slots = []int{}
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, entry.key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("Availability cache write failed", zap.Error(err), zap.String("key", entry.key))
	}
}

// Invalidate orphans every cached entry of the provider.
func (c *AvailabilityCache) Invalidate(ctx context.Context, providerID uuid.UUID) {
	if c == nil {
		return
	}
	if err := c.client.Incr(ctx, versionKey(providerID)).Err(); err != nil {
		c.log.Warn("Availability cache invalidation failed",
			zap.Error(err),
			zap.String("provider_id", providerID.String()),
		)
	}
}
