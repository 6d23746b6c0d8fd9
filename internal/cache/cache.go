// Package cache is the two-tier content-addressable store for enrichment
// results. The volatile tier answers repeat lookups within a process
// lifetime; the durable tier survives restarts. The durable store is an
// optimization, never a correctness dependency: any failure there degrades
// silently to a miss.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"finance-enricher/internal/common/errors"
	"finance-enricher/internal/common/logging"
	"finance-enricher/internal/store"
)

// Entry is one cached enrichment result. Immutable once written; replaced
// wholesale on overwrite.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Config holds cache settings.
type Config struct {
	// TTL after which an entry is treated as absent on read. Eviction is
	// lazy, triggered only by access; there is no background sweep.
	TTL time.Duration
}

// DefaultTTL keeps enrichment results for one week.
const DefaultTTL = 7 * 24 * time.Hour

// Cache combines an in-memory tier with a durable key-value store.
type Cache struct {
	ttl     time.Duration
	mem     *gocache.Cache
	durable store.Store
	logger  logging.Logger
}

// New creates a response cache over the given durable store. durable may be
// nil, leaving the cache memory-only.
func New(cfg Config, durable store.Store, logger logging.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Cache{
		ttl: cfg.TTL,
		// Cleanup interval 0: no janitor goroutine, expiry stays lazy.
		mem:     gocache.New(cfg.TTL, 0),
		durable: durable,
		logger:  logger,
	}
}

// Get returns the cached data for key, if present and unexpired. An expired
// entry is evicted from both tiers. A valid durable hit is promoted into the
// volatile tier. Never returns an error: durable-tier unavailability reads
// as absent.
func (c *Cache) Get(ctx context.Context, key Key) (json.RawMessage, bool) {
	if v, found := c.mem.Get(key.String()); found {
		entry := v.(Entry)
		if c.expired(entry) {
			c.evict(ctx, key)
			return nil, false
		}
		return entry.Data, true
	}

	if c.durable == nil {
		return nil, false
	}

	raw, err := c.durable.Get(ctx, key.String())
	if err != nil {
		if err != store.ErrNotFound {
			c.logger.Warn("durable cache read failed, treating as miss",
				logging.Err(errors.CacheUnavailable("get", err)),
				logging.Field{Key: "key", Value: key.String()},
			)
		}
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// Corrupt durable entry: drop it rather than serve garbage.
		c.deleteDurable(ctx, key.String())
		return nil, false
	}

	if c.expired(entry) {
		c.evict(ctx, key)
		return nil, false
	}

	remaining := c.ttl - time.Since(entry.Timestamp)
	c.mem.Set(key.String(), entry, remaining)
	return entry.Data, true
}

// Set writes data under key to both tiers with a fresh timestamp. A durable
// write failure is logged and swallowed; the volatile tier stays
// authoritative for the current process lifetime.
func (c *Cache) Set(ctx context.Context, key Key, data json.RawMessage) {
	entry := Entry{Data: data, Timestamp: time.Now()}
	c.mem.Set(key.String(), entry, c.ttl)

	if c.durable == nil {
		return
	}

	encoded, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("cache entry not serializable, durable tier skipped",
			logging.Err(err), logging.Field{Key: "key", Value: key.String()})
		return
	}

	if err := c.durable.Set(ctx, key.String(), string(encoded)); err != nil {
		c.logger.Warn("durable cache write failed, memory tier remains authoritative",
			logging.Err(errors.CacheUnavailable("set", err)),
			logging.Field{Key: "key", Value: key.String()},
		)
	}
}

// Invalidate removes every entry whose key starts with prefix from both
// tiers. Used to wipe all entries for one reporting period.
func (c *Cache) Invalidate(ctx context.Context, prefix string) {
	for k := range c.mem.Items() {
		if strings.HasPrefix(k, prefix) {
			c.mem.Delete(k)
		}
	}

	if c.durable == nil {
		return
	}

	keys, err := c.durable.Keys(ctx, prefix)
	if err != nil {
		c.logger.Warn("durable cache invalidation failed",
			logging.Err(errors.CacheUnavailable("keys", err)),
			logging.Field{Key: "prefix", Value: prefix},
		)
		return
	}
	if len(keys) == 0 {
		return
	}

	if err := c.durable.Delete(ctx, keys...); err != nil {
		c.logger.Warn("durable cache invalidation failed",
			logging.Err(errors.CacheUnavailable("delete", err)),
			logging.Field{Key: "prefix", Value: prefix},
		)
	}
}

// Clear empties both tiers entirely.
func (c *Cache) Clear(ctx context.Context) {
	c.mem.Flush()
	c.Invalidate(ctx, keyPrefix)
}

func (c *Cache) expired(entry Entry) bool {
	return time.Since(entry.Timestamp) > c.ttl
}

// evict removes an expired entry from both tiers.
func (c *Cache) evict(ctx context.Context, key Key) {
	c.mem.Delete(key.String())
	c.deleteDurable(ctx, key.String())
}

func (c *Cache) deleteDurable(ctx context.Context, key string) {
	if c.durable == nil {
		return
	}
	if err := c.durable.Delete(ctx, key); err != nil {
		c.logger.Debug("durable cache delete failed",
			logging.Err(err), logging.Field{Key: "key", Value: key})
	}
}
