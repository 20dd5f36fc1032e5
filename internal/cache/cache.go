// Package cache implements the bounded, TTL'd result cache with
// stale-while-revalidate semantics that sits in front of the router.
package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/lingomux/lingomux/pkg/types"
)

// State describes the result of a cache lookup.
type State int

const (
	// Miss means the key is absent; the caller must dispatch.
	Miss State = iota
	// Hit means a fresh value was returned.
	Hit
	// Stale means an expired value was returned and a background refresh
	// was (or already is) in flight.
	Stale
)

// RefreshFunc recomputes the value for a stale key. It is invoked in a
// detached background goroutine; errors are logged and swallowed.
type RefreshFunc func(ctx context.Context) ([]byte, error)

// Config holds cache construction parameters.
type Config struct {
	// MaxEntries bounds the number of cached values (default 2000).
	MaxEntries int
	// TTL is the freshness window per entry (default 1 hour).
	TTL time.Duration
	// MaxConcurrentRefresh caps in-flight background refreshes
	// (default 4).
	MaxConcurrentRefresh int
	// RefreshPerSecond caps how fast new background refreshes may be
	// spawned (default 25/s).
	RefreshPerSecond float64
	// RefreshTimeout bounds a single background refresh (default 30s).
	RefreshTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) withDefaults() {
	if c.MaxEntries <= 0 {
		c.MaxEntries = 2000
	}
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	if c.MaxConcurrentRefresh <= 0 {
		c.MaxConcurrentRefresh = 4
	}
	if c.RefreshPerSecond <= 0 {
		c.RefreshPerSecond = 25
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type entry struct {
	value      []byte
	insertedAt time.Time
	lastAccess time.Time
}

// Cache is a bounded in-memory result cache. It is safe for concurrent
// use; eviction and lookups on the same key are last-writer-wins.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	maxEntries int
	ttl        time.Duration

	refreshing     map[string]bool
	refreshSlots   chan struct{}
	refreshLimiter *rate.Limiter
	refreshTimeout time.Duration
	refreshWG      sync.WaitGroup

	hits   atomic.Int64
	misses atomic.Int64

	logger *slog.Logger
	now    func() time.Time
}

// New creates a cache from cfg.
func New(cfg Config) *Cache {
	cfg.withDefaults()
	return &Cache{
		entries:        make(map[string]*entry),
		maxEntries:     cfg.MaxEntries,
		ttl:            cfg.TTL,
		refreshing:     make(map[string]bool),
		refreshSlots:   make(chan struct{}, cfg.MaxConcurrentRefresh),
		refreshLimiter: rate.NewLimiter(rate.Limit(cfg.RefreshPerSecond), cfg.MaxConcurrentRefresh),
		refreshTimeout: cfg.RefreshTimeout,
		logger:         cfg.Logger,
		now:            time.Now,
	}
}

// Lookup retrieves the value for key. A fresh entry returns (value, Hit).
// An expired entry with a non-nil refresh returns the stale value
// immediately and triggers at most one background refresh for the key;
// without a refresh func the expired entry is dropped and Miss is
// returned.
func (c *Cache) Lookup(ctx context.Context, key string, refresh RefreshFunc) ([]byte, State) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, Miss
	}

	now := c.now()
	e.lastAccess = now

	if now.Sub(e.insertedAt) < c.ttl {
		value := cloneBytes(e.value)
		c.mu.Unlock()
		c.hits.Add(1)
		return value, Hit
	}

	if refresh == nil {
		delete(c.entries, key)
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, Miss
	}

	value := cloneBytes(e.value)
	spawn := !c.refreshing[key] && c.refreshLimiter.Allow()
	if spawn {
		c.refreshing[key] = true
		c.refreshWG.Add(1)
	}
	c.mu.Unlock()

	c.hits.Add(1)
	if spawn {
		go c.refresh(key, refresh)
	}
	return value, Stale
}

// refresh recomputes one stale entry in the background. Failures are
// logged and swallowed; the original caller already has the stale value.
func (c *Cache) refresh(key string, fn RefreshFunc) {
	defer c.refreshWG.Done()
	defer func() {
		c.mu.Lock()
		delete(c.refreshing, key)
		c.mu.Unlock()
	}()

	select {
	case c.refreshSlots <- struct{}{}:
		defer func() { <-c.refreshSlots }()
	default:
		// All refresh slots busy; the entry stays stale until the next
		// stale read wins a slot.
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()

	value, err := fn(ctx)
	if err != nil {
		c.logger.Warn("background cache refresh failed", "error", err)
		return
	}
	c.Set(key, value)
}

// Set stores value under key, evicting if the cache is at capacity.
func (c *Cache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists {
		for len(c.entries) >= c.maxEntries {
			c.evictLocked()
		}
	}
	c.entries[key] = &entry{
		value:      cloneBytes(value),
		insertedAt: now,
		lastAccess: now,
	}
}

// evictLocked removes the least-recently-used entry among the oldest
// quartile of entries by insertion time.
func (c *Cache) evictLocked() {
	if len(c.entries) == 0 {
		return
	}

	type candidate struct {
		key        string
		insertedAt time.Time
		lastAccess time.Time
	}
	all := make([]candidate, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, candidate{k, e.insertedAt, e.lastAccess})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].insertedAt.Before(all[j].insertedAt) })

	quartile := len(all) / 4
	if quartile < 1 {
		quartile = 1
	}
	oldest := all[:quartile]

	victim := oldest[0]
	for _, cand := range oldest[1:] {
		if cand.lastAccess.Before(victim.lastAccess) {
			victim = cand
		}
	}
	delete(c.entries, victim.key)
}

// Delete removes a key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Status returns hit/miss statistics and occupancy.
func (c *Cache) Status() types.CacheStatus {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return types.CacheStatus{
		Size:     c.Len(),
		Capacity: c.maxEntries,
		Hits:     hits,
		Misses:   misses,
		HitRate:  hitRate,
	}
}

// Close waits for in-flight background refreshes to finish.
func (c *Cache) Close() error {
	c.refreshWG.Wait()
	return nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
