package datacache

import (
	"fmt"
	"sync"
	"time"

	"moex-panic-scanner/internal/moex"
)

// DefaultMaxEntries bounds the cache before oldest-first eviction kicks in.
const DefaultMaxEntries = 1000

type entry struct {
	value      interface{}
	insertedAt time.Time
	expiresAt  time.Time
}

// Cache is a bounded TTL key-value cache for market data. Values are
// immutable once inserted; eviction removes the oldest entry first.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxEntries int

	hitCount  int64
	missCount int64
}

func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		entries:    make(map[string]entry),
		maxEntries: maxEntries,
	}
}

// Set stores a value under key with the given TTL.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = entry{value: value, insertedAt: now, expiresAt: now.Add(ttl)}
}

// Get returns the value for key if present and unexpired.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		if ok {
			delete(c.entries, key)
		}
		c.missCount++
		return nil, false
	}
	c.hitCount++
	return e.value, true
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.insertedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.insertedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// Delete removes a key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the current entry count, expired entries included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Stats returns hit/miss counters and the hit rate percentage.
func (c *Cache) Stats() (hits, misses int64, hitRate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hits, misses = c.hitCount, c.missCount
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return
}

// ==================== TYPED KEYS ====================

func candleKey(instrument, interval string) string {
	return fmt.Sprintf("candles:%s:%s", instrument, interval)
}

func priceKey(instrument string) string {
	return fmt.Sprintf("price:%s", instrument)
}

func avgVolumeKey(instrument string) string {
	return fmt.Sprintf("avgvol:%s", instrument)
}

// SetCandles caches a candle window.
func (c *Cache) SetCandles(instrument, interval string, candles []moex.Candle, ttl time.Duration) {
	c.Set(candleKey(instrument, interval), candles, ttl)
}

// GetCandles returns a cached candle window.
func (c *Cache) GetCandles(instrument, interval string) ([]moex.Candle, bool) {
	v, ok := c.Get(candleKey(instrument, interval))
	if !ok {
		return nil, false
	}
	candles, ok := v.([]moex.Candle)
	return candles, ok
}

// SetPrice caches a last price.
func (c *Cache) SetPrice(instrument string, price float64, ttl time.Duration) {
	c.Set(priceKey(instrument), price, ttl)
}

// GetPrice returns a cached last price.
func (c *Cache) GetPrice(instrument string) (float64, bool) {
	v, ok := c.Get(priceKey(instrument))
	if !ok {
		return 0, false
	}
	price, ok := v.(float64)
	return price, ok
}

// SetAvgVolume caches an average volume (used by the volume filter, 1h TTL).
func (c *Cache) SetAvgVolume(instrument string, avg float64, ttl time.Duration) {
	c.Set(avgVolumeKey(instrument), avg, ttl)
}

// GetAvgVolume returns a cached average volume.
func (c *Cache) GetAvgVolume(instrument string) (float64, bool) {
	v, ok := c.Get(avgVolumeKey(instrument))
	if !ok {
		return 0, false
	}
	avg, ok := v.(float64)
	return avg, ok
}
