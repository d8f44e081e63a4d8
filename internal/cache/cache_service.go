// Package cache provides a Redis-backed second-level cache for candle
// windows and last prices, shared between scanner restarts. When Redis is
// unavailable the service degrades gracefully: operations return errors and
// callers fall back to the in-process cache and the market-data adapter.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"moex-panic-scanner/internal/moex"
)

// Config mirrors the redis section of the service configuration.
type Config struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// Default TTLs for the cached market data.
const (
	DefaultCandleTTL = 60 * time.Second
	DefaultPriceTTL  = 30 * time.Second
)

// CacheService wraps Redis with a small circuit breaker so a dead Redis
// never slows down the scan loop.
type CacheService struct {
	client *redis.Client

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration

	log zerolog.Logger
}

// New connects to Redis and returns the service. A failed initial
// connection returns the service in degraded mode rather than an error.
func New(cfg Config) (*CacheService, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	cs := &CacheService{
		client:        client,
		maxFailures:   3,
		checkInterval: 30 * time.Second,
		log:           log.With().Str("component", "cache").Logger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		cs.log.Warn().Err(err).Str("addr", cfg.Address).Msg("initial redis connection failed, starting degraded")
		return cs, nil
	}

	cs.healthy = true
	cs.lastCheck = time.Now()
	cs.log.Info().Str("addr", cfg.Address).Msg("redis connected")
	return cs, nil
}

// IsHealthy reports whether Redis is currently usable.
func (cs *CacheService) IsHealthy() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.healthy
}

func (cs *CacheService) recordFailure() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.failureCount++
	if cs.failureCount >= cs.maxFailures {
		if cs.healthy {
			cs.log.Warn().Int("failures", cs.failureCount).Msg("circuit breaker open, redis marked unhealthy")
		}
		cs.healthy = false
	}
}

func (cs *CacheService) recordSuccess() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if !cs.healthy {
		cs.log.Info().Msg("circuit breaker closed, redis recovered")
	}
	cs.healthy = true
	cs.failureCount = 0
	cs.lastCheck = time.Now()
}

// checkHealth probes Redis in the background once the breaker is open and
// enough time has passed since the last probe.
func (cs *CacheService) checkHealth() {
	cs.mu.RLock()
	shouldCheck := !cs.healthy && time.Since(cs.lastCheck) >= cs.checkInterval
	cs.mu.RUnlock()
	if !shouldCheck {
		return
	}

	cs.mu.Lock()
	cs.lastCheck = time.Now()
	cs.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cs.client.Ping(ctx).Err(); err == nil {
			cs.recordSuccess()
		}
	}()
}

func (cs *CacheService) get(ctx context.Context, key string, dest interface{}) error {
	cs.checkHealth()
	if !cs.IsHealthy() {
		return fmt.Errorf("redis unavailable (circuit breaker open)")
	}

	data, err := cs.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		cs.recordSuccess()
		return err
	}
	if err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	cs.recordSuccess()
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode cached %s: %w", key, err)
	}
	return nil
}

func (cs *CacheService) set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	cs.checkHealth()
	if !cs.IsHealthy() {
		return fmt.Errorf("redis unavailable (circuit breaker open)")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := cs.client.Set(ctx, key, data, ttl).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	cs.recordSuccess()
	return nil
}

// GetCandles returns a cached candle window, or false on any miss or error.
func (cs *CacheService) GetCandles(ctx context.Context, instrument, interval string) ([]moex.Candle, bool) {
	var candles []moex.Candle
	if err := cs.get(ctx, candleKey(instrument, interval), &candles); err != nil {
		return nil, false
	}
	return candles, true
}

// SetCandles caches a candle window; errors are logged, never propagated.
func (cs *CacheService) SetCandles(ctx context.Context, instrument, interval string, candles []moex.Candle) {
	if err := cs.set(ctx, candleKey(instrument, interval), candles, DefaultCandleTTL); err != nil {
		cs.log.Debug().Err(err).Str("instrument", instrument).Msg("candle cache write skipped")
	}
}

// GetPrice returns a cached last price.
func (cs *CacheService) GetPrice(ctx context.Context, instrument string) (float64, bool) {
	var price float64
	if err := cs.get(ctx, priceKey(instrument), &price); err != nil {
		return 0, false
	}
	return price, true
}

// SetPrice caches a last price.
func (cs *CacheService) SetPrice(ctx context.Context, instrument string, price float64) {
	if err := cs.set(ctx, priceKey(instrument), price, DefaultPriceTTL); err != nil {
		cs.log.Debug().Err(err).Str("instrument", instrument).Msg("price cache write skipped")
	}
}

// Close releases the Redis connection pool.
func (cs *CacheService) Close() error {
	return cs.client.Close()
}

func candleKey(instrument, interval string) string {
	return fmt.Sprintf("scanner:candles:%s:%s", instrument, interval)
}

func priceKey(instrument string) string {
	return fmt.Sprintf("scanner:price:%s", instrument)
}
