/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for the data the
// scheduler reads on every tick.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/soundtrigger/internal/telemetry"
)

// Default TTL values for different cache types
const (
	DefaultSettingsTTL = 30 * time.Second
	DefaultGroupTTL    = 30 * time.Second
)

// Key prefixes for Redis cache
const (
	KeySettings = "soundtrigger:cache:settings"
	KeyGroup    = "soundtrigger:cache:group:" // + group name
	keyPattern  = "soundtrigger:cache:*"
)

// Config contains cache configuration.
type Config struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SettingsTTL time.Duration
	GroupTTL    time.Duration

	// DisableOnError trips the circuit breaker on the first Redis error.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		SettingsTTL:    DefaultSettingsTTL,
		GroupTTL:       DefaultGroupTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback. A nil *Cache
// behaves as a permanently disabled cache.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance. An unreachable Redis yields a disabled
// cache rather than an error.
func New(cfg Config, logger zerolog.Logger) *Cache {
	logger = logger.With().Str("component", "cache").Logger()
	if cfg.SettingsTTL <= 0 {
		cfg.SettingsTTL = DefaultSettingsTTL
	}
	if cfg.GroupTTL <= 0 {
		cfg.GroupTTL = DefaultGroupTTL
	}
	if !cfg.Enabled {
		return &Cache{logger: logger, config: cfg, disabled: true}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     4,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		_ = client.Close()
		return &Cache{logger: logger, config: cfg, disabled: true}
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	return &Cache{client: client, logger: logger, config: cfg}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c != nil && c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, kind, key string, dest any) bool {
	if !c.IsAvailable() {
		return false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		telemetry.CacheOperationsTotal.WithLabelValues(kind, "miss").Inc()
		return false
	}
	if err != nil {
		telemetry.CacheOperationsTotal.WithLabelValues(kind, "error").Inc()
		c.handleError(err, "get")
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		telemetry.CacheOperationsTotal.WithLabelValues(kind, "miss").Inc()
		return false
	}

	telemetry.CacheOperationsTotal.WithLabelValues(kind, "hit").Inc()
	return true
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

// delete removes a key from cache.
func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}
	return nil
}

// deletePattern deletes all keys matching a pattern.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			return nil
		}
	}
}

// CachedSettings is the cached form of the schedule settings row.
type CachedSettings struct {
	IntervalSeconds       float64 `json:"interval_seconds"`
	InitialProbability    float64 `json:"initial_probability"`
	Mode                  string  `json:"mode"`
	LinearStep            float64 `json:"linear_step"`
	ExponentialMultiplier float64 `json:"exponential_multiplier"`
	AntiRepeat            bool    `json:"anti_repeat"`
	Volume                float64 `json:"volume"`
	GroupName             string  `json:"group_name"`
}

// GetSettings retrieves the cached schedule settings.
func (c *Cache) GetSettings(ctx context.Context) (*CachedSettings, bool) {
	var s CachedSettings
	if !c.get(ctx, "settings", KeySettings, &s) {
		return nil, false
	}
	return &s, true
}

// SetSettings caches the schedule settings.
func (c *Cache) SetSettings(ctx context.Context, s *CachedSettings) error {
	if !c.IsAvailable() {
		return nil
	}
	return c.set(ctx, KeySettings, s, c.config.SettingsTTL)
}

// InvalidateSettings removes the settings from cache.
func (c *Cache) InvalidateSettings(ctx context.Context) error {
	if !c.IsAvailable() {
		return nil
	}
	c.logger.Debug().Msg("invalidating settings cache")
	return c.delete(ctx, KeySettings)
}

// CachedGroup is a resolved group with its member asset names in order.
type CachedGroup struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// GetGroup retrieves a cached group by name.
func (c *Cache) GetGroup(ctx context.Context, name string) (*CachedGroup, bool) {
	var g CachedGroup
	if !c.get(ctx, "group", KeyGroup+name, &g) {
		return nil, false
	}
	return &g, true
}

// SetGroup caches a resolved group.
func (c *Cache) SetGroup(ctx context.Context, g *CachedGroup) error {
	if !c.IsAvailable() {
		return nil
	}
	return c.set(ctx, KeyGroup+g.Name, g, c.config.GroupTTL)
}

// InvalidateGroups removes every cached group. Membership changes can touch
// many groups at once (removing an asset), so groups are always dropped
// together.
func (c *Cache) InvalidateGroups(ctx context.Context) error {
	if !c.IsAvailable() {
		return nil
	}
	c.logger.Debug().Msg("invalidating group caches")
	return c.deletePattern(ctx, KeyGroup+"*")
}

// FlushAll removes all cached data.
func (c *Cache) FlushAll(ctx context.Context) error {
	if !c.IsAvailable() {
		return nil
	}
	c.logger.Warn().Msg("flushing all cache data")
	return c.deletePattern(ctx, keyPattern)
}
