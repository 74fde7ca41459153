package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// Cache interface defines caching operations
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, key string) (bool, error)
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Close() error
}

// RedisCache implements Cache interface using Redis
type RedisCache struct {
	client *redis.Client
}

// MemoryCache implements Cache interface using in-memory storage (fallback)
type MemoryCache struct {
	data map[string]cacheItem
	mu   sync.RWMutex
}

type cacheItem struct {
	value     string
	expiresAt time.Time
}

// Manager wraps a primary cache with a memory fallback. Every call is
// bounded by a timeout so a slow store can never stall the read path.
type Manager struct {
	primary   Cache
	fallback  Cache
	enabled   bool
	keyPrefix string
	timeout   time.Duration
}

// NewManager creates a new cache manager
func NewManager(cfg *viper.Viper) *Manager {
	manager := &Manager{
		enabled:   cfg.GetBool("cache.enabled"),
		keyPrefix: cfg.GetString("cache.key_prefix"),
		timeout:   cfg.GetDuration("cache.timeout"),
	}

	if manager.keyPrefix == "" {
		manager.keyPrefix = "opphub:"
	}
	if manager.timeout <= 0 {
		manager.timeout = 2 * time.Second
	}

	// Try to connect to Redis
	if manager.enabled && cfg.GetBool("redis.enabled") {
		redisCache, err := NewRedisCache(cfg.GetString("redis.url"))
		if err == nil {
			manager.primary = redisCache
		}
	}

	// Always have memory cache as fallback
	manager.fallback = NewMemoryCache()

	return manager
}

// NewManagerWithStores builds a manager around explicit stores, the
// injection point used by tests and callers that manage their own
// connections. A nil fallback gets the usual memory cache.
func NewManagerWithStores(cfg *viper.Viper, primary, fallback Cache) *Manager {
	manager := &Manager{
		enabled:   cfg.GetBool("cache.enabled"),
		keyPrefix: cfg.GetString("cache.key_prefix"),
		timeout:   cfg.GetDuration("cache.timeout"),
		primary:   primary,
		fallback:  fallback,
	}

	if manager.keyPrefix == "" {
		manager.keyPrefix = "opphub:"
	}
	if manager.timeout <= 0 {
		manager.timeout = 2 * time.Second
	}
	if manager.fallback == nil {
		manager.fallback = NewMemoryCache()
	}

	return manager
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewMemoryCache creates a new in-memory cache instance
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		data: make(map[string]cacheItem),
	}
}

// Manager methods

func (m *Manager) key(key string) string {
	return m.keyPrefix + key
}

func (m *Manager) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.timeout)
}

func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	if !m.enabled {
		return "", ErrCacheMiss
	}

	ctx, cancel := m.bound(ctx)
	defer cancel()

	fullKey := m.key(key)

	// Try primary cache first
	if m.primary != nil {
		value, err := m.primary.Get(ctx, fullKey)
		if err == nil {
			return value, nil
		}
	}

	// Fallback to memory cache
	return m.fallback.Get(ctx, fullKey)
}

func (m *Manager) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !m.enabled {
		return nil
	}

	ctx, cancel := m.bound(ctx)
	defer cancel()

	fullKey := m.key(key)

	// Set in primary cache
	if m.primary != nil {
		if err := m.primary.Set(ctx, fullKey, value, ttl); err == nil {
			return nil
		}
	}

	// Fallback to memory cache
	return m.fallback.Set(ctx, fullKey, value, ttl)
}

func (m *Manager) Delete(ctx context.Context, key string) error {
	if !m.enabled {
		return nil
	}

	ctx, cancel := m.bound(ctx)
	defer cancel()

	fullKey := m.key(key)

	// Delete from both caches
	if m.primary != nil {
		m.primary.Delete(ctx, fullKey)
	}
	m.fallback.Delete(ctx, fullKey)

	return nil
}

func (m *Manager) DeletePattern(ctx context.Context, pattern string) error {
	if !m.enabled {
		return nil
	}

	ctx, cancel := m.bound(ctx)
	defer cancel()

	fullPattern := m.key(pattern)

	// Delete from both caches
	if m.primary != nil {
		m.primary.DeletePattern(ctx, fullPattern)
	}
	m.fallback.DeletePattern(ctx, fullPattern)

	return nil
}

func (m *Manager) Exists(ctx context.Context, key string) (bool, error) {
	if !m.enabled {
		return false, nil
	}

	ctx, cancel := m.bound(ctx)
	defer cancel()

	fullKey := m.key(key)

	if m.primary != nil {
		if ok, err := m.primary.Exists(ctx, fullKey); err == nil {
			return ok, nil
		}
	}
	return m.fallback.Exists(ctx, fullKey)
}

func (m *Manager) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if !m.enabled {
		return ErrCacheMiss
	}

	value, err := m.Get(ctx, key)
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(value), dest)
}

func (m *Manager) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !m.enabled {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return m.Set(ctx, key, string(data), ttl)
}

func (m *Manager) Close() error {
	if m.primary != nil {
		m.primary.Close()
	}
	if m.fallback != nil {
		m.fallback.Close()
	}
	return nil
}

// RedisCache methods

func (rc *RedisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrCacheMiss
	}
	return value, err
}

func (rc *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return rc.client.Set(ctx, key, value, ttl).Err()
}

func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, key).Err()
}

func (rc *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	keys, err := rc.client.Keys(ctx, pattern).Result()
	if err != nil {
		return err
	}

	if len(keys) > 0 {
		return rc.client.Del(ctx, keys...).Err()
	}

	return nil
}

func (rc *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := rc.client.Exists(ctx, key).Result()
	return count > 0, err
}

func (rc *RedisCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := rc.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

func (rc *RedisCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return rc.Set(ctx, key, string(data), ttl)
}

func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// MemoryCache methods

func (mc *MemoryCache) cleanExpired() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	for key, item := range mc.data {
		if now.After(item.expiresAt) {
			delete(mc.data, key)
		}
	}
}

func (mc *MemoryCache) Get(ctx context.Context, key string) (string, error) {
	mc.cleanExpired()

	mc.mu.RLock()
	defer mc.mu.RUnlock()

	item, exists := mc.data[key]
	if !exists {
		return "", ErrCacheMiss
	}

	if time.Now().After(item.expiresAt) {
		return "", ErrCacheMiss
	}

	return item.value, nil
}

func (mc *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	mc.cleanExpired()

	var strValue string
	switch v := value.(type) {
	case string:
		strValue = v
	case []byte:
		strValue = string(v)
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}
		strValue = string(data)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.data[key] = cacheItem{
		value:     strValue,
		expiresAt: time.Now().Add(ttl),
	}

	return nil
}

func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	delete(mc.data, key)
	return nil
}

func (mc *MemoryCache) DeletePattern(ctx context.Context, pattern string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for key := range mc.data {
		if matchPattern(pattern, key) {
			delete(mc.data, key)
		}
	}
	return nil
}

func (mc *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	mc.cleanExpired()

	mc.mu.RLock()
	defer mc.mu.RUnlock()

	_, exists := mc.data[key]
	return exists, nil
}

func (mc *MemoryCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := mc.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

func (mc *MemoryCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return mc.Set(ctx, key, string(data), ttl)
}

func (mc *MemoryCache) Close() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.data = make(map[string]cacheItem)
	return nil
}

// Helper functions

func matchPattern(pattern, str string) bool {
	// Very basic wildcard matching for memory cache
	if pattern == "*" {
		return true
	}

	if strings.HasSuffix(pattern, "*") {
		prefix := pattern[:len(pattern)-1]
		return strings.HasPrefix(str, prefix)
	}

	if strings.HasPrefix(pattern, "*") {
		suffix := pattern[1:]
		return strings.HasSuffix(str, suffix)
	}

	return pattern == str
}
