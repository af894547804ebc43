package cache

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryCache 内存缓存实现
// 底层 go-cache 自带过期与定期清理
type memoryCache struct {
	cache      *gocache.Cache
	serializer Serializer
	keyPrefix  string
	defaultTTL time.Duration
}

// newMemoryCache 创建内存缓存实例
func newMemoryCache(cfg *Config) (Cache, error) {
	if cfg.Memory == nil {
		cfg.Memory = DefaultMemoryConfig()
	}

	return &memoryCache{
		cache:      gocache.New(cfg.Memory.DefaultExpiration, cfg.Memory.CleanupInterval),
		serializer: cfg.Serializer,
		keyPrefix:  cfg.KeyPrefix,
		defaultTTL: cfg.DefaultTTL,
	}, nil
}

// buildKey 构建完整键名
func (m *memoryCache) buildKey(key string) string {
	if m.keyPrefix == "" {
		return key
	}
	return m.keyPrefix + key
}

// Get 获取缓存
func (m *memoryCache) Get(ctx context.Context, key string, value any) error {
	data, found := m.cache.Get(m.buildKey(key))
	if !found {
		return ErrNotFound
	}

	bytes, ok := data.([]byte)
	if !ok {
		return fmt.Errorf("%w: unexpected cache entry type %T", ErrSerialization, data)
	}
	if err := m.serializer.Unmarshal(bytes, value); err != nil {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return nil
}

// Set 设置缓存
func (m *memoryCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	bytes, err := m.serializer.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	m.cache.Set(m.buildKey(key), bytes, ttl)
	return nil
}

// Delete 删除缓存
func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		m.cache.Delete(m.buildKey(key))
	}
	return nil
}

// Ping 内存缓存恒可用
func (m *memoryCache) Ping(ctx context.Context) error {
	return nil
}

// Close 清空缓存
func (m *memoryCache) Close() error {
	m.cache.Flush()
	return nil
}
