package settings

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Source 运行时配置数据源
type Source interface {
	GetAll(ctx context.Context) (map[string]string, error)
}

// Cache 运行时配置读穿缓存
// 超过 TTL 后下一次读取触发刷新；刷新失败时继续使用旧值
type Cache struct {
	source Source
	ttl    time.Duration
	logger *zap.Logger

	mu          sync.RWMutex
	values      map[string]string
	lastRefresh time.Time
}

// NewCache 创建运行时配置缓存
func NewCache(source Source, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		source: source,
		ttl:    ttl,
		logger: logger,
		values: make(map[string]string),
	}
}

// refreshIfStale 超过 TTL 时刷新缓存
func (c *Cache) refreshIfStale(ctx context.Context) {
	c.mu.RLock()
	stale := time.Since(c.lastRefresh) > c.ttl
	c.mu.RUnlock()

	if !stale {
		return
	}

	values, err := c.source.GetAll(ctx)
	if err != nil {
		// 刷新失败，继续使用旧值
		c.logger.Warn("Failed to refresh runtime settings, serving stale values",
			zap.Error(err),
		)
		c.mu.Lock()
		c.lastRefresh = time.Now()
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.values = values
	c.lastRefresh = time.Now()
	c.mu.Unlock()

	c.logger.Debug("Runtime settings refreshed",
		zap.Int("setting_count", len(values)),
	)
}

// GetString 读取字符串配置，不存在时返回默认值
func (c *Cache) GetString(ctx context.Context, key, defaultValue string) string {
	c.refreshIfStale(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if v, ok := c.values[key]; ok {
		return v
	}
	return defaultValue
}

// GetNumber 读取整数配置，不存在或无法解析时返回默认值
func (c *Cache) GetNumber(ctx context.Context, key string, defaultValue int) int {
	v := c.GetString(ctx, key, "")
	if v == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetBool 读取布尔配置，不存在或无法解析时返回默认值
func (c *Cache) GetBool(ctx context.Context, key string, defaultValue bool) bool {
	v := c.GetString(ctx, key, "")
	if v == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}
