package utils

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// TTLCache 带过期时间的 LRU 缓存
// GetOrLoad 对同一 key 的并发回源做合并，避免缓存失效瞬间打爆上游
type TTLCache[V any] struct {
	cache *lru.LRU[string, V]
	group singleflight.Group
}

// NewTTLCache size: 最大条目数；ttl: 过期时间
func NewTTLCache[V any](size int, ttl time.Duration) *TTLCache[V] {
	if size <= 0 {
		size = 1024
	}
	return &TTLCache[V]{
		cache: lru.NewLRU[string, V](size, nil, ttl),
	}
}

// Get 获取缓存 (过期即视为不存在)
func (c *TTLCache[V]) Get(key string) (V, bool) {
	return c.cache.Get(key)
}

// Delete 删除缓存 (数据变更后立即失效)
func (c *TTLCache[V]) Delete(key string) {
	c.cache.Remove(key)
}

// GetOrLoad 命中直接返回；未命中时回源并写入缓存，回源失败不缓存
func (c *TTLCache[V]) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, error) {
	if v, hit := c.cache.Get(key); hit {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		c.cache.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}
