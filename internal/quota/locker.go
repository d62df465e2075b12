package quota

import (
	"context"
	"fmt"
	"sync"
)

// Locker 配额锁
// 同一 (店铺, 内容类型) 的 "计数 + 创建" 必须串行执行，否则并发请求可以同时通过配额检查
type Locker interface {
	// Lock 阻塞直到拿到锁或 ctx 结束；返回的 unlock 必须调用且只调用一次
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Key 生成配额锁 Key，如 "quota:store-doc-1:product"
func Key(storeID, kind string) string {
	return fmt.Sprintf("quota:%s:%s", storeID, kind)
}

// ==================== 进程内实现 ====================

// MemoryLocker 进程内按 key 加锁
// 单实例部署下足够；多实例部署需要 RedisLocker
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

// lockEntry 容量为 1 的信号量，便于响应 ctx 取消
// refs 为持有者与等待者总数，归零时移除条目
type lockEntry struct {
	sem  chan struct{}
	refs int
}

var _ Locker = (*MemoryLocker)(nil)

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*lockEntry)}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	// 1. 获取或创建锁条目
	entry := l.acquire(key)

	// 2. 等待信号量
	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, entry)
		return nil, fmt.Errorf("quota lock %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.release(key, entry)
		})
	}, nil
}

func (l *MemoryLocker) acquire(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, found := l.locks[key]
	if !found {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	return entry
}

func (l *MemoryLocker) release(key string, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}
