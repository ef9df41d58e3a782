package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"tg-importance-bot/internal/domain"
)

// MemoryCache реализует domain.Cache в памяти процесса на LRU с общим TTL.
// TTL отдельных ключей не может превышать TTL кэша.
type MemoryCache struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, memoryEntry]
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

var _ domain.Cache = (*MemoryCache)(nil)

// NewMemory создаёт кэш на size записей с максимальным временем жизни ttl.
func NewMemory(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: expirable.NewLRU[string, memoryEntry](size, nil, ttl)}
}

// Once выполняет функцию, если ключ ещё не задан.
func (c *MemoryCache) Once(_ context.Context, key string, ttl time.Duration, fn func() error) error {
	c.mu.Lock()
	if _, ok := c.lookup(key); ok {
		c.mu.Unlock()
		return nil
	}
	c.lru.Add(key, memoryEntry{value: []byte("1"), expiresAt: expiry(ttl)})
	c.mu.Unlock()

	if err := fn(); err != nil {
		c.mu.Lock()
		c.lru.Remove(key)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Set задаёт значение.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, memoryEntry{value: append([]byte(nil), value...), expiresAt: expiry(ttl)})
	return nil
}

// Get возвращает значение или domain.ErrNotFound.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lookup(key)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

func (c *MemoryCache) lookup(key string) (memoryEntry, bool) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.lru.Remove(key)
		return memoryEntry{}, false
	}
	return entry, true
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
