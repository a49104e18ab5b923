package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores encoded values with a time to live. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type entry struct {
	value      []byte
	expiration time.Time
}

// Memory is a thread-safe in-process cache. Expired entries are dropped when read.
type Memory struct {
	mu      sync.RWMutex
	items   map[string]entry
	nowTime func() time.Time
}

var _ Cache = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		items:   make(map[string]entry),
		nowTime: time.Now,
	}
}

// WithNowFunc replaces the clock, for tests.
func (c *Memory) WithNowFunc(now func() time.Time) *Memory {
	c.nowTime = now
	return c
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !c.nowTime().Before(e.expiration) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry{
		value:      append([]byte(nil), value...),
		expiration: c.nowTime().Add(ttl),
	}
	return nil
}

func (c *Memory) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

// Len counts entries, including any that have expired but not yet been read.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
