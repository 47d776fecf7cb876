package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Store keeps short strings (translations) around for a while.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close() error
}

type item struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process Store with lazy expiry and an hourly sweep.
type Memory struct {
	mu    sync.RWMutex
	items map[string]item
	stop  chan struct{}
	once  sync.Once
}

func NewMemory() *Memory {
	c := &Memory{
		items: make(map[string]item),
		stop:  make(chan struct{}),
	}

	go c.cleanupLoop(time.Hour)

	return c
}

func (c *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = item{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (c *Memory) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok {
		return "", false, nil
	}
	if time.Now().After(it.expiresAt) {
		delete(c.items, key)
		return "", false, nil
	}
	return it.value, true, nil
}

func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Memory) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func (c *Memory) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

func (c *Memory) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, key)
		}
	}
}

// Key hashes the given parts into a stable cache key.
func Key(namespace string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "\x1f")))
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}
