package report

import "sync"

// Cache memoizes read results by query key. Entries never expire; callers
// invalidate them after a run lands.
type Cache struct {
	mu      sync.Mutex
	entries map[string]any
}

func NewCache() *Cache {
	return &Cache{entries: map[string]any{}}
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *Cache) Put(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = v
}

func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]any{}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cached returns the memoized value for key or loads and stores it. A nil
// cache always loads. Failed loads are not cached.
func cached[T any](c *Cache, key string, load func() (T, error)) (T, error) {
	if c != nil {
		if v, ok := c.Get(key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if c != nil {
		c.Put(key, v)
	}
	return v, nil
}
