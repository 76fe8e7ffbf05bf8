package instrument

import "sync"

// maxCachedBodies bounds the observed-body cache.
const maxCachedBodies = 256

// BodyCache keeps manifest bodies captured from the response channel so the
// verifier can reuse them without a second retrieval.
type BodyCache struct {
	mu     sync.RWMutex
	bodies map[string]string
	order  []string
}

// NewBodyCache returns an empty cache.
func NewBodyCache() *BodyCache {
	return &BodyCache{bodies: make(map[string]string)}
}

// Put stores body under url, evicting the oldest entry when full.
func (c *BodyCache) Put(url, body string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.bodies[url]; !ok {
		if len(c.order) >= maxCachedBodies {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.bodies, oldest)
		}
		c.order = append(c.order, url)
	}
	c.bodies[url] = body
}

// Get returns the body observed for url.
func (c *BodyCache) Get(url string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	body, ok := c.bodies[url]
	return body, ok
}

// Len returns the number of cached bodies.
func (c *BodyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bodies)
}
