// Package keycache holds the active session key in memory for the
// lifetime of the process. Nothing here ever touches persistent
// storage; the cache reconstructs as empty at every start.
package keycache

import (
	"sync"

	"github.com/dkrasnove/lockbox/internal/crypto"
)

// Well-known cache entries.
const (
	SessionKey   = "session_key"
	SessionToken = "session_token"
)

// Cache is a mutex-guarded in-memory byte store. Remove and Clear
// overwrite the backing bytes with a multi-pass pattern before the
// reference is dropped.
type Cache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string][]byte)}
}

// Set stores a copy of value under name, wiping any previous value.
func (c *Cache) Set(name string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[name]; ok {
		crypto.Wipe(old)
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	c.entries[name] = stored
}

// Get returns a copy of the value for name, or nil. Callers own the
// returned slice and should wipe it when done; the cache's backing
// bytes are never aliased out.
func (c *Cache) Get(name string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.entries[name]
	if !ok {
		return nil
	}

	out := make([]byte, len(value))
	copy(out, value)
	return out
}

// Has reports whether a value exists for name.
func (c *Cache) Has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[name]
	return ok
}

// Remove wipes and drops the value for name.
func (c *Cache) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value, ok := c.entries[name]; ok {
		crypto.Wipe(value)
		delete(c.entries, name)
	}
}

// Clear wipes and drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, value := range c.entries {
		crypto.Wipe(value)
		delete(c.entries, name)
	}
}
