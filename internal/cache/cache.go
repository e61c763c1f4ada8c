// Package cache implements the bounded response cache: a key/value store
// with time-based expiry, a size cap and oldest-first eviction.
package cache

import (
	"crypto/sha1" //nolint:gosec // sha1 for cache keys, not security
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"inferd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultTTL = 600 * time.Second
	DefaultCap = 100

	// keyPromptPrefixLen bounds how much of the prompt feeds the key hash.
	// Two long prompts sharing this prefix AND identical options collide;
	// an accepted approximation, the total length is folded in to narrow it.
	keyPromptPrefixLen = 256
)

// Config holds cache tunables.
type Config struct {
	TTL time.Duration
	Cap int
}

type entry struct {
	value     string
	createdAt time.Time
}

// Cache is a thread-safe TTL store. An entry is never returned once its age
// exceeds TTL; expired entries are purged lazily on read and opportunistically
// on write when the store exceeds its cap.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	cap     int
	// watermark is the size eviction shrinks to once the cap is exceeded.
	watermark int
	now       func() time.Time
}

// New constructs a Cache, applying defaults for unset config fields.
func New(cfg Config) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		ttl:     cfg.TTL,
		cap:     cfg.Cap,
		now:     time.Now,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.cap <= 0 {
		c.cap = DefaultCap
	}
	c.watermark = c.cap / 2
	if c.watermark < 1 {
		c.watermark = 1
	}
	return c
}

// Get returns the cached value for key, or false when absent or expired.
// Expired entries are removed on the spot.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().Sub(e.createdAt) > c.ttl {
		delete(c.entries, key)
		return "", false
	}
	return e.value, true
}

// Set stores value under key, immediately visible to subsequent Gets.
// Concurrent sets to the same key are last-writer-wins.
func (c *Cache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{value: value, createdAt: c.now()}
	if len(c.entries) > c.cap {
		c.evictLocked()
	}
}

// evictLocked drops all expired entries first, then oldest-by-creation
// entries until the store is at or under the watermark.
func (c *Cache) evictLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.createdAt) > c.ttl {
			delete(c.entries, k)
		}
	}
	if len(c.entries) <= c.watermark {
		return
	}
	type aged struct {
		key       string
		createdAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, createdAt: e.createdAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].createdAt.Before(all[j].createdAt) })
	for _, a := range all {
		if len(c.entries) <= c.watermark {
			break
		}
		delete(c.entries, a.key)
	}
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Len returns the current entry count, expired entries included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Key derives a deterministic cache key from prompt and options. Identical
// inputs always collide; the prompt is truncated to a fixed prefix before
// hashing, so the key is an approximate match for very long prompts.
func Key(prompt string, opts types.CompletionOptions) string {
	prefix := prompt
	if len(prefix) > keyPromptPrefixLen {
		prefix = prefix[:keyPromptPrefixLen]
	}
	h := sha1.New() //nolint:gosec
	fmt.Fprintf(h, "%s|%d|%d|%g|%g|%d|%s",
		prefix, len(prompt),
		opts.MaxTokens, opts.Temperature, opts.TopP, opts.TopK,
		strings.Join(opts.Stop, "\x1f"))
	return hex.EncodeToString(h.Sum(nil))
}
