// Package cache provides caching implementations for Padi.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sipadi/padi/internal/domain"
)

const defaultLocalMaxSize = 10000

// LRUCache is a thread-safe LRU cache with per-entry TTL.
// Used as the single-node cache and as L1 in two-phase caching.
type LRUCache struct {
	maxSize int
	items   *lru.Cache[string, cacheEntry]

	// counters need read-modify-write, so they get their own lock.
	mu       sync.Mutex
	counters *lru.Cache[string, *counterEntry]
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// NewLRUCache creates a new LRU cache with the specified max size.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = defaultLocalMaxSize
	}
	// lru.New only fails on a non-positive size.
	items, _ := lru.New[string, cacheEntry](maxSize)
	counters, _ := lru.New[string, *counterEntry](maxSize)
	return &LRUCache{
		maxSize:  maxSize,
		items:    items,
		counters: counters,
	}
}

// Get retrieves a value from cache.
func (c *LRUCache) Get(ctx context.Context, namespace string, key string) ([]byte, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}

	fullKey := makeKey(namespace, key)
	entry, ok := c.items.Get(fullKey)
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.items.Remove(fullKey)
		return nil, nil
	}
	return entry.value, nil
}

// Set stores a value in cache with TTL.
func (c *LRUCache) Set(ctx context.Context, namespace string, key string, value []byte, ttl time.Duration) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}

	c.items.Add(makeKey(namespace, key), cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

// Delete removes a value from cache.
func (c *LRUCache) Delete(ctx context.Context, namespace string, key string) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}

	c.items.Remove(makeKey(namespace, key))
	return nil
}

// GetSubmission retrieves a remembered submission.
func (c *LRUCache) GetSubmission(ctx context.Context, namespace string, fingerprint string) (*domain.Submission, error) {
	data, err := c.Get(ctx, namespace, submissionKey(fingerprint))
	if err != nil || data == nil {
		return nil, err
	}
	return decodeSubmission(data)
}

// SetSubmission remembers a submission for ttl.
func (c *LRUCache) SetSubmission(ctx context.Context, namespace string, fingerprint string, sub *domain.Submission, ttl time.Duration) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return c.Set(ctx, namespace, submissionKey(fingerprint), data, ttl)
}

// IncrementCounter atomically increments a counter.
func (c *LRUCache) IncrementCounter(ctx context.Context, namespace string, key string, window time.Duration) (int64, error) {
	if namespace == "" {
		return 0, fmt.Errorf("namespace is required")
	}

	fullKey := makeKey(namespace, counterKey(key))

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry, ok := c.counters.Get(fullKey)
	if !ok || now.After(entry.expiresAt) {
		c.counters.Add(fullKey, &counterEntry{count: 1, expiresAt: now.Add(window)})
		return 1, nil
	}

	entry.count++
	return entry.count, nil
}

// Ping checks cache health.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close empties the cache.
func (c *LRUCache) Close() error {
	c.items.Purge()
	c.mu.Lock()
	c.counters.Purge()
	c.mu.Unlock()
	return nil
}

// Stats returns cache statistics.
func (c *LRUCache) Stats() (size int, capacity int) {
	return c.items.Len(), c.maxSize
}

func makeKey(namespace, key string) string {
	return namespace + ":" + key
}

func submissionKey(fingerprint string) string {
	return "submission:" + fingerprint
}

func counterKey(key string) string {
	return "counter:" + key
}

func decodeSubmission(data []byte) (*domain.Submission, error) {
	var sub domain.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}
	return &sub, nil
}
