package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU + Redis.
// Keys are namespaced (usually by user id) so users never collide.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, namespace string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, namespace string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, namespace string, key string) error

	// GetSubmission retrieves a remembered diagnosis submission.
	GetSubmission(ctx context.Context, namespace string, fingerprint string) (*Submission, error)

	// SetSubmission remembers a diagnosis submission for duplicate detection.
	SetSubmission(ctx context.Context, namespace string, fingerprint string, sub *Submission, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// The counter expires after window.
	IncrementCounter(ctx context.Context, namespace string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Submission is a recently accepted diagnosis request.
type Submission struct {
	HistoryID   string    `json:"historyId"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `json:"type" mapstructure:"type"`

	// Local LRU cache settings
	LocalMaxSize int           `json:"localMaxSize" mapstructure:"localMaxSize"`
	LocalTTL     time.Duration `json:"localTTL" mapstructure:"localTTL"`

	// Redis settings
	RedisAddr     string `json:"redisAddr" mapstructure:"redisAddr"`
	RedisPassword string `json:"redisPassword" mapstructure:"redisPassword"`
	RedisDB       int    `json:"redisDB" mapstructure:"redisDB"`

	// Two-phase settings
	EnableTwoPhase bool `json:"enableTwoPhase" mapstructure:"enableTwoPhase"` // If true, check local first, then Redis
}
