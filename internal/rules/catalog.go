package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Loader builds a fresh snapshot, usually from the repository.
type Loader func(ctx context.Context) (*Snapshot, error)

// Catalog serves the current knowledge-base snapshot.
// Reload swaps the snapshot atomically; readers holding the old one keep a
// consistent view until they finish.
type Catalog struct {
	current atomic.Pointer[Snapshot]
	load    Loader
	mu      sync.Mutex // serializes reloads
}

// NewCatalog loads the initial snapshot.
func NewCatalog(ctx context.Context, load Loader) (*Catalog, error) {
	c := &Catalog{load: load}
	if _, err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// StaticCatalog wraps a fixed snapshot. Reload is a no-op.
func StaticCatalog(s *Snapshot) *Catalog {
	c := &Catalog{
		load: func(context.Context) (*Snapshot, error) { return s, nil },
	}
	c.current.Store(s)
	return c
}

// Current returns the snapshot in effect.
func (c *Catalog) Current() *Snapshot {
	return c.current.Load()
}

// Reload rebuilds the snapshot. On failure the previous snapshot stays.
func (c *Catalog) Reload(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := c.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}
	c.current.Store(next)

	symptoms, diseases, rules := next.Stats()
	slog.Info("knowledge base loaded",
		"symptoms", symptoms,
		"diseases", diseases,
		"active_rules", rules,
	)
	return next, nil
}
