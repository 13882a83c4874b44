package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sipadi/padi/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	userID := "user-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, userID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, userID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, userID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, userID, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, userID, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, userID, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, userID, "expiring", []byte("temp"), 10*time.Millisecond)

		val, _ := cache.Get(ctx, userID, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, userID, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small := NewLRUCache(3)

		_ = small.Set(ctx, userID, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, userID, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, userID, "c", []byte("3"), time.Minute)

		// Touch 'a' so 'b' becomes the oldest.
		_, _ = small.Get(ctx, userID, "a")

		_ = small.Set(ctx, userID, "d", []byte("4"), time.Minute)

		if val, _ := small.Get(ctx, userID, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := small.Get(ctx, userID, "a"); val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("NamespaceIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "user-001", "shared-key", []byte("one"), time.Minute)
		_ = cache.Set(ctx, "user-002", "shared-key", []byte("two"), time.Minute)

		val1, _ := cache.Get(ctx, "user-001", "shared-key")
		val2, _ := cache.Get(ctx, "user-002", "shared-key")

		if string(val1) != "one" {
			t.Errorf("expected 'one', got '%s'", string(val1))
		}
		if string(val2) != "two" {
			t.Errorf("expected 'two', got '%s'", string(val2))
		}
	})

	t.Run("RequiresNamespace", func(t *testing.T) {
		if err := cache.Set(ctx, "", "key", []byte("value"), time.Minute); err == nil {
			t.Error("expected error for empty namespace")
		}
		if _, err := cache.Get(ctx, "", "key"); err == nil {
			t.Error("expected error for empty namespace")
		}
		if _, err := cache.IncrementCounter(ctx, "", "key", time.Minute); err == nil {
			t.Error("expected error for empty namespace")
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		window := 100 * time.Millisecond

		count1, err := cache.IncrementCounter(ctx, userID, "burst", window)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if count1 != 1 {
			t.Errorf("expected count 1, got %d", count1)
		}

		count2, _ := cache.IncrementCounter(ctx, userID, "burst", window)
		if count2 != 2 {
			t.Errorf("expected count 2, got %d", count2)
		}

		time.Sleep(150 * time.Millisecond)

		count3, _ := cache.IncrementCounter(ctx, userID, "burst", window)
		if count3 != 1 {
			t.Errorf("expected count 1 after window reset, got %d", count3)
		}
	})

	t.Run("IncrementCounterConcurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = cache.IncrementCounter(ctx, userID, "parallel", time.Minute)
			}()
		}
		wg.Wait()

		count, _ := cache.IncrementCounter(ctx, userID, "parallel", time.Minute)
		if count != 51 {
			t.Errorf("expected count 51, got %d", count)
		}
	})

	t.Run("SubmissionCache", func(t *testing.T) {
		at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
		sub := &domain.Submission{HistoryID: "hist-001", SubmittedAt: at}

		if err := cache.SetSubmission(ctx, userID, "fp-001", sub, time.Minute); err != nil {
			t.Fatalf("SetSubmission failed: %v", err)
		}

		got, err := cache.GetSubmission(ctx, userID, "fp-001")
		if err != nil {
			t.Fatalf("GetSubmission failed: %v", err)
		}
		if got == nil || got.HistoryID != "hist-001" {
			t.Fatalf("expected hist-001, got %+v", got)
		}
		if !got.SubmittedAt.Equal(at) {
			t.Errorf("expected SubmittedAt %v, got %v", at, got.SubmittedAt)
		}

		miss, err := cache.GetSubmission(ctx, userID, "fp-unknown")
		if err != nil || miss != nil {
			t.Errorf("expected nil, nil for unknown fingerprint, got %v, %v", miss, err)
		}
	})

	t.Run("CorruptSubmission", func(t *testing.T) {
		_ = cache.Set(ctx, userID, submissionKey("fp-bad"), []byte("{not json"), time.Minute)
		if _, err := cache.GetSubmission(ctx, userID, "fp-bad"); err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, userID, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, userID, "k2", []byte("v2"), time.Minute)

		size, capacity := statsCache.Stats()
		if size != 2 {
			t.Errorf("expected size 2, got %d", size)
		}
		if capacity != 50 {
			t.Errorf("expected capacity 50, got %d", capacity)
		}
	})

	t.Run("DefaultSize", func(t *testing.T) {
		_, capacity := NewLRUCache(0).Stats()
		if capacity != defaultLocalMaxSize {
			t.Errorf("expected capacity %d, got %d", defaultLocalMaxSize, capacity)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, userID, "k", []byte("v"), time.Minute)

		if err := testCache.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}

		if val, _ := testCache.Get(ctx, userID, "k"); val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	ctx := context.Background()
	userID := "user-001"

	newPair := func() (*TwoPhaseCache, *LRUCache, *LRUCache) {
		local := NewLRUCache(10)
		remote := NewLRUCache(10)
		return newTwoPhase(local, remote, time.Minute), local, remote
	}

	t.Run("SetWritesBothLevels", func(t *testing.T) {
		c, local, remote := newPair()
		if err := c.Set(ctx, userID, "k", []byte("v"), time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if val, _ := local.Get(ctx, userID, "k"); string(val) != "v" {
			t.Errorf("expected L1 value, got %q", val)
		}
		if val, _ := remote.Get(ctx, userID, "k"); string(val) != "v" {
			t.Errorf("expected L2 value, got %q", val)
		}
	})

	t.Run("L2HitPopulatesL1", func(t *testing.T) {
		c, local, remote := newPair()
		_ = remote.Set(ctx, userID, "k", []byte("remote"), time.Hour)

		val, err := c.Get(ctx, userID, "k")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "remote" {
			t.Errorf("expected 'remote', got %q", val)
		}
		if val, _ := local.Get(ctx, userID, "k"); string(val) != "remote" {
			t.Error("expected L1 to be populated from L2")
		}
	})

	t.Run("SubmissionFromL2", func(t *testing.T) {
		c, local, remote := newPair()
		sub := &domain.Submission{HistoryID: "hist-009", SubmittedAt: time.Now()}
		_ = remote.SetSubmission(ctx, userID, "fp", sub, time.Hour)

		got, err := c.GetSubmission(ctx, userID, "fp")
		if err != nil || got == nil {
			t.Fatalf("GetSubmission = %v, %v", got, err)
		}
		if got.HistoryID != "hist-009" {
			t.Errorf("expected hist-009, got %s", got.HistoryID)
		}
		if cached, _ := local.GetSubmission(ctx, userID, "fp"); cached == nil {
			t.Error("expected L1 to be populated from L2")
		}
	})

	t.Run("DeleteBothLevels", func(t *testing.T) {
		c, local, remote := newPair()
		_ = c.SetSubmission(ctx, userID, "fp", &domain.Submission{HistoryID: "h"}, time.Hour)
		if err := c.Delete(ctx, userID, submissionKey("fp")); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if sub, _ := local.GetSubmission(ctx, userID, "fp"); sub != nil {
			t.Error("expected L1 entry removed")
		}
		if sub, _ := remote.GetSubmission(ctx, userID, "fp"); sub != nil {
			t.Error("expected L2 entry removed")
		}
	})

	t.Run("CountersUseL2Only", func(t *testing.T) {
		c, local, remote := newPair()
		_, _ = c.IncrementCounter(ctx, userID, "burst", time.Minute)
		_, _ = c.IncrementCounter(ctx, userID, "burst", time.Minute)

		if n, _ := remote.IncrementCounter(ctx, userID, "burst", time.Minute); n != 3 {
			t.Errorf("expected remote count 3, got %d", n)
		}
		if n, _ := local.IncrementCounter(ctx, userID, "burst", time.Minute); n != 1 {
			t.Errorf("expected untouched local counter, got %d", n)
		}
	})

	t.Run("ShortTTLBoundsL1", func(t *testing.T) {
		c, local, _ := newPair()
		_ = c.Set(ctx, userID, "short", []byte("v"), 10*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		if val, _ := local.Get(ctx, userID, "short"); val != nil {
			t.Error("expected L1 entry to honour the shorter TTL")
		}
	})

	t.Run("DefaultL1TTL", func(t *testing.T) {
		c := newTwoPhase(NewLRUCache(1), NewLRUCache(1), 0)
		if c.l1TTL != 5*time.Minute {
			t.Errorf("expected 5m default, got %v", c.l1TTL)
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cache, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
