package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/verdict/internal/domain"
)

// fakeClock drives LRU expiry without sleeping.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newClockedLRU(size int) (*LRUCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	c := NewLRUCache(size)
	c.now = clock.now
	return c, clock
}

func TestLRUCache(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetGetDelete", func(t *testing.T) {
		c, _ := newClockedLRU(100)

		if err := c.Set(ctx, tenantID, "hold:h1", []byte(`{"id":"h1"}`), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		val, err := c.Get(ctx, tenantID, "hold:h1")
		if err != nil || string(val) != `{"id":"h1"}` {
			t.Fatalf("unexpected Get result %q, %v", val, err)
		}

		if err := c.Delete(ctx, tenantID, "hold:h1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := c.Get(ctx, tenantID, "hold:h1"); val != nil {
			t.Error("expected nil after delete")
		}
		if err := c.Delete(ctx, tenantID, "hold:h1"); err != nil {
			t.Errorf("deleting a missing key should succeed, got %v", err)
		}
	})

	t.Run("MissIsNilNil", func(t *testing.T) {
		c, _ := newClockedLRU(10)
		val, err := c.Get(ctx, tenantID, "resource:none")
		if err != nil || val != nil {
			t.Errorf("expected nil, nil for a miss, got %q, %v", val, err)
		}
	})

	t.Run("ExpiryIsHalfOpen", func(t *testing.T) {
		c, clock := newClockedLRU(10)
		_ = c.Set(ctx, tenantID, "hold:h2", []byte("v"), 10*time.Minute)

		clock.advance(10*time.Minute - time.Nanosecond)
		if val, _ := c.Get(ctx, tenantID, "hold:h2"); val == nil {
			t.Error("expected value just before expiry")
		}

		clock.advance(time.Nanosecond)
		if val, _ := c.Get(ctx, tenantID, "hold:h2"); val != nil {
			t.Error("expected nil at expiry")
		}
		if size, _ := c.Stats(); size != 0 {
			t.Errorf("expected expired entry to be evicted, size %d", size)
		}
	})

	t.Run("LeastRecentlyUsedEvicted", func(t *testing.T) {
		c, _ := newClockedLRU(3)
		for _, k := range []string{"a", "b", "c"} {
			_ = c.Set(ctx, tenantID, k, []byte(k), time.Minute)
		}
		_, _ = c.Get(ctx, tenantID, "a")
		_ = c.Set(ctx, tenantID, "d", []byte("d"), time.Minute)

		if val, _ := c.Get(ctx, tenantID, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := c.Get(ctx, tenantID, "a"); val == nil {
			t.Error("expected 'a' to survive")
		}
		if size, capacity := c.Stats(); size != 3 || capacity != 3 {
			t.Errorf("expected 3/3, got %d/%d", size, capacity)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		c, _ := newClockedLRU(10)
		ok1, _ := c.SetIfAbsent(ctx, "acme", "resource:room-1", []byte("h1"), time.Minute)
		ok2, _ := c.SetIfAbsent(ctx, "globex", "resource:room-1", []byte("h2"), time.Minute)
		if !ok1 || !ok2 {
			t.Error("expected each tenant to claim its own resource key")
		}

		val, _ := c.Get(ctx, "globex", "resource:room-1")
		if string(val) != "h2" {
			t.Errorf("expected globex claim, got %q", val)
		}
	})

	t.Run("SetIfAbsent", func(t *testing.T) {
		c, clock := newClockedLRU(10)

		ok, err := c.SetIfAbsent(ctx, tenantID, "resource:room-2", []byte("first"), time.Minute)
		if err != nil || !ok {
			t.Fatalf("expected first claim to succeed, got %v, %v", ok, err)
		}
		if ok, _ := c.SetIfAbsent(ctx, tenantID, "resource:room-2", []byte("second"), time.Minute); ok {
			t.Error("expected second claim to fail while the first is live")
		}
		if val, _ := c.Get(ctx, tenantID, "resource:room-2"); string(val) != "first" {
			t.Errorf("expected 'first', got %q", val)
		}

		clock.advance(time.Minute)
		if ok, _ := c.SetIfAbsent(ctx, tenantID, "resource:room-2", []byte("third"), time.Minute); !ok {
			t.Error("expected claim to succeed once the first lapsed")
		}
	})

	t.Run("DeleteIfValue", func(t *testing.T) {
		c, clock := newClockedLRU(10)
		_ = c.Set(ctx, tenantID, "resource:room-3", []byte("stale-hold"), time.Minute)

		ok, err := c.DeleteIfValue(ctx, tenantID, "resource:room-3", []byte("other-hold"))
		if err != nil {
			t.Fatalf("DeleteIfValue failed: %v", err)
		}
		if ok {
			t.Error("expected mismatched value to be kept")
		}
		if val, _ := c.Get(ctx, tenantID, "resource:room-3"); string(val) != "stale-hold" {
			t.Errorf("expected claim to survive, got %q", val)
		}

		if ok, _ := c.DeleteIfValue(ctx, tenantID, "resource:room-3", []byte("stale-hold")); !ok {
			t.Error("expected matching value to be deleted")
		}
		if val, _ := c.Get(ctx, tenantID, "resource:room-3"); val != nil {
			t.Errorf("expected claim to be gone, got %q", val)
		}

		_ = c.Set(ctx, tenantID, "resource:room-4", []byte("h1"), time.Minute)
		clock.advance(time.Minute)
		if ok, _ := c.DeleteIfValue(ctx, tenantID, "resource:room-4", []byte("h1")); ok {
			t.Error("expected expired entry to report nothing deleted")
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		c, _ := newClockedLRU(10)
		if err := c.Set(ctx, "", "k", nil, time.Minute); !errors.Is(err, ErrTenantRequired) {
			t.Errorf("Set: expected ErrTenantRequired, got %v", err)
		}
		if _, err := c.Get(ctx, "", "k"); !errors.Is(err, ErrTenantRequired) {
			t.Errorf("Get: expected ErrTenantRequired, got %v", err)
		}
		if _, err := c.SetIfAbsent(ctx, "", "k", nil, time.Minute); !errors.Is(err, ErrTenantRequired) {
			t.Errorf("SetIfAbsent: expected ErrTenantRequired, got %v", err)
		}
		if _, err := c.DeleteIfValue(ctx, "", "k", nil); !errors.Is(err, ErrTenantRequired) {
			t.Errorf("DeleteIfValue: expected ErrTenantRequired, got %v", err)
		}
	})

	t.Run("CloseClears", func(t *testing.T) {
		c, _ := newClockedLRU(10)
		_ = c.Set(ctx, tenantID, "k", []byte("v"), time.Minute)

		if err := c.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
		if err := c.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if val, _ := c.Get(ctx, tenantID, "k"); val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestNewCache(t *testing.T) {
	for _, typ := range []string{"", "memory"} {
		c, err := New(domain.CacheConfig{Type: typ, LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New(%q) failed: %v", typ, err)
		}
		if _, ok := c.(*LRUCache); !ok {
			t.Errorf("New(%q): expected LRUCache, got %T", typ, c)
		}
		_ = c.Close()
	}

	if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
		t.Error("expected error for unsupported type")
	}
}
