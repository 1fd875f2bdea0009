package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/verdict/internal/domain"
)

// ErrTenantRequired is returned for calls without a tenant.
var ErrTenantRequired = errors.New("tenantID is required")

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	return nil
}

// New creates a new cache based on configuration.
// For Community tier: returns LRU cache.
// For Pro tier with two-phase: returns TwoPhaseCache wrapping LRU + Redis.
// For Pro tier without two-phase: returns Redis cache.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "", "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache pairs Redis (L2) with a local LRU (L1).
//
// Holds are finalized and released from any node, so L2 is authoritative for
// every read and claim. L1 keeps a last-known copy that is served only while
// Redis is unreachable, bounded by the local TTL.
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	l1TTL := cfg.LocalTTL
	if l1TTL <= 0 {
		l1TTL = time.Minute
	}

	return &TwoPhaseCache{
		local:  NewLRUCache(cfg.LocalMaxSize),
		remote: remote,
		l1TTL:  l1TTL,
	}, nil
}

// Get reads L2 and refreshes the L1 copy. When L2 fails, a live L1 copy is
// returned instead of the error.
func (c *TwoPhaseCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	val, err := c.remote.Get(ctx, tenantID, key)
	if err != nil {
		if stale, _ := c.local.Get(ctx, tenantID, key); stale != nil {
			return stale, nil
		}
		return nil, err
	}

	if val == nil {
		_ = c.local.Delete(ctx, tenantID, key)
		return nil, nil
	}
	_ = c.local.Set(ctx, tenantID, key, val, c.localTTL(0))
	return val, nil
}

// Set writes L2, then mirrors into L1.
func (c *TwoPhaseCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if err := c.remote.Set(ctx, tenantID, key, value, ttl); err != nil {
		return err
	}
	return c.local.Set(ctx, tenantID, key, value, c.localTTL(ttl))
}

// Delete removes the key from both tiers. The L1 copy goes even when L2
// fails so a released hold is never served from L1.
func (c *TwoPhaseCache) Delete(ctx context.Context, tenantID string, key string) error {
	_ = c.local.Delete(ctx, tenantID, key)
	return c.remote.Delete(ctx, tenantID, key)
}

// SetIfAbsent claims key in L2 and mirrors a successful claim into L1.
func (c *TwoPhaseCache) SetIfAbsent(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := c.remote.SetIfAbsent(ctx, tenantID, key, value, ttl)
	if err != nil || !ok {
		return ok, err
	}
	_ = c.local.Set(ctx, tenantID, key, value, c.localTTL(ttl))
	return true, nil
}

// DeleteIfValue compares and deletes in L2 and drops the L1 copy on success.
func (c *TwoPhaseCache) DeleteIfValue(ctx context.Context, tenantID string, key string, expected []byte) (bool, error) {
	ok, err := c.remote.DeleteIfValue(ctx, tenantID, key, expected)
	if err != nil || !ok {
		return ok, err
	}
	_ = c.local.Delete(ctx, tenantID, key)
	return true, nil
}

// localTTL caps ttl at the L1 lifetime; zero means the L1 lifetime.
func (c *TwoPhaseCache) localTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > c.l1TTL {
		return c.l1TTL
	}
	return ttl
}

// Ping reports L2 health; L1 cannot fail.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
