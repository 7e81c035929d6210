package store

import (
	"context"
	"time"

	"github.com/ashureev/leadflow/internal/domain"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedRepository is a read-through, write-through LRU cache over an origin
// Repository. Only sessions are cached; every write reaches the origin first.
type CachedRepository struct {
	origin Repository
	cache  *lru.Cache[string, *domain.Session]
}

// NewCached wraps origin with an LRU cache holding up to size sessions.
func NewCached(origin Repository, size int) (*CachedRepository, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, *domain.Session](size)
	if err != nil {
		return nil, err
	}
	return &CachedRepository{origin: origin, cache: cache}, nil
}

// GetSession serves from cache, falling back to the origin.
func (c *CachedRepository) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	if s, ok := c.cache.Get(id); ok {
		return s.Clone(), nil
	}
	s, err := c.origin.GetSession(ctx, id)
	if err != nil || s == nil {
		return s, err
	}
	c.cache.Add(id, s.Clone())
	return s, nil
}

// SaveSession writes to the origin, then refreshes the cache.
func (c *CachedRepository) SaveSession(ctx context.Context, sess *domain.Session) error {
	if err := c.origin.SaveSession(ctx, sess); err != nil {
		c.cache.Remove(sess.ID)
		return err
	}
	c.cache.Add(sess.ID, sess.Clone())
	return nil
}

// DeleteSession removes the session from both layers.
func (c *CachedRepository) DeleteSession(ctx context.Context, id string) error {
	c.cache.Remove(id)
	return c.origin.DeleteSession(ctx, id)
}

// CleanupExpiredSessions delegates to the origin and drops cached entries
// that are past the ttl.
func (c *CachedRepository) CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	n, err := c.origin.CleanupExpiredSessions(ctx, ttl)
	if err != nil {
		return n, err
	}
	cutoff := time.Now().Add(-ttl)
	for _, id := range c.cache.Keys() {
		if s, ok := c.cache.Peek(id); ok && s.UpdatedAt.Before(cutoff) {
			c.cache.Remove(id)
		}
	}
	return n, nil
}

// SaveLead delegates to the origin.
func (c *CachedRepository) SaveLead(ctx context.Context, lead domain.LeadSnapshot) error {
	return c.origin.SaveLead(ctx, lead)
}

// Ping delegates to the origin.
func (c *CachedRepository) Ping(ctx context.Context) error { return c.origin.Ping(ctx) }

// Close closes the origin and purges the cache.
func (c *CachedRepository) Close() error {
	c.cache.Purge()
	return c.origin.Close()
}
