// Package cache provides caching implementations for repository interfaces.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"vision_backend/internal/feature/annotation/domain/entity"
	"vision_backend/internal/feature/annotation/usecase"
)

// CachingAnnotationRepository decorates an AnnotationRepository with Redis
// caching of FindByID lookups. It implements the decorator pattern,
// transparently adding caching without modifying the underlying repository.
// Annotations are append-only, so a cached entry can only go stale through
// the administrative delete, which invalidates it.
type CachingAnnotationRepository struct {
	inner     usecase.AnnotationRepository
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

// NewCachingAnnotationRepository decorates an AnnotationRepository with Redis caching.
// If ttl is 0, it defaults to 5 minutes. If namespace is empty, it uses "annotations".
func NewCachingAnnotationRepository(rdb *redis.Client, ttl time.Duration, inner usecase.AnnotationRepository, namespace string) *CachingAnnotationRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if namespace == "" {
		namespace = "annotations"
	}
	return &CachingAnnotationRepository{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
	}
}

// Save persists via the underlying repository and primes the cache entry.
func (c *CachingAnnotationRepository) Save(ctx context.Context, a *entity.Annotation) error {
	if err := c.inner.Save(ctx, a); err != nil {
		return err
	}
	if c.rdb == nil {
		return nil
	}
	// Best effort: don't fail the save if caching fails
	if b, err := json.Marshal(a); err == nil {
		_ = c.rdb.Set(ctx, c.cacheKey(a.ID), b, c.ttl).Err()
	}
	return nil
}

// FindByID retrieves an annotation, checking cache first then falling back to the store.
func (c *CachingAnnotationRepository) FindByID(ctx context.Context, id string) (*entity.Annotation, error) {
	// Bypass cache if Redis is not configured
	if c.rdb == nil {
		return c.inner.FindByID(ctx, id)
	}

	key := c.cacheKey(id)

	// 1) Check cache
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out entity.Annotation
		if err := json.Unmarshal(b, &out); err == nil {
			return &out, nil
		}
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, key).Err()
	}

	// 2) Fallback to the store
	out, err := c.inner.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// 3) Store in cache (best effort)
	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
	}

	return out, nil
}

// FindByMetadata passes through to the store; query results are not cached
// because any write would invalidate an unbounded set of filter keys.
func (c *CachingAnnotationRepository) FindByMetadata(ctx context.Context, filter map[string]string) (usecase.AnnotationIterator, error) {
	return c.inner.FindByMetadata(ctx, filter)
}

// Delete removes the annotation and invalidates its cache entry.
func (c *CachingAnnotationRepository) Delete(ctx context.Context, id string) error {
	if err := c.inner.Delete(ctx, id); err != nil {
		return err
	}
	if c.rdb != nil {
		_ = c.rdb.Del(ctx, c.cacheKey(id)).Err() // Best effort
	}
	return nil
}

// cacheKey generates the cache key for an annotation id.
func (c *CachingAnnotationRepository) cacheKey(id string) string {
	return fmt.Sprintf("%s:%s", c.namespace, safe(id))
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
