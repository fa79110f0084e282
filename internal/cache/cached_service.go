package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"social-graph-crawler/internal/models"
	"social-graph-crawler/internal/query"
)

// GraphQuerier is the read API the cache sits in front of.
type GraphQuerier interface {
	Neighbors(ctx context.Context, nodeID string, direction models.Direction, limit int) ([]query.Neighbor, error)
	Subgraph(ctx context.Context, startID string, depth, maxNodes int, direction models.Direction) (models.Subgraph, error)
	ShortestPath(ctx context.Context, fromID, toID string) (models.Path, error)
	Stats(ctx context.Context) (models.GraphStats, error)
}

// CachedService serves query results from the cache when present and
// fills it on miss. Cache failures fall through to the live service;
// errors from the live service are never cached.
type CachedService struct {
	next  GraphQuerier
	store Store
	ttl   time.Duration
}

// NewCachedService wraps a querier with a TTL cache.
func NewCachedService(next GraphQuerier, store Store, ttl time.Duration) *CachedService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedService{next: next, store: store, ttl: ttl}
}

// Neighbors serves the neighbor list through the cache.
func (c *CachedService) Neighbors(ctx context.Context, nodeID string, direction models.Direction, limit int) ([]query.Neighbor, error) {
	key := fmt.Sprintf("graph:neighbors:%s:%s:%d", nodeID, direction, limit)
	return readThrough(ctx, c, key, func() ([]query.Neighbor, error) {
		return c.next.Neighbors(ctx, nodeID, direction, limit)
	})
}

// Subgraph serves bounded expansions through the cache.
func (c *CachedService) Subgraph(ctx context.Context, startID string, depth, maxNodes int, direction models.Direction) (models.Subgraph, error) {
	key := fmt.Sprintf("graph:subgraph:%s:%d:%d:%s", startID, depth, maxNodes, direction)
	return readThrough(ctx, c, key, func() (models.Subgraph, error) {
		return c.next.Subgraph(ctx, startID, depth, maxNodes, direction)
	})
}

// ShortestPath serves path lookups through the cache.
func (c *CachedService) ShortestPath(ctx context.Context, fromID, toID string) (models.Path, error) {
	key := fmt.Sprintf("graph:path:%s:%s", fromID, toID)
	return readThrough(ctx, c, key, func() (models.Path, error) {
		return c.next.ShortestPath(ctx, fromID, toID)
	})
}

// Stats serves aggregate statistics through the cache.
func (c *CachedService) Stats(ctx context.Context) (models.GraphStats, error) {
	return readThrough(ctx, c, "graph:stats", func() (models.GraphStats, error) {
		return c.next.Stats(ctx)
	})
}

// readThrough fetches key from the cache, falling back to compute and
// filling the cache on miss.
func readThrough[T any](ctx context.Context, c *CachedService, key string, compute func() (T, error)) (T, error) {
	var zero T

	payload, found, err := c.store.Get(ctx, key)
	if err != nil {
		log.Printf("cache read failed key=%s: %v", key, err)
	} else if found {
		var cached T
		decodeErr := json.Unmarshal(payload, &cached)
		if decodeErr == nil {
			observeCacheHit()
			return cached, nil
		}
		log.Printf("cache entry corrupt key=%s: %v", key, decodeErr)
	}
	observeCacheMiss()

	result, err := compute()
	if err != nil {
		return zero, err
	}

	if encoded, err := json.Marshal(result); err == nil {
		if err := c.store.Set(ctx, key, encoded, c.ttl); err != nil {
			log.Printf("cache write failed key=%s: %v", key, err)
		}
	}
	return result, nil
}
