// Package source normalizes external platforms (Reddit, GitHub, Wikipedia)
// into graph nodes and relationships.
package source

import (
	"context"
	"errors"

	"social-graph-crawler/internal/models"
)

// ErrEntityNotFound means the reference does not resolve to an entity on
// the source. Terminal for that branch, non-fatal to a crawl.
var ErrEntityNotFound = errors.New("entity not found")

// ErrSourceUnavailable means the source kept failing after the adapter's
// own backoff retries were exhausted. Retryable at the caller's discretion.
var ErrSourceUnavailable = errors.New("source unavailable")

// Adapter resolves entities and discovers their relationships on one
// external source. Every outbound call acquires a rate-limit token first
// and retries transient failures internally; callers never re-retry.
type Adapter interface {
	Source() models.Source
	ResolveEntity(ctx context.Context, reference string) (models.Node, error)
	FetchRelationships(ctx context.Context, node models.Node) ([]models.Discovery, error)
}
