// Package cache provides the collection count cache. Counting large
// tables is the most expensive part of an unfiltered list request, so the
// total for a resource type is cached briefly and invalidated on any
// mutation of that type.
package cache

import (
	"context"
	"time"
)

// CountCache stores collection totals per resource type
type CountCache interface {
	// Get returns the cached total and whether one was present
	Get(ctx context.Context, resourceType string) (int, bool, error)

	// Set stores the total for the configured TTL
	Set(ctx context.Context, resourceType string, total int) error

	// Invalidate drops the entry for a resource type
	Invalidate(ctx context.Context, resourceType string) error
}

const keyPrefix = "keel:count:"

// key builds the cache key for a resource type
func key(resourceType string) string {
	return keyPrefix + resourceType
}

// DefaultTTL bounds staleness when no TTL is configured
const DefaultTTL = 30 * time.Second
