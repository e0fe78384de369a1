// Package directory defines the reviewer directory port (interface).
package directory

import "context"

// ReviewerDirectory resolves the ordered reviewer pool for a collection.
// Ordering is stable between calls; the rotation cursor indexes into it.
type ReviewerDirectory interface {
	PoolFor(ctx context.Context, collectionID string) ([]string, error)
}
