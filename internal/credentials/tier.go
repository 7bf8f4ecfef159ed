package credentials

import (
	"context"
	"time"
)

// Tier is one storage backend. Store tries tiers in order.
type Tier interface {
	// Name identifies the tier in logs.
	Name() string
	// Put replaces any entry with the same ID.
	Put(ctx context.Context, e Entry) error
	// Get returns the entry for id. Tiers may drop expired entries on read.
	Get(ctx context.Context, id ID) (Entry, bool, error)
	// Delete removes the given IDs; missing IDs are ignored.
	Delete(ctx context.Context, ids ...ID) error
}

// Sweeper is implemented by tiers that can bulk-delete expired entries.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}
