package domain

import (
	"context"
	"time"
)

// BlacklistStore persists the trader's cooldown state between restarts.
type BlacklistStore interface {
	Save(ctx context.Context, entries []BlacklistEntry) error
	Load(ctx context.Context, since time.Time) ([]BlacklistEntry, error)
}

// FillStore records executed orders.
type FillStore interface {
	InsertBatch(ctx context.Context, fills []Fill) error
	ListRecent(ctx context.Context, limit int) ([]Fill, error)
}
