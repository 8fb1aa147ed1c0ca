package graph

import (
	"context"
	"sync"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// PathCell is a write-once holder for a path cache built in the background.
// Consumers block in Wait until Set has been called once.
type PathCell struct {
	once  sync.Once
	ready chan struct{}
	paths domain.PathCache
	err   error
}

// NewPathCell returns an empty cell.
func NewPathCell() *PathCell {
	return &PathCell{ready: make(chan struct{})}
}

// ReadyPathCell returns a cell already holding paths.
func ReadyPathCell(paths domain.PathCache) *PathCell {
	c := NewPathCell()
	c.Set(paths, nil)
	return c
}

// Set stores the result. Only the first call has any effect; it reports
// whether this call was the one that stored.
func (c *PathCell) Set(paths domain.PathCache, err error) bool {
	stored := false
	c.once.Do(func() {
		c.paths, c.err = paths, err
		close(c.ready)
		stored = true
	})
	return stored
}

// Ready is closed once the cell holds a value.
func (c *PathCell) Ready() <-chan struct{} { return c.ready }

// Wait blocks until the cell is set or ctx is done.
func (c *PathCell) Wait(ctx context.Context) (domain.PathCache, error) {
	select {
	case <-c.ready:
		return c.paths, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the paths without blocking. It fails with
// domain.ErrPathsNotReady until the cell is set.
func (c *PathCell) Get() (domain.PathCache, error) {
	select {
	case <-c.ready:
		return c.paths, c.err
	default:
		return nil, domain.ErrPathsNotReady
	}
}
