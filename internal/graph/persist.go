package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// LoadPaths reads a cache previously written by SavePaths.
func LoadPaths(path string) (domain.PathCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("graph: read paths: %w", err)
	}
	var cache domain.PathCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("graph: decode paths: %w", err)
	}
	return cache, nil
}

// SavePaths writes cache to path through a temporary file and rename.
func SavePaths(path string, cache domain.PathCache) error {
	data, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("graph: encode paths: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("graph: create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("graph: write paths: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("graph: rename paths: %w", err)
	}
	return nil
}

// LoadOrBuild returns the cache stored at path, building and persisting it
// with router when the file is absent or unreadable.
func LoadOrBuild(ctx context.Context, path string, router *Router) (domain.PathCache, error) {
	cache, err := LoadPaths(path)
	if err == nil {
		router.logger.Info("paths loaded", slog.String("path", path))
		return cache, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		router.logger.Warn("discarding unreadable path cache",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}

	cache, err = router.BuildAll(ctx)
	if err != nil {
		return nil, err
	}
	if err := SavePaths(path, cache); err != nil {
		return nil, err
	}
	return cache, nil
}
