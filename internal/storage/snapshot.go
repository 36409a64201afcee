package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ChartKey names the cached chart payload of one (asset, currency) pair.
func ChartKey(assetID, currency string, days int) string {
	return fmt.Sprintf("%s_%s_%d", assetID, strings.ToLower(currency), days)
}

// SnapshotCache keeps the last good raw payload per key, one file each.
// Neither Save nor Load ever returns an error; failures are logged.
type SnapshotCache struct {
	dir string
}

// NewSnapshotCache creates a cache rooted at dir. The directory is created
// lazily on the first Save.
func NewSnapshotCache(dir string) *SnapshotCache {
	return &SnapshotCache{dir: dir}
}

func (c *SnapshotCache) path(key string) string {
	// One file per key, never outside dir.
	return filepath.Join(c.dir, url.PathEscape(key)+".json")
}

// Save replaces the payload stored under key.
func (c *SnapshotCache) Save(key string, data []byte) {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		slog.Warn("Failed to create cache dir", slog.String("dir", c.dir), slog.Any("error", err))
		return
	}

	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		slog.Warn("Failed to create cache file", slog.String("key", key), slog.Any("error", err))
		return
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmpName)
		slog.Warn("Failed to write cache file", slog.String("key", key), slog.Any("error", werr))
		return
	}

	// Rename keeps readers from seeing a half-written payload.
	if err := os.Rename(tmpName, c.path(key)); err != nil {
		os.Remove(tmpName)
		slog.Warn("Failed to commit cache file", slog.String("key", key), slog.Any("error", err))
	}
}

// Load returns the payload stored under key, if any.
func (c *SnapshotCache) Load(key string) ([]byte, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read cache file", slog.String("key", key), slog.Any("error", err))
		}
		return nil, false
	}
	return data, true
}
