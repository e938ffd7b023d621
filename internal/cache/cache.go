// Package cache provides caching for map snapshots and region queries.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/starmap-tiles/server/internal/starmap"
)

// Config contains cache configuration.
type Config struct {
	SnapshotCacheSizeMB int
	SnapshotTTL         time.Duration
	QueryCacheSize      int
}

// Manager manages snapshot and region query caches.
type Manager struct {
	snapshotCache *bigcache.BigCache
	queryCache    *lru.Cache[string, []byte]

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	rawBytes    atomic.Int64
	storedBytes atomic.Int64
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 10 * time.Minute
	}
	if cfg.QueryCacheSize <= 0 {
		cfg.QueryCacheSize = 1000
	}

	// Configure snapshot cache
	snapshotCacheConfig := bigcache.Config{
		Shards:             64,
		LifeWindow:         cfg.SnapshotTTL,
		CleanWindow:        cfg.SnapshotTTL / 2,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       256 * 1024, // 256KB per viewport PNG
		HardMaxCacheSize:   cfg.SnapshotCacheSizeMB,
		Verbose:            false,
	}

	snapshotCache, err := bigcache.New(context.Background(), snapshotCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot cache: %w", err)
	}

	// Create query cache
	queryCache, err := lru.New[string, []byte](cfg.QueryCacheSize)
	if err != nil {
		snapshotCache.Close()
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		snapshotCache.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		snapshotCache.Close()
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Manager{
		snapshotCache: snapshotCache,
		queryCache:    queryCache,
		encoder:       encoder,
		decoder:       decoder,
	}, nil
}

// GetSnapshot retrieves a snapshot from cache.
func (m *Manager) GetSnapshot(key string) ([]byte, bool) {
	data, err := m.snapshotCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetSnapshot stores a snapshot in cache.
func (m *Manager) SetSnapshot(key string, data []byte) error {
	return m.snapshotCache.Set(key, data)
}

// GetQuery retrieves a query result from cache. Entries are stored
// zstd-compressed and returned decompressed.
func (m *Manager) GetQuery(key string) ([]byte, bool) {
	packed, ok := m.queryCache.Get(key)
	if !ok {
		return nil, false
	}
	data, err := m.decoder.DecodeAll(packed, nil)
	if err != nil {
		m.queryCache.Remove(key)
		return nil, false
	}
	return data, true
}

// SetQuery stores a query result in cache.
func (m *Manager) SetQuery(key string, data []byte) {
	packed := m.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	m.rawBytes.Add(int64(len(data)))
	m.storedBytes.Add(int64(len(packed)))
	m.queryCache.Add(key, packed)
}

// SnapshotKey generates a cache key for a viewport snapshot.
func SnapshotKey(mapID string, x, y, zoom int, size starmap.Size) string {
	return fmt.Sprintf("snap:%s:%d/%d/%d:%dx%d", mapID, zoom, x, y, size.Width, size.Height)
}

// RegionKey generates a cache key for a region query.
func RegionKey(mapID string, r starmap.Region) string {
	return fmt.Sprintf("region:%s:%d|%d|%d|%d", mapID, r.Left, r.Top, r.Right, r.Bottom)
}

// InvalidateMap drops every cached snapshot and region query of one map.
// It returns the number of entries removed.
func (m *Manager) InvalidateMap(mapID string) int {
	removed := 0

	regionPrefix := fmt.Sprintf("region:%s:", mapID)
	for _, key := range m.queryCache.Keys() {
		if strings.HasPrefix(key, regionPrefix) && m.queryCache.Remove(key) {
			removed++
		}
	}

	// Collect first; bigcache shards are locked while an entry is read.
	snapPrefix := fmt.Sprintf("snap:%s:", mapID)
	var snaps []string
	it := m.snapshotCache.Iterator()
	for it.SetNext() {
		entry, err := it.Value()
		if err != nil {
			continue
		}
		if strings.HasPrefix(entry.Key(), snapPrefix) {
			snaps = append(snaps, entry.Key())
		}
	}
	for _, key := range snaps {
		if m.snapshotCache.Delete(key) == nil {
			removed++
		}
	}
	return removed
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"snapshot_cache_len": m.snapshotCache.Len(),
		"snapshot_cache_cap": m.snapshotCache.Capacity(),
		"query_cache_len":    m.queryCache.Len(),
	}
	if raw := m.rawBytes.Load(); raw > 0 {
		stats["query_compression_ratio"] = float64(m.storedBytes.Load()) / float64(raw)
	}
	return stats
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	m.decoder.Close()
	m.encoder.Close()
	return m.snapshotCache.Close()
}
