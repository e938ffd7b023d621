package mapdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/starmap-tiles/server/internal/cache"
	"github.com/starmap-tiles/server/internal/starmap"
)

// RegionQuerier reads the stars of a region from a catalogue.
type RegionQuerier interface {
	QueryRegion(ctx context.Context, r starmap.Region) ([]starmap.Star, error)
}

// LocalSource serves regions from a catalogue, memoizing results in the
// query cache.
type LocalSource struct {
	mapID string
	store RegionQuerier
	cache *cache.Manager
}

// NewLocalSource creates a local source. cacheMgr may be nil.
func NewLocalSource(mapID string, store RegionQuerier, cacheMgr *cache.Manager) *LocalSource {
	return &LocalSource{mapID: mapID, store: store, cache: cacheMgr}
}

// FetchRegion implements starmap.MapDataSource.
func (s *LocalSource) FetchRegion(ctx context.Context, r starmap.Region) ([]starmap.Star, error) {
	if err := CheckRegion(r); err != nil {
		return nil, err
	}

	key := cache.RegionKey(s.mapID, r)
	if s.cache != nil {
		if data, ok := s.cache.GetQuery(key); ok {
			var stars []starmap.Star
			if err := json.Unmarshal(data, &stars); err == nil {
				return stars, nil
			}
			log.Printf("[LocalSource] discarding unreadable cache entry %s", key)
		}
	}

	stars, err := s.store.QueryRegion(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("failed to query region: %w", err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(stars); err == nil {
			s.cache.SetQuery(key, data)
		}
	}
	return stars, nil
}
