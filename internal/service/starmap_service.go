// Package service provides business logic for the star map server.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/starmap-tiles/server/internal/cache"
	"github.com/starmap-tiles/server/internal/mapdata"
	"github.com/starmap-tiles/server/internal/markup"
	"github.com/starmap-tiles/server/internal/render"
	"github.com/starmap-tiles/server/internal/starmap"
	"github.com/starmap-tiles/server/internal/starstore"
)

// Largest snapshot edge in pixels.
const MaxSnapshotEdge = 4096

var (
	// ErrInvalidSize is returned for snapshot sizes outside 1..MaxSnapshotEdge.
	ErrInvalidSize = errors.New("invalid snapshot size")
	// ErrNoCatalogue is returned for catalogue lookups on a map backed by a
	// remote server.
	ErrNoCatalogue = errors.New("map has no local catalogue")
)

// WindowDefaults are applied to the tile windows a service creates.
type WindowDefaults struct {
	Zoom         int
	Viewport     starmap.Size
	FetchWorkers int
}

// StarMapServiceConfig contains star map service configuration.
type StarMapServiceConfig struct {
	MapID     string
	Name      string
	Bounds    starmap.Bounds
	Source    starmap.MapDataSource
	Store     *starstore.Store // nil for remote maps
	Cache     *cache.Manager
	Templates *markup.Templates
	Window    WindowDefaults

	SnapshotTimeout time.Duration
}

// StarMapService serves one star map: region queries, snapshots and the
// windows backing live viewers.
type StarMapService struct {
	mapID     string
	name      string
	bounds    starmap.Bounds
	source    starmap.MapDataSource
	store     *starstore.Store
	cache     *cache.Manager
	templates *markup.Templates
	window    WindowDefaults

	snapshotTimeout time.Duration
}

// Metadata describes a map for clients.
type Metadata struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Bounds      starmap.Bounds `json:"bounds"`
	TileWidth   int            `json:"tile_width"`
	TileHeight  int            `json:"tile_height"`
	ZoomLevels  map[int]int    `json:"zoom_levels"`
	DefaultZoom int            `json:"default_zoom"`
	Viewport    starmap.Size   `json:"viewport"`
	Source      string         `json:"source"`
	StarCount   *int           `json:"star_count,omitempty"`
}

// NewStarMapService creates a new star map service.
func NewStarMapService(cfg StarMapServiceConfig) (*StarMapService, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("map %q has no data source", cfg.MapID)
	}
	if cfg.Templates == nil {
		return nil, fmt.Errorf("map %q has no templates", cfg.MapID)
	}
	if cfg.Bounds == (starmap.Bounds{}) {
		cfg.Bounds = starmap.DefaultBounds()
	}
	if err := cfg.Bounds.Validate(); err != nil {
		return nil, fmt.Errorf("map %q: %w", cfg.MapID, err)
	}
	if cfg.Window.Zoom == 0 {
		cfg.Window.Zoom = starmap.MinZoom
	}
	if _, err := starmap.UnitScale(cfg.Window.Zoom); err != nil {
		return nil, fmt.Errorf("map %q: %w", cfg.MapID, err)
	}
	if cfg.Window.Viewport.Width <= 0 || cfg.Window.Viewport.Height <= 0 {
		cfg.Window.Viewport = starmap.Size{Width: 800, Height: 600}
	}
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = 15 * time.Second
	}

	mapID := cfg.MapID
	if mapID == "" {
		mapID = "default"
	}
	name := cfg.Name
	if name == "" {
		name = mapID
	}

	return &StarMapService{
		mapID:           mapID,
		name:            name,
		bounds:          cfg.Bounds,
		source:          cfg.Source,
		store:           cfg.Store,
		cache:           cfg.Cache,
		templates:       cfg.Templates,
		window:          cfg.Window,
		snapshotTimeout: cfg.SnapshotTimeout,
	}, nil
}

// ID returns the map ID.
func (s *StarMapService) ID() string { return s.mapID }

// Name returns the display name.
func (s *StarMapService) Name() string { return s.name }

// Bounds returns the map bounds.
func (s *StarMapService) Bounds() starmap.Bounds { return s.bounds }

// Templates returns the tile markup templates.
func (s *StarMapService) Templates() *markup.Templates { return s.templates }

// WindowDefaults returns the defaults applied to new windows.
func (s *StarMapService) WindowDefaults() WindowDefaults { return s.window }

// QueryRegion returns the stars in a region.
func (s *StarMapService) QueryRegion(ctx context.Context, r starmap.Region) ([]starmap.Star, error) {
	if err := mapdata.CheckRegion(r); err != nil {
		return nil, err
	}
	return s.source.FetchRegion(ctx, r)
}

// Star returns one star from the local catalogue.
func (s *StarMapService) Star(ctx context.Context, id int64) (*starmap.Star, error) {
	if s.store == nil {
		return nil, ErrNoCatalogue
	}
	return s.store.Star(ctx, id)
}

// DeleteStar removes a star and its bodies from the local catalogue and
// drops the map's cached regions and snapshots.
func (s *StarMapService) DeleteStar(ctx context.Context, id int64) error {
	if s.store == nil {
		return ErrNoCatalogue
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if s.cache != nil {
		n := s.cache.InvalidateMap(s.mapID)
		log.Printf("[StarMapService] deleted star %d from %s, dropped %d cache entries", id, s.mapID, n)
	}
	return nil
}

// Metadata returns the map description.
func (s *StarMapService) Metadata(ctx context.Context) (*Metadata, error) {
	md := &Metadata{
		ID:          s.mapID,
		Name:        s.name,
		Bounds:      s.bounds,
		TileWidth:   starmap.TileWidth,
		TileHeight:  starmap.TileHeight,
		ZoomLevels:  starmap.ZoomTable(),
		DefaultZoom: s.window.Zoom,
		Viewport:    s.window.Viewport,
		Source:      "remote",
	}
	if s.store != nil {
		md.Source = "local"
		n, err := s.store.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count stars: %w", err)
		}
		md.StarCount = &n
	}
	return md, nil
}

// NewWindow creates a tile window drawing into renderer. A zero viewport
// takes the service default.
func (s *StarMapService) NewWindow(renderer starmap.Renderer, viewport starmap.Size) (*starmap.Window, error) {
	if viewport.Width <= 0 || viewport.Height <= 0 {
		viewport = s.window.Viewport
	}
	return starmap.New(starmap.Config{
		Bounds:       s.bounds,
		Viewport:     viewport,
		Zoom:         s.window.Zoom,
		FetchWorkers: s.window.FetchWorkers,
	}, renderer, s.source, s.templates)
}

// Snapshot renders the viewport centered on (x, y) at zoom to PNG. The
// window is settled before painting so every in-bounds tile is populated.
func (s *StarMapService) Snapshot(ctx context.Context, x, y, zoom int, size starmap.Size) ([]byte, error) {
	if size.Width <= 0 || size.Height <= 0 || size.Width > MaxSnapshotEdge || size.Height > MaxSnapshotEdge {
		return nil, fmt.Errorf("%dx%d: %w", size.Width, size.Height, ErrInvalidSize)
	}
	if zoom == 0 {
		zoom = s.window.Zoom
	}
	if _, err := starmap.UnitScale(zoom); err != nil {
		return nil, err
	}

	key := cache.SnapshotKey(s.mapID, x, y, zoom, size)
	if s.cache != nil {
		if data, ok := s.cache.GetSnapshot(key); ok {
			return data, nil
		}
	}

	canvas := render.NewCanvas(render.Config{Viewport: size})
	w, err := s.NewWindow(canvas, size)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	if err := w.FullRender(x, y, starmap.WithZoom(zoom)); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.snapshotTimeout)
	defer cancel()
	if err := w.Settle(ctx); err != nil {
		return nil, fmt.Errorf("failed to settle window: %w", err)
	}

	failed := 0
	for _, slot := range w.Slots() {
		if slot.State == starmap.SlotFailed {
			failed++
		}
	}

	data, err := canvas.PNG()
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	// Partial snapshots are served but not cached.
	if failed > 0 {
		log.Printf("[StarMapService] snapshot %s has %d failed tiles (%d stars drawn)", key, failed, canvas.StarCount())
	} else if s.cache != nil {
		if err := s.cache.SetSnapshot(key, data); err != nil {
			log.Printf("[StarMapService] failed to cache snapshot %s: %v", key, err)
		}
	}
	return data, nil
}
