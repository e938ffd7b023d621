package api

import (
	"github.com/starmap-tiles/server/internal/service"
)

// MapInfo contains information about a map for the API response.
type MapInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MapRegistry holds star map services for all configured maps.
type MapRegistry struct {
	services   map[string]*service.StarMapService
	defaultMap string
	mapOrder   []string
	title      string
}

// NewMapRegistry creates a new map registry.
func NewMapRegistry(defaultMap string, order []string, title string) *MapRegistry {
	return &MapRegistry{
		services:   make(map[string]*service.StarMapService),
		defaultMap: defaultMap,
		mapOrder:   order,
		title:      title,
	}
}

// Register adds a star map service.
func (r *MapRegistry) Register(mapID string, svc *service.StarMapService) {
	r.services[mapID] = svc
}

// Get returns the service for a map, or nil if not found.
func (r *MapRegistry) Get(mapID string) *service.StarMapService {
	return r.services[mapID]
}

// Default returns the default map's service.
func (r *MapRegistry) Default() *service.StarMapService {
	return r.services[r.defaultMap]
}

// DefaultMapID returns the default map ID.
func (r *MapRegistry) DefaultMapID() string {
	return r.defaultMap
}

// MapIDs returns all map IDs in config order.
func (r *MapRegistry) MapIDs() []string {
	return r.mapOrder
}

// Title returns the configured site title.
func (r *MapRegistry) Title() string {
	if r.title != "" {
		return r.title
	}
	return "Star Map"
}

// Maps returns map info for all registered maps.
func (r *MapRegistry) Maps() []MapInfo {
	infos := make([]MapInfo, 0, len(r.mapOrder))
	for _, id := range r.mapOrder {
		svc := r.services[id]
		if svc == nil {
			continue
		}
		infos = append(infos, MapInfo{
			ID:   id,
			Name: svc.Name(),
		})
	}
	return infos
}
