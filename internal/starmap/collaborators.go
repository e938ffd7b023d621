package starmap

import "context"

// Star is a star returned by a region query, with the bodies orbiting it.
type Star struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Color  string `json:"color"`
	Zone   string `json:"zone,omitempty"`
	Bodies []Body `json:"bodies,omitempty"`
}

// Body is a planet, gas giant or asteroid field orbiting a star.
type Body struct {
	ID     int64  `json:"id"`
	StarID int64  `json:"star_id"`
	Name   string `json:"name"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Orbit  int    `json:"orbit"`
	Type   string `json:"type"`
	Image  string `json:"image,omitempty"`
}

// MapDataSource fetches the stars inside a region. Implementations may block;
// the window only calls them from its fetch workers.
type MapDataSource interface {
	FetchRegion(ctx context.Context, region Region) ([]Star, error)
}

// TileContent is what a renderer shows inside one tile.
type TileContent struct {
	Tile   Tile
	Scale  int
	Stars  []Star
	Markup string
}

// Renderer displays the window. Slot ids are 0..8; a renderer keeps one tile
// element per slot.
type Renderer interface {
	// Surface sizes the scroll surface and moves it to offset.
	Surface(size Size, offset Point)
	// Mount creates or resets the empty element for slot.
	Mount(slot int, tile Tile, offset Point, size Size)
	// SetContent replaces the content shown by slot.
	SetContent(slot int, content TileContent)
	// MoveContent moves the content of from into to. from keeps nothing.
	MoveContent(from, to int)
	// Reposition moves the element of slot on the surface.
	Reposition(slot int, offset Point)
	// Clear empties slot.
	Clear(slot int)
}

// Template turns fetched stars into tile markup.
type Template interface {
	RenderTile(tile Tile, stars []Star, scale int) (string, error)
}
