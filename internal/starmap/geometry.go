// Package starmap implements the 3x3 tile window over the bounded star map.
//
// The map is cut into tiles 100 units wide and 30 units high. Nine of them,
// arranged as a 3x3 block around the center tile, are kept loaded at all times.
// The viewport is a window onto this block; dragging it far enough recycles
// tiles from one side and fetches new ones on the other.
package starmap

import (
	"errors"
	"fmt"
	"math"
)

// Tile dimensions in map units.
const (
	TileWidth  = 100
	TileHeight = 30
)

// Number of slots in the window and the index of the center slot.
const (
	SlotCount  = 9
	CenterSlot = 4
)

// ErrInvalidZoom is returned for zoom levels outside the scale table.
var ErrInvalidZoom = errors.New("invalid zoom level")

// zoomScale converts a zoom level into pixels per map unit.
var zoomScale = map[int]int{
	1: 20,
	2: 35,
	3: 50,
	4: 75,
	5: 100,
	6: 150,
}

// MinZoom and MaxZoom delimit the scale table.
const (
	MinZoom = 1
	MaxZoom = 6
)

// UnitScale returns the pixels-per-unit factor for a zoom level.
func UnitScale(zoom int) (int, error) {
	scale, ok := zoomScale[zoom]
	if !ok {
		return 0, fmt.Errorf("%w: %d (want %d..%d)", ErrInvalidZoom, zoom, MinZoom, MaxZoom)
	}
	return scale, nil
}

// ZoomTable returns a copy of the zoom to scale table.
func ZoomTable() map[int]int {
	out := make(map[int]int, len(zoomScale))
	for k, v := range zoomScale {
		out[k] = v
	}
	return out
}

// Bounds is the inclusive unit rectangle of the star map.
type Bounds struct {
	Left   int `json:"left" yaml:"left"`
	Right  int `json:"right" yaml:"right"`
	Bottom int `json:"bottom" yaml:"bottom"`
	Top    int `json:"top" yaml:"top"`
}

// DefaultBounds returns the standard expanse. The 1500 line holds no bodies
// so it is left out, which makes both axes divide evenly into tiles.
func DefaultBounds() Bounds {
	return Bounds{Left: -1500, Right: 1499, Bottom: -1500, Top: 1499}
}

// Validate checks that the bounds are non-empty.
func (b Bounds) Validate() error {
	if b.Right < b.Left || b.Top < b.Bottom {
		return fmt.Errorf("invalid bounds: left=%d right=%d bottom=%d top=%d", b.Left, b.Right, b.Bottom, b.Top)
	}
	return nil
}

// Contains reports whether the whole tile lies inside the bounds.
func (b Bounds) Contains(t Tile) bool {
	return t.Left >= b.Left &&
		t.Right <= b.Right &&
		t.Bottom >= b.Bottom &&
		t.Top <= b.Top
}

// ContainsPoint reports whether a unit coordinate lies inside the bounds.
func (b Bounds) ContainsPoint(x, y int) bool {
	return x >= b.Left && x <= b.Right && y >= b.Bottom && y <= b.Top
}

// SurfaceSize is the pixel size of the scroll surface spanning the bounds.
func (b Bounds) SurfaceSize(scale int) Size {
	return Size{
		Width:  (b.Right - b.Left) * scale,
		Height: (b.Top - b.Bottom) * scale,
	}
}

// Tile is a TileWidth x TileHeight rectangle. All edges are inclusive.
type Tile struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// NewTile builds the tile whose top-left corner is (left, top).
func NewTile(left, top int) Tile {
	return Tile{
		Left:   left,
		Top:    top,
		Right:  left + TileWidth - 1,
		Bottom: top - TileHeight + 1,
	}
}

// Region returns the query rectangle covering the tile.
func (t Tile) Region() Region {
	return Region{Left: t.Left, Top: t.Top, Right: t.Right, Bottom: t.Bottom}
}

// Contains reports whether a unit coordinate lies on the tile.
func (t Tile) Contains(x, y int) bool {
	return x >= t.Left && x <= t.Right && y >= t.Bottom && y <= t.Top
}

func (t Tile) String() string {
	return fmt.Sprintf("%d|%d", t.Left, t.Top)
}

// Region is a rectangular query area in map units, edges inclusive.
type Region struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Width returns the number of unit columns covered.
func (r Region) Width() int { return r.Right - r.Left + 1 }

// Height returns the number of unit rows covered.
func (r Region) Height() int { return r.Top - r.Bottom + 1 }

// Point is a pixel position.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a pixel extent.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// alignedLeft snaps a unit x onto the left edge of its tile column.
func alignedLeft(x int, b Bounds) int {
	return floorDiv(x-b.Left, TileWidth)*TileWidth + b.Left
}

// alignedBottom snaps a unit y onto the bottom edge of its tile row.
func alignedBottom(y int, b Bounds) int {
	return floorDiv(y-b.Bottom, TileHeight)*TileHeight + b.Bottom
}

// AlignedCenterTile snaps an arbitrary unit coordinate onto the tile grid and
// returns the tile containing it.
func AlignedCenterTile(viewX, viewY int, b Bounds) Tile {
	bottom := alignedBottom(viewY, b)
	return NewTile(alignedLeft(viewX, b), bottom+TileHeight-1)
}

// slotDelta returns how many tiles right (dx) and up (dy) a slot sits from
// the center slot.
func slotDelta(slot int) (dx, dy int) {
	return slot%3 - 1, 1 - (8-slot)/3
}

// TileRectForSlot returns the tile occupying slot when center occupies slot 4.
func TileRectForSlot(slot int, center Tile) Tile {
	dx, dy := slotDelta(slot)
	return NewTile(center.Left+dx*TileWidth, center.Top+dy*TileHeight)
}

// SlotContaining returns the slot whose tile holds (x, y), or false when the
// point falls outside the 3x3 block around center.
func SlotContaining(x, y int, center Tile, b Bounds) (int, bool) {
	xDelta := (alignedLeft(x, b) - center.Left) / TileWidth
	yDelta := (alignedBottom(y, b) + TileHeight - 1 - center.Top) / TileHeight
	if abs(xDelta) >= 2 || abs(yDelta) >= 2 {
		return -1, false
	}
	slot := CenterSlot + yDelta*3 + xDelta
	if slot < 0 || slot >= SlotCount {
		return -1, false
	}
	return slot, true
}

// TileToPixelOffset places a tile on the scroll surface, whose origin is the
// top-left corner of the bounds.
func TileToPixelOffset(t Tile, b Bounds, scale int) Point {
	return Point{
		X: (t.Left - b.Left) * scale,
		Y: (b.Top - t.Top) * scale,
	}
}

// TileSize is the pixel size of one tile at scale.
func TileSize(scale int) Size {
	return Size{Width: TileWidth * scale, Height: TileHeight * scale}
}

// CenteringOffset is the surface offset that puts (viewX, viewY) in the
// middle of the viewport.
func CenteringOffset(viewX, viewY int, viewport Size, b Bounds, scale int) Point {
	return Point{
		X: viewport.Width/2 - (viewX-b.Left)*scale,
		Y: viewport.Height/2 - (b.Top-viewY)*scale,
	}
}

// PixelToUnit recovers the unit coordinate in the middle of the viewport from
// the surface offset. It inverts CenteringOffset, rounding half up.
func PixelToUnit(offset Point, viewport Size, b Bounds, scale int) (int, int) {
	s := float64(scale)
	ux := (float64(viewport.Width)/2-float64(offset.X))/s + float64(b.Left)
	uy := float64(b.Top) - (float64(viewport.Height)/2-float64(offset.Y))/s
	return int(math.Floor(ux + 0.5)), int(math.Floor(uy + 0.5))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
