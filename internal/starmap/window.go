package starmap

import (
	"context"
	"errors"
	"fmt"
	"log"
)

var (
	// ErrClosed is returned by operations on a closed window.
	ErrClosed = errors.New("window closed")
	// ErrNotRendered is returned by DragReleased before the first FullRender.
	ErrNotRendered = errors.New("window not rendered yet")
)

// SlotState describes what a slot currently shows.
type SlotState int

const (
	SlotEmpty SlotState = iota
	SlotLoading
	SlotLoaded
	SlotFailed
	// SlotOutOfBounds marks a placeholder tile lying outside the map. It is
	// never fetched.
	SlotOutOfBounds
)

func (s SlotState) String() string {
	switch s {
	case SlotEmpty:
		return "empty"
	case SlotLoading:
		return "loading"
	case SlotLoaded:
		return "loaded"
	case SlotFailed:
		return "failed"
	case SlotOutOfBounds:
		return "out_of_bounds"
	default:
		return fmt.Sprintf("SlotState(%d)", int(s))
	}
}

type slotEntry struct {
	tile    Tile
	state   SlotState
	ticket  uint64
	content TileContent
}

// SlotInfo is a read-only view of one slot.
type SlotInfo struct {
	Index   int
	Tile    Tile
	State   SlotState
	Offset  Point
	Content TileContent
}

// ViewState is the focus, zoom and surface placement after the last render
// or drag.
type ViewState struct {
	ViewX    int   `json:"view_x"`
	ViewY    int   `json:"view_y"`
	Zoom     int   `json:"zoom"`
	Scale    int   `json:"scale"`
	Offset   Point `json:"offset"`
	Surface  Size  `json:"surface"`
	Viewport Size  `json:"viewport"`
}

// Config contains window configuration.
type Config struct {
	Bounds       Bounds
	Viewport     Size
	Zoom         int // initial zoom level, default 1
	FetchWorkers int // concurrent fetches, default 3
}

// Window is the 3x3 tile window. It is not safe for concurrent use: one
// goroutine owns it and feeds it drags and completed fetches.
type Window struct {
	bounds   Bounds
	viewport Size
	zoom     int
	scale    int

	center   Tile
	slots    [SlotCount]slotEntry
	view     ViewState
	rendered bool
	closed   bool

	seq   uint64 // last ticket id
	epoch uint64 // bumped by every full render

	renderer Renderer
	template Template
	fetch    *fetcher
}

// New creates a window and starts its fetch workers.
func New(cfg Config, renderer Renderer, source MapDataSource, tmpl Template) (*Window, error) {
	if renderer == nil || source == nil || tmpl == nil {
		return nil, errors.New("renderer, source and template are required")
	}
	if cfg.Bounds == (Bounds{}) {
		cfg.Bounds = DefaultBounds()
	}
	if err := cfg.Bounds.Validate(); err != nil {
		return nil, err
	}
	if cfg.Zoom == 0 {
		cfg.Zoom = MinZoom
	}
	scale, err := UnitScale(cfg.Zoom)
	if err != nil {
		return nil, err
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = 3
	}

	return &Window{
		bounds:   cfg.Bounds,
		viewport: cfg.Viewport,
		zoom:     cfg.Zoom,
		scale:    scale,
		renderer: renderer,
		template: tmpl,
		fetch:    newFetcher(source, cfg.FetchWorkers),
	}, nil
}

// RenderOption adjusts a full render.
type RenderOption func(*renderOptions)

type renderOptions struct {
	zoom int
}

// WithZoom renders at the given zoom level instead of the current one.
func WithZoom(level int) RenderOption {
	return func(o *renderOptions) { o.zoom = level }
}

// FullRender discards all nine slots and rebuilds the window centered on
// (viewX, viewY). Fetches are queued center first; their results arrive on
// Completions.
func (w *Window) FullRender(viewX, viewY int, opts ...RenderOption) error {
	if w.closed {
		return ErrClosed
	}
	o := renderOptions{zoom: w.zoom}
	for _, opt := range opts {
		opt(&o)
	}
	scale, err := UnitScale(o.zoom)
	if err != nil {
		return err
	}

	w.zoom = o.zoom
	w.scale = scale
	w.epoch++
	w.fetch.epoch.Store(w.epoch)

	center := AlignedCenterTile(viewX, viewY, w.bounds)
	size := TileSize(scale)

	var next [SlotCount]slotEntry
	for s := 0; s < SlotCount; s++ {
		tile := TileRectForSlot(s, center)
		next[s] = slotEntry{tile: tile}
		w.renderer.Mount(s, tile, TileToPixelOffset(tile, w.bounds, scale), size)
	}
	w.slots = next
	w.center = center

	w.issue(CenterSlot)
	for s := 0; s < SlotCount; s++ {
		if s != CenterSlot {
			w.issue(s)
		}
	}

	offset := CenteringOffset(viewX, viewY, w.viewport, w.bounds, scale)
	surface := w.bounds.SurfaceSize(scale)
	w.renderer.Surface(surface, offset)

	w.view = ViewState{
		ViewX:    viewX,
		ViewY:    viewY,
		Zoom:     w.zoom,
		Scale:    scale,
		Offset:   offset,
		Surface:  surface,
		Viewport: w.viewport,
	}
	w.rendered = true
	return nil
}

// issue queues a fetch for slot, or marks it as a placeholder when its tile
// lies outside the map. It reports whether a fetch was queued.
func (w *Window) issue(slot int) bool {
	e := &w.slots[slot]
	if !w.bounds.Contains(e.tile) {
		e.state = SlotOutOfBounds
		e.ticket = 0
		return false
	}
	w.seq++
	e.ticket = w.seq
	e.state = SlotLoading
	w.fetch.queue.push(ticket{id: w.seq, epoch: w.epoch, slot: slot, tile: e.tile})
	return true
}

// SetZoom re-renders around the current focus at a new zoom level.
func (w *Window) SetZoom(level int) error {
	return w.FullRender(w.view.ViewX, w.view.ViewY, WithZoom(level))
}

// Resize records new viewport dimensions. They apply from the next render
// or drag.
func (w *Window) Resize(viewport Size) {
	w.viewport = viewport
	w.view.Viewport = viewport
}

// Completions delivers finished fetches. The owner passes each one to Apply.
func (w *Window) Completions() <-chan Completion {
	return w.fetch.done
}

// Apply stores a finished fetch in the slot currently holding its ticket.
// Results for tickets no slot holds any more are dropped and Apply returns
// false.
func (w *Window) Apply(c Completion) bool {
	slot := -1
	for s := range w.slots {
		e := &w.slots[s]
		if e.state == SlotLoading && e.ticket == c.ticket.id && e.tile == c.ticket.tile {
			slot = s
			break
		}
	}
	if slot < 0 {
		return false
	}

	e := &w.slots[slot]
	if c.Err != nil {
		log.Printf("[Window] fetch for tile %s (slot %d) failed: %v", e.tile, slot, c.Err)
		e.state = SlotFailed
		return true
	}

	markup, err := w.template.RenderTile(e.tile, c.Stars, w.scale)
	if err != nil {
		log.Printf("[Window] failed to render markup for tile %s: %v", e.tile, err)
		e.state = SlotFailed
		return true
	}

	e.content = TileContent{Tile: e.tile, Scale: w.scale, Stars: c.Stars, Markup: markup}
	e.state = SlotLoaded
	w.renderer.SetContent(slot, e.content)
	return true
}

// Pending returns the number of slots waiting for a fetch.
func (w *Window) Pending() int {
	n := 0
	for _, e := range w.slots {
		if e.state == SlotLoading {
			n++
		}
	}
	return n
}

// Settle applies completions until no slot is loading.
func (w *Window) Settle(ctx context.Context) error {
	for w.Pending() > 0 {
		select {
		case c := <-w.fetch.done:
			w.Apply(c)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops the fetch workers. Fetches in flight are abandoned.
func (w *Window) Close() {
	if w.closed {
		return
	}
	w.closed = true
	w.fetch.stop()
}

// Center returns the tile in slot 4.
func (w *Window) Center() Tile { return w.center }

// View returns the current view state.
func (w *Window) View() ViewState { return w.view }

// Bounds returns the map bounds.
func (w *Window) Bounds() Bounds { return w.bounds }

// Rendered reports whether FullRender has run.
func (w *Window) Rendered() bool { return w.rendered }

// Slots returns a snapshot of the nine slots.
func (w *Window) Slots() [SlotCount]SlotInfo {
	var out [SlotCount]SlotInfo
	for s, e := range w.slots {
		out[s] = SlotInfo{
			Index:   s,
			Tile:    e.tile,
			State:   e.state,
			Offset:  TileToPixelOffset(e.tile, w.bounds, w.scale),
			Content: e.content,
		}
	}
	return out
}
