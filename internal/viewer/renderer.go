package viewer

import (
	"log"

	"github.com/starmap-tiles/server/internal/markup"
	"github.com/starmap-tiles/server/internal/starmap"
)

// SocketRenderer is a starmap.Renderer that records element operations for
// the browser. Operations are buffered until Drain.
type SocketRenderer struct {
	templates *markup.Templates
	ops       []Op
}

// NewSocketRenderer creates a renderer using templates for tile elements.
func NewSocketRenderer(templates *markup.Templates) *SocketRenderer {
	return &SocketRenderer{templates: templates}
}

func (r *SocketRenderer) Surface(size starmap.Size, offset starmap.Point) {
	r.ops = append(r.ops, Op{Op: OpSurface, Size: &size, Offset: &offset})
}

func (r *SocketRenderer) Mount(slot int, tile starmap.Tile, offset starmap.Point, size starmap.Size) {
	html, err := r.templates.TileElement(slot, tile, offset, size)
	if err != nil {
		log.Printf("[SocketRenderer] failed to render element for slot %d: %v", slot, err)
	}
	r.ops = append(r.ops, Op{Op: OpMount, Slot: intp(slot), Tile: &tile, Offset: &offset, Size: &size, HTML: html})
}

func (r *SocketRenderer) SetContent(slot int, content starmap.TileContent) {
	r.ops = append(r.ops, Op{Op: OpContent, Slot: intp(slot), Tile: &content.Tile, HTML: content.Markup, Stars: len(content.Stars)})
}

func (r *SocketRenderer) MoveContent(from, to int) {
	r.ops = append(r.ops, Op{Op: OpMove, From: intp(from), To: intp(to)})
}

func (r *SocketRenderer) Reposition(slot int, offset starmap.Point) {
	r.ops = append(r.ops, Op{Op: OpReposition, Slot: intp(slot), Offset: &offset})
}

func (r *SocketRenderer) Clear(slot int) {
	r.ops = append(r.ops, Op{Op: OpClear, Slot: intp(slot)})
}

// Drain returns the buffered operations and resets the buffer.
func (r *SocketRenderer) Drain() []Op {
	ops := r.ops
	r.ops = nil
	return ops
}
