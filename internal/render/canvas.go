// Package render paints the tile window into PNG snapshots using fogleman/gg.
package render

import (
	"bytes"
	"image/color"
	"image/png"
	"sync"

	"github.com/fogleman/gg"
	"github.com/starmap-tiles/server/internal/markup"
	"github.com/starmap-tiles/server/internal/starmap"
	"github.com/starmap-tiles/server/pkg/colormap"
)

// Config contains canvas configuration.
type Config struct {
	Viewport starmap.Size
	// LabelScale is the smallest pixels-per-unit scale at which star names
	// are drawn.
	LabelScale int
	// Grid outlines the tile elements.
	Grid bool

	// Palettes; nil picks colormap.Space, colormap.Halo and
	// colormap.Categorical.
	Background colormap.Colormap
	Halo       colormap.Colormap
	Bodies     colormap.Colormap
}

type element struct {
	tile    starmap.Tile
	offset  starmap.Point
	size    starmap.Size
	content *starmap.TileContent
}

// Canvas is a starmap.Renderer that keeps the tile elements in memory and
// paints the viewport on demand.
type Canvas struct {
	config   Config
	surface  starmap.Size
	offset   starmap.Point
	elements [starmap.SlotCount]element
}

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 64*1024))
	},
}

// NewCanvas creates a canvas for a viewport.
func NewCanvas(cfg Config) *Canvas {
	if cfg.Viewport.Width <= 0 {
		cfg.Viewport.Width = 800
	}
	if cfg.Viewport.Height <= 0 {
		cfg.Viewport.Height = 600
	}
	if cfg.LabelScale <= 0 {
		cfg.LabelScale = 50
	}
	if cfg.Background == nil {
		cfg.Background = colormap.Space
	}
	if cfg.Halo == nil {
		cfg.Halo = colormap.Halo
	}
	if cfg.Bodies == nil {
		cfg.Bodies = colormap.Categorical
	}
	return &Canvas{config: cfg}
}

func (c *Canvas) Surface(size starmap.Size, offset starmap.Point) {
	c.surface = size
	c.offset = offset
}

func (c *Canvas) Mount(slot int, tile starmap.Tile, offset starmap.Point, size starmap.Size) {
	c.elements[slot] = element{tile: tile, offset: offset, size: size}
}

func (c *Canvas) SetContent(slot int, content starmap.TileContent) {
	c.elements[slot].content = &content
}

func (c *Canvas) MoveContent(from, to int) {
	c.elements[to].content = c.elements[from].content
	c.elements[from].content = nil
}

func (c *Canvas) Reposition(slot int, offset starmap.Point) {
	c.elements[slot].offset = offset
}

func (c *Canvas) Clear(slot int) {
	c.elements[slot].content = nil
}

// StarCount returns the number of stars currently held by the elements.
func (c *Canvas) StarCount() int {
	n := 0
	for _, e := range c.elements {
		if e.content != nil {
			n += len(e.content.Stars)
		}
	}
	return n
}

// PNG paints the viewport.
func (c *Canvas) PNG() ([]byte, error) {
	vw, vh := c.config.Viewport.Width, c.config.Viewport.Height
	dc := gg.NewContext(vw, vh)

	dc.SetColor(color.Black)
	dc.Clear()

	for _, e := range c.elements {
		x := float64(c.offset.X + e.offset.X)
		y := float64(c.offset.Y + e.offset.Y)
		w := float64(e.size.Width)
		h := float64(e.size.Height)
		if x+w < 0 || y+h < 0 || x > float64(vw) || y > float64(vh) || w == 0 {
			continue
		}

		dc.SetColor(c.config.Background.At(0.5))
		dc.DrawRectangle(x, y, w, h)
		dc.Fill()
		if c.config.Grid {
			dc.SetRGBA255(80, 80, 120, 255)
			dc.SetLineWidth(1)
			dc.DrawRectangle(x+0.5, y+0.5, w-1, h-1)
			dc.Stroke()
		}

		if e.content != nil {
			c.drawStars(dc, x, y, e.content)
		}
	}

	return encode(dc)
}

func (c *Canvas) drawStars(dc *gg.Context, x, y float64, content *starmap.TileContent) {
	scale := float64(content.Scale)
	for _, s := range content.Stars {
		p := markup.Offset(content.Tile, s.X, s.Y, content.Scale)
		cx := x + float64(p.X) + 1.5*scale
		cy := y + float64(p.Y) + 1.5*scale
		radius := 0.6 * scale

		for i := 3; i >= 1; i-- {
			dc.SetColor(c.config.Halo.At(float64(i) / 3))
			dc.DrawCircle(cx, cy, radius*(1+float64(i)*0.5))
			dc.Fill()
		}
		dc.SetColor(colormap.StarColor(s.Color))
		dc.DrawCircle(cx, cy, radius)
		dc.Fill()

		for _, b := range s.Bodies {
			bp := markup.Offset(content.Tile, b.X, b.Y, content.Scale)
			dc.SetColor(colormap.BodyColor(c.config.Bodies, b.Type))
			dc.DrawCircle(x+float64(bp.X)+0.5*scale, y+float64(bp.Y)+0.5*scale, 0.3*scale)
			dc.Fill()
		}

		if content.Scale >= c.config.LabelScale && s.Name != "" {
			dc.SetRGB(0.9, 0.9, 0.9)
			dc.DrawStringAnchored(s.Name, cx, cy+2*scale, 0.5, 0.5)
		}
	}
}

func encode(dc *gg.Context) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		bufferPool.Put(buf)
	}()

	// Use fast PNG encoder
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}
