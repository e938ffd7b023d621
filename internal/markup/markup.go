// Package markup turns tiles, stars and bodies into HTML fragments.
package markup

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"sync"

	"github.com/starmap-tiles/server/internal/starmap"
)

// Star and body boxes in map units.
const (
	starUnits = 3
	bodyUnits = 1
)

const tileTemplate = `<div class="starmap-tile" id="starmap_tile{{.Slot}}" data-left="{{.Tile.Left}}" data-top="{{.Tile.Top}}" style="left:{{.Left}}px;top:{{.Top}}px;width:{{.Width}}px;height:{{.Height}}px"></div>`

const starsTemplate = `{{range .Stars}}<div class="starmap-star" id="star{{.ID}}" data-x="{{.X}}" data-y="{{.Y}}" title="{{.Name}}" style="left:{{.Left}}px;top:{{.Top}}px;width:{{.Size}}px;height:{{.Size}}px">` +
	`<img src="{{$.Assets}}/star_map/{{.Color}}.png" alt="{{.Name}}" width="{{.Size}}" height="{{.Size}}">` +
	`<span class="starmap-star-name">{{.Name}}</span></div>` +
	`{{range .Bodies}}<div class="starmap-body starmap-body-{{.Type}}" id="body{{.ID}}" data-x="{{.X}}" data-y="{{.Y}}" title="{{.Name}}" style="left:{{.Left}}px;top:{{.Top}}px;width:{{.Size}}px;height:{{.Size}}px">` +
	`{{if .Image}}<img src="{{$.Assets}}/star_system/{{.Image}}.png" alt="{{.Name}}" width="{{.Size}}" height="{{.Size}}">{{end}}</div>{{end}}` +
	`{{end}}`

// Templates renders tile markup. It implements starmap.Template.
type Templates struct {
	assets string
	tile   *template.Template
	stars  *template.Template
	pool   sync.Pool
}

// New parses the templates. assetsURL prefixes star and body images.
func New(assetsURL string) (*Templates, error) {
	tile, err := template.New("tile").Parse(tileTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tile template: %w", err)
	}
	stars, err := template.New("stars").Parse(starsTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stars template: %w", err)
	}
	return &Templates{
		assets: strings.TrimRight(assetsURL, "/"),
		tile:   tile,
		stars:  stars,
		pool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 4*1024))
			},
		},
	}, nil
}

type starView struct {
	ID     int64
	Name   string
	X, Y   int
	Color  string
	Left   int
	Top    int
	Size   int
	Bodies []bodyView
}

type bodyView struct {
	ID    int64
	Name  string
	X, Y  int
	Type  string
	Image string
	Left  int
	Top   int
	Size  int
}

// Offset places a unit coordinate inside a tile, in pixels from the tile's
// top-left corner.
func Offset(tile starmap.Tile, x, y, scale int) starmap.Point {
	return starmap.Point{
		X: (x - tile.Left) * scale,
		Y: (tile.Top - y) * scale,
	}
}

// RenderTile renders the stars of one tile.
func (t *Templates) RenderTile(tile starmap.Tile, stars []starmap.Star, scale int) (string, error) {
	views := make([]starView, 0, len(stars))
	for _, s := range stars {
		p := Offset(tile, s.X, s.Y, scale)
		sv := starView{
			ID:    s.ID,
			Name:  s.Name,
			X:     s.X,
			Y:     s.Y,
			Color: s.Color,
			Left:  p.X,
			Top:   p.Y,
			Size:  starUnits * scale,
		}
		for _, b := range s.Bodies {
			bp := Offset(tile, b.X, b.Y, scale)
			sv.Bodies = append(sv.Bodies, bodyView{
				ID:    b.ID,
				Name:  b.Name,
				X:     b.X,
				Y:     b.Y,
				Type:  b.Type,
				Image: b.Image,
				Left:  bp.X,
				Top:   bp.Y,
				Size:  bodyUnits * scale,
			})
		}
		views = append(views, sv)
	}

	return t.execute(t.stars, map[string]interface{}{
		"Assets": t.assets,
		"Stars":  views,
	})
}

// TileElement renders the empty element mounted for a slot.
func (t *Templates) TileElement(slot int, tile starmap.Tile, offset starmap.Point, size starmap.Size) (string, error) {
	return t.execute(t.tile, map[string]interface{}{
		"Slot":   slot,
		"Tile":   tile,
		"Left":   offset.X,
		"Top":    offset.Y,
		"Width":  size.Width,
		"Height": size.Height,
	})
}

func (t *Templates) execute(tmpl *template.Template, data interface{}) (string, error) {
	buf := t.pool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		t.pool.Put(buf)
	}()
	if err := tmpl.Execute(buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
