// Package colormap provides the colors used to paint star map snapshots.
package colormap

import (
	"hash/fnv"
	"image/color"
	"strings"
)

// Colormap maps normalized values [0, 1] to colors.
type Colormap interface {
	At(t float64) color.Color
	AtIndex(i int) color.Color
}

// LinearColormap is a linear interpolation colormap.
type LinearColormap struct {
	colors []color.RGBA
}

// At returns the color at position t (0-1).
func (c LinearColormap) At(t float64) color.Color {
	if t <= 0 {
		return c.colors[0]
	}
	if t >= 1 {
		return c.colors[len(c.colors)-1]
	}

	idx := t * float64(len(c.colors)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(c.colors) {
		upper = len(c.colors) - 1
	}

	frac := idx - float64(lower)
	return interpolate(c.colors[lower], c.colors[upper], frac)
}

// AtIndex returns color at index i (wraps around).
func (c LinearColormap) AtIndex(i int) color.Color {
	return c.colors[i%len(c.colors)]
}

func interpolate(c1, c2 color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c1.R) + t*(float64(c2.R)-float64(c1.R))),
		G: uint8(float64(c1.G) + t*(float64(c2.G)-float64(c1.G))),
		B: uint8(float64(c1.B) + t*(float64(c2.B)-float64(c1.B))),
		A: uint8(float64(c1.A) + t*(float64(c2.A)-float64(c1.A))),
	}
}

// Space is the background gradient, from tile edge (0) to tile center (1).
var Space = LinearColormap{
	colors: []color.RGBA{
		{4, 4, 16, 255},
		{8, 10, 30, 255},
		{14, 16, 44, 255},
	},
}

// Halo fades a star's glow from its core (0) to transparent (1).
var Halo = LinearColormap{
	colors: []color.RGBA{
		{255, 255, 255, 200},
		{255, 255, 255, 90},
		{255, 255, 255, 30},
		{255, 255, 255, 0},
	},
}

// starColors holds the star classes the catalogue knows about.
var starColors = map[string]color.RGBA{
	"blue":    {90, 140, 255, 255},
	"green":   {90, 220, 120, 255},
	"magenta": {230, 80, 220, 255},
	"red":     {240, 80, 60, 255},
	"white":   {240, 240, 250, 255},
	"yellow":  {255, 220, 80, 255},
}

// StarColorNames returns the known star colors in a stable order.
func StarColorNames() []string {
	return []string{"blue", "green", "magenta", "red", "white", "yellow"}
}

// StarColor returns the paint for a star color name. Unknown names are white.
func StarColor(name string) color.RGBA {
	if c, ok := starColors[strings.ToLower(strings.TrimSpace(name))]; ok {
		return c
	}
	return starColors["white"]
}

// CategoricalColormap provides distinct colors for categories.
type CategoricalColormap struct {
	colors []color.RGBA
}

// At returns color at position t.
func (c CategoricalColormap) At(t float64) color.Color {
	idx := int(t * float64(len(c.colors)))
	if idx >= len(c.colors) {
		idx = len(c.colors) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return c.colors[idx]
}

// AtIndex returns color at index.
func (c CategoricalColormap) AtIndex(i int) color.Color {
	if i < 0 {
		i = -i
	}
	return c.colors[i%len(c.colors)]
}

// Categorical colormap with 10 distinct colors
var Categorical = CategoricalColormap{
	colors: []color.RGBA{
		{31, 119, 180, 255},  // Blue
		{255, 127, 14, 255},  // Orange
		{44, 160, 44, 255},   // Green
		{214, 39, 40, 255},   // Red
		{148, 103, 189, 255}, // Purple
		{140, 86, 75, 255},   // Brown
		{227, 119, 194, 255}, // Pink
		{127, 127, 127, 255}, // Gray
		{188, 189, 34, 255},  // Olive
		{23, 190, 207, 255},  // Cyan
	},
}

// BodyColor picks a stable color for a body type from cmap.
func BodyColor(cmap Colormap, bodyType string) color.Color {
	h := fnv.New32a()
	h.Write([]byte(bodyType))
	return cmap.AtIndex(int(h.Sum32() & 0x7fffffff))
}
