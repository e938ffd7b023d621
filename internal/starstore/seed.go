package starstore

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/starmap-tiles/server/internal/starmap"
	"github.com/starmap-tiles/server/pkg/colormap"
)

// Orbit offsets in map units, indexed by orbit number minus one.
var orbitOffsets = [8][2]int{
	{1, 2}, {2, 1}, {2, -1}, {1, -2},
	{-1, -2}, {-2, -1}, {-2, 1}, {-1, 2},
}

// OrbitOffset returns the unit offset of a body on the given orbit (1..8).
func OrbitOffset(orbit int) (dx, dy int, ok bool) {
	if orbit < 1 || orbit > len(orbitOffsets) {
		return 0, 0, false
	}
	o := orbitOffsets[orbit-1]
	return o[0], o[1], true
}

var (
	syllables = []string{"al", "be", "cor", "da", "el", "fo", "gar", "hy", "ix", "ka", "lum", "mi", "nor", "os", "pra", "qu", "ris", "sol", "tau", "ul", "ve", "wex", "yr", "zen"}
	zones     = []string{"core", "inner", "outer", "rim"}
	bodyTypes = []struct {
		name   string
		images int
	}{
		{"planet", 12},
		{"gas_giant", 6},
		{"asteroid_belt", 3},
		{"moon", 4},
		{"station", 2},
	}
)

// SeedOptions controls catalogue generation.
type SeedOptions struct {
	Bounds starmap.Bounds
	Stars  int
	Seed   uint64
	// Spacing is the size in units of the grid cells stars are spread over.
	// At most one star lands in each cell.
	Spacing int
}

// Generate builds a deterministic catalogue. The same options always yield
// the same stars. Orbits whose body would fall outside the bounds stay empty.
func Generate(opts SeedOptions) []starmap.Star {
	if opts.Bounds == (starmap.Bounds{}) {
		opts.Bounds = starmap.DefaultBounds()
	}
	if opts.Spacing <= 0 {
		opts.Spacing = 6
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	width := opts.Bounds.Right - opts.Bounds.Left + 1
	height := opts.Bounds.Top - opts.Bounds.Bottom + 1
	if width <= 0 || height <= 0 {
		return nil
	}

	occupied := make(map[[2]int]bool)
	stars := make([]starmap.Star, 0, opts.Stars)
	var bodyID int64
	attempts := 0
	for len(stars) < opts.Stars && attempts < opts.Stars*20 {
		attempts++
		x := opts.Bounds.Left + rng.IntN(width)
		y := opts.Bounds.Bottom + rng.IntN(height)
		cell := [2]int{floorCell(x, opts.Spacing), floorCell(y, opts.Spacing)}
		if occupied[cell] {
			continue
		}
		occupied[cell] = true

		id := int64(len(stars) + 1)
		st := starmap.Star{
			ID:    id,
			Name:  starName(rng),
			X:     x,
			Y:     y,
			Color: colormap.StarColorNames()[rng.IntN(len(colormap.StarColorNames()))],
			Zone:  zones[rng.IntN(len(zones))],
		}

		for _, orbit := range rng.Perm(len(orbitOffsets))[:rng.IntN(4)] {
			orbit++
			dx, dy, _ := OrbitOffset(orbit)
			kind := bodyTypes[rng.IntN(len(bodyTypes))]
			if !opts.Bounds.ContainsPoint(x+dx, y+dy) {
				continue
			}
			bodyID++
			st.Bodies = append(st.Bodies, starmap.Body{
				ID:     bodyID,
				StarID: id,
				Name:   fmt.Sprintf("%s %s", st.Name, roman(orbit)),
				X:      x + dx,
				Y:      y + dy,
				Orbit:  orbit,
				Type:   kind.name,
				Image:  fmt.Sprintf("%s%d", kind.name, 1+rng.IntN(kind.images)),
			})
		}
		sort.Slice(st.Bodies, func(i, j int) bool { return st.Bodies[i].Orbit < st.Bodies[j].Orbit })
		stars = append(stars, st)
	}
	return stars
}

// Seed fills an empty store with a generated catalogue and returns the
// number of stars inserted. A store that already holds stars is left alone.
func (s *Store) Seed(ctx context.Context, opts SeedOptions) (int, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count stars: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	stars := Generate(opts)
	if err := s.Insert(ctx, stars); err != nil {
		return 0, fmt.Errorf("failed to seed catalogue: %w", err)
	}
	return len(stars), nil
}

func starName(rng *rand.Rand) string {
	n := 2 + rng.IntN(2)
	name := make([]byte, 0, 12)
	for i := 0; i < n; i++ {
		name = append(name, syllables[rng.IntN(len(syllables))]...)
	}
	name[0] -= 'a' - 'A'
	return string(name)
}

func floorCell(v, size int) int {
	q := v / size
	if v%size != 0 && v < 0 {
		q--
	}
	return q
}

func roman(n int) string {
	return [...]string{"", "I", "II", "III", "IV", "V", "VI", "VII", "VIII"}[n]
}
