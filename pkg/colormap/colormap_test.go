package colormap

import (
	"hash/fnv"
	"image/color"
	"testing"
)

func TestHaloEndpoints(t *testing.T) {
	t.Parallel()

	c0, ok := Halo.At(0).(color.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA at t=0")
	}
	if c0.A != 200 {
		t.Fatalf("unexpected Halo.At(0): %#v", c0)
	}

	c1, ok := Halo.At(1).(color.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA at t=1")
	}
	if c1.A != 0 {
		t.Fatalf("halo should be transparent at t=1, got %#v", c1)
	}
}

func TestStarColor(t *testing.T) {
	t.Parallel()

	for _, name := range StarColorNames() {
		if _, ok := starColors[name]; !ok {
			t.Errorf("StarColorNames lists unknown color %q", name)
		}
	}
	if StarColor(" Red ") != starColors["red"] {
		t.Errorf("StarColor should ignore case and spaces")
	}
	if StarColor("ultraviolet") != starColors["white"] {
		t.Errorf("unknown colors should fall back to white")
	}
}

func TestBodyColorStable(t *testing.T) {
	t.Parallel()

	for _, cmap := range []Colormap{Categorical, Space} {
		if BodyColor(cmap, "gas giant") != BodyColor(cmap, "gas giant") {
			t.Fatal("BodyColor is not deterministic")
		}
	}
	if got, want := BodyColor(Space, "moon"), Space.AtIndex(int(fnvSum("moon")&0x7fffffff)); got != want {
		t.Fatalf("BodyColor(Space) = %v, want %v", got, want)
	}
}

func TestCategoricalAt(t *testing.T) {
	t.Parallel()

	var cmap Colormap = Categorical
	if cmap.At(0) != Categorical.colors[0] || cmap.At(1) != Categorical.colors[len(Categorical.colors)-1] {
		t.Fatal("categorical endpoints are wrong")
	}
	if cmap.At(0.5) != Categorical.colors[5] {
		t.Fatalf("At(0.5) = %v", cmap.At(0.5))
	}
	if cmap.AtIndex(-3) != Categorical.colors[3] {
		t.Fatalf("negative index should mirror, got %v", cmap.AtIndex(-3))
	}
}

func fnvSum(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
