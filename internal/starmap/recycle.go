package starmap

// OutcomeKind tells what a drag release did to the window.
type OutcomeKind int

const (
	// Unchanged means the viewport center is still on the center tile.
	Unchanged OutcomeKind = iota
	// Recycled means slots were shifted and only the uncovered ones fetched.
	Recycled
	// Rerendered means the drag left the 3x3 block and all slots were rebuilt.
	Rerendered
)

func (k OutcomeKind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Recycled:
		return "recycled"
	case Rerendered:
		return "rerendered"
	default:
		return "unknown"
	}
}

// Outcome reports the effect of a drag release.
type Outcome struct {
	Kind OutcomeKind
	// Target is the slot the viewport center landed on, -1 outside the block.
	Target int
	// X and Y are the unit coordinates now in the middle of the viewport.
	X, Y int
	// Refetched lists the slots for which a fetch was queued.
	Refetched []int
}

// DragReleased updates the window after the scroll surface was dragged to
// offset. Moving within the center tile changes nothing; moving onto another
// slot of the block recycles; moving further triggers a full render.
func (w *Window) DragReleased(offset Point) (Outcome, error) {
	if w.closed {
		return Outcome{}, ErrClosed
	}
	if !w.rendered {
		return Outcome{}, ErrNotRendered
	}

	x, y := PixelToUnit(offset, w.viewport, w.bounds, w.scale)
	out := Outcome{Target: -1, X: x, Y: y}

	target, ok := SlotContaining(x, y, w.center, w.bounds)
	if !ok {
		if err := w.FullRender(x, y); err != nil {
			return out, err
		}
		out.Kind = Rerendered
		for s, e := range w.slots {
			if e.state == SlotLoading {
				out.Refetched = append(out.Refetched, s)
			}
		}
		return out, nil
	}

	w.view.ViewX, w.view.ViewY = x, y
	w.view.Offset = offset
	out.Target = target
	if target == CenterSlot {
		out.Kind = Unchanged
		return out, nil
	}

	out.Kind = Recycled
	out.Refetched = w.recycle(target)
	return out, nil
}

// recycle makes target the new center slot. Content of slot s moves to
// s+delta when that cell is still inside the 3x3 block; the remaining cells
// get new tiles and are fetched. It returns the slots fetched.
func (w *Window) recycle(target int) []int {
	delta := CenterSlot - target
	tdx, tdy := slotDelta(target)
	old := w.slots
	newCenter := TileRectForSlot(target, w.center)

	// Shift order such that no slot is written before it has been read.
	order := make([]int, 0, SlotCount)
	for s := 0; s < SlotCount; s++ {
		order = append(order, s)
	}
	if delta > 0 {
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}

	var next [SlotCount]slotEntry
	var covered [SlotCount]bool
	abandoned := make(map[uint64]bool)
	for _, s := range order {
		dx, dy := slotDelta(s)
		// s+delta must stay inside the block in both axes; a plain index
		// range check would wrap content across rows.
		if abs(dx-tdx) > 1 || abs(dy-tdy) > 1 {
			if old[s].state == SlotLoading {
				abandoned[old[s].ticket] = true
			}
			continue
		}
		to := s + delta
		next[to] = old[s]
		covered[to] = true
		w.renderer.MoveContent(s, to)
	}

	var uncovered []int
	for s := 0; s < SlotCount; s++ {
		if covered[s] {
			continue
		}
		next[s] = slotEntry{tile: TileRectForSlot(s, newCenter)}
		w.renderer.Clear(s)
		uncovered = append(uncovered, s)
	}

	if len(abandoned) > 0 {
		w.fetch.queue.drop(abandoned)
	}

	w.slots = next
	w.center = newCenter

	for s := 0; s < SlotCount; s++ {
		w.renderer.Reposition(s, TileToPixelOffset(w.slots[s].tile, w.bounds, w.scale))
	}

	var fetched []int
	for _, s := range uncovered {
		if w.issue(s) {
			fetched = append(fetched, s)
		}
	}
	return fetched
}
