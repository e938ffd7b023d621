package starmap

import (
	"context"
	"sync"
	"sync/atomic"
)

// ticket identifies one issued fetch. A slot holds the ticket of the fetch
// that will fill it and carries it along when its content is moved.
type ticket struct {
	id    uint64
	epoch uint64
	slot  int
	tile  Tile
}

// Completion is the result of one fetch, delivered on Window.Completions.
type Completion struct {
	ticket ticket
	Stars  []Star
	Err    error
}

// fetchQueue is an ordered, unbounded ticket queue drained by the workers.
// Order matters: the center slot is queued first.
type fetchQueue struct {
	mu     sync.Mutex
	items  []ticket
	notify chan struct{}
}

func newFetchQueue() *fetchQueue {
	return &fetchQueue{notify: make(chan struct{}, 1)}
}

func (q *fetchQueue) push(t ticket) {
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *fetchQueue) pop() (ticket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return ticket{}, false
	}
	t := q.items[0]
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// Wake another worker for the rest.
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return t, true
}

// drop removes queued tickets by id. Tickets already taken by a worker are
// unaffected.
func (q *fetchQueue) drop(ids map[uint64]bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	for _, t := range q.items {
		if !ids[t.id] {
			kept = append(kept, t)
		}
	}
	n := len(q.items) - len(kept)
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = ticket{}
	}
	q.items = kept
	return n
}

// fetcher runs the fetch workers for one window.
type fetcher struct {
	source MapDataSource
	queue  *fetchQueue
	done   chan Completion
	epoch  atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newFetcher(source MapDataSource, workers int) *fetcher {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fetcher{
		source: source,
		queue:  newFetchQueue(),
		done:   make(chan Completion, SlotCount),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		f.wg.Add(1)
		go f.worker()
	}
	return f
}

func (f *fetcher) worker() {
	defer f.wg.Done()
	for {
		t, ok := f.queue.pop()
		if !ok {
			select {
			case <-f.ctx.Done():
				return
			case <-f.queue.notify:
				continue
			}
		}
		// A full render since this ticket was issued makes it worthless.
		if t.epoch < f.epoch.Load() {
			continue
		}
		stars, err := f.source.FetchRegion(f.ctx, t.tile.Region())
		select {
		case f.done <- Completion{ticket: t, Stars: stars, Err: err}:
		case <-f.ctx.Done():
			return
		}
	}
}

func (f *fetcher) stop() {
	f.cancel()
	f.wg.Wait()
}
