package mapdata

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starmap-tiles/server/internal/cache"
	"github.com/starmap-tiles/server/internal/starmap"
)

type countingQuerier struct {
	calls atomic.Int32
	stars []starmap.Star
	err   error
}

func (q *countingQuerier) QueryRegion(ctx context.Context, r starmap.Region) ([]starmap.Star, error) {
	q.calls.Add(1)
	return q.stars, q.err
}

func TestLocalSourceCachesRegions(t *testing.T) {
	mgr, err := cache.NewManager(cache.Config{SnapshotCacheSizeMB: 4, QueryCacheSize: 16})
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Close()

	q := &countingQuerier{stars: []starmap.Star{{ID: 1, Name: "Sol", X: 5, Y: 5, Color: "yellow"}}}
	src := NewLocalSource("main", q, mgr)
	region := starmap.NewTile(0, 29).Region()

	for i := 0; i < 3; i++ {
		stars, err := src.FetchRegion(context.Background(), region)
		if err != nil {
			t.Fatalf("FetchRegion: %v", err)
		}
		if len(stars) != 1 || stars[0].Name != "Sol" {
			t.Fatalf("unexpected stars %+v", stars)
		}
	}
	if got := q.calls.Load(); got != 1 {
		t.Fatalf("expected 1 store query, got %d", got)
	}
}

func TestLocalSourceRejectsHugeRegion(t *testing.T) {
	q := &countingQuerier{stars: []starmap.Star{{ID: 1, Name: "Sol"}}}
	src := NewLocalSource("main", q, nil)
	region := starmap.Region{Left: math.MinInt, Top: math.MaxInt, Right: math.MaxInt, Bottom: math.MinInt}
	if _, err := src.FetchRegion(context.Background(), region); !errors.Is(err, ErrInvalidRegion) {
		t.Fatalf("expected ErrInvalidRegion, got %v", err)
	}
	if got := q.calls.Load(); got != 0 {
		t.Fatalf("expected no store query, got %d", got)
	}
}

func TestLocalSourceWithoutCache(t *testing.T) {
	q := &countingQuerier{err: errors.New("disk on fire")}
	src := NewLocalSource("main", q, nil)
	if _, err := src.FetchRegion(context.Background(), starmap.NewTile(0, 29).Region()); err == nil {
		t.Fatal("expected store error to propagate")
	}
}

func TestCheckRegion(t *testing.T) {
	tests := []struct {
		name string
		r    starmap.Region
		ok   bool
	}{
		{"tile", starmap.NewTile(0, 29).Region(), true},
		{"single", starmap.Region{Left: 3, Top: 3, Right: 3, Bottom: 3}, true},
		{"inverted", starmap.Region{Left: 10, Top: 0, Right: 0, Bottom: 10}, false},
		{"tooLarge", starmap.Region{Left: 0, Top: 30, Right: 99, Bottom: 0}, false},
		{"tooWide", starmap.Region{Left: 0, Top: 0, Right: 3001, Bottom: 0}, false},
		{"widest", starmap.Region{Left: 0, Top: 0, Right: 3000, Bottom: 0}, false},
		{"column", starmap.Region{Left: 0, Top: 2999, Right: 0, Bottom: 0}, true},
		{"tooTall", starmap.Region{Left: 0, Top: 3000, Right: 0, Bottom: 0}, false},
		{"extremeEdges", starmap.Region{Left: math.MinInt, Top: math.MaxInt, Right: math.MaxInt, Bottom: math.MinInt}, false},
		{"extremeWidth", starmap.Region{Left: math.MinInt, Top: 0, Right: math.MaxInt, Bottom: 0}, false},
		{"extremeHeight", starmap.Region{Left: 0, Top: math.MaxInt, Right: 0, Bottom: math.MinInt}, false},
		{"wrapsToOne", starmap.Region{Left: math.MinInt, Top: 0, Right: math.MaxInt - 1, Bottom: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckRegion(tt.r)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidRegion) {
				t.Fatalf("expected ErrInvalidRegion, got %v", err)
			}
		})
	}
}

func TestDecodeStarMapParams(t *testing.T) {
	want := StarMapParams{SessionID: "abc", Left: -100, Top: 29, Right: -1, Bottom: 0}

	positional := json.RawMessage(`[{"session_id":"abc","left":-100,"top":29,"right":-1,"bottom":0}]`)
	got, err := DecodeStarMapParams(positional)
	if err != nil || got != want {
		t.Fatalf("positional = %+v, %v", got, err)
	}

	named := json.RawMessage(`{"session_id":"abc","left":-100,"top":29,"right":-1,"bottom":0}`)
	got, err = DecodeStarMapParams(named)
	if err != nil || got != want {
		t.Fatalf("named = %+v, %v", got, err)
	}

	if _, err := DecodeStarMapParams(json.RawMessage(`[]`)); err == nil {
		t.Fatal("empty params list should fail")
	}
	if _, err := DecodeStarMapParams(nil); err == nil {
		t.Fatal("missing params should fail")
	}
}

func newRPCServer(t *testing.T, calls *atomic.Int32, handle func(p StarMapParams) Response) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Method != MethodGetStarMap || req.JSONRPC != "2.0" {
			t.Errorf("unexpected request %+v", req)
		}
		p, err := DecodeStarMapParams(req.Params)
		if err != nil {
			t.Errorf("decode params: %v", err)
		}
		resp := handle(p)
		resp.JSONRPC = "2.0"
		resp.ID = req.ID
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteSource(t *testing.T) {
	var calls atomic.Int32
	srv := newRPCServer(t, &calls, func(p StarMapParams) Response {
		if p.SessionID != "sess-1" {
			t.Errorf("session id = %q", p.SessionID)
		}
		result, _ := json.Marshal(StarMapResult{Stars: []starmap.Star{{ID: 9, Name: "Vega", X: p.Left, Y: p.Top, Color: "blue"}}})
		return Response{Result: result}
	})

	src, err := NewRemoteSource(RemoteConfig{URL: srv.URL, SessionID: "sess-1", CacheTTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}

	region := starmap.NewTile(-100, 59).Region()
	for i := 0; i < 2; i++ {
		stars, err := src.FetchRegion(context.Background(), region)
		if err != nil {
			t.Fatalf("FetchRegion: %v", err)
		}
		if len(stars) != 1 || stars[0].X != -100 || stars[0].Y != 59 {
			t.Fatalf("unexpected stars %+v", stars)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected the second fetch to hit the cache, server saw %d calls", got)
	}
}

func TestRemoteSourceErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newRPCServer(t, &calls, func(p StarMapParams) Response {
		return Response{Error: &Error{Code: 1006, Message: "Session expired."}}
	})
	src, err := NewRemoteSource(RemoteConfig{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	_, err = src.FetchRegion(context.Background(), starmap.NewTile(0, 29).Region())
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}

	_, err = src.FetchRegion(context.Background(), starmap.Region{Left: 0, Top: 100, Right: 100, Bottom: 0})
	if !errors.Is(err, ErrInvalidRegion) {
		t.Fatalf("expected ErrInvalidRegion, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("oversized region should not reach the server, calls=%d", got)
	}
}

func TestRemoteSourceHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src, err := NewRemoteSource(RemoteConfig{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.FetchRegion(context.Background(), starmap.NewTile(0, 29).Region()); !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
}

func TestNewRemoteSourceRequiresURL(t *testing.T) {
	if _, err := NewRemoteSource(RemoteConfig{}); err == nil {
		t.Fatal("expected error for empty URL")
	}
}
