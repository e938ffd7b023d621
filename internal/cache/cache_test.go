package cache

import (
	"bytes"
	"testing"
	"time"

	"github.com/starmap-tiles/server/internal/starmap"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{SnapshotCacheSizeMB: 8, SnapshotTTL: time.Minute, QueryCacheSize: 2})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestQueryRoundTripCompressed(t *testing.T) {
	m := newTestManager(t)

	payload := bytes.Repeat([]byte(`{"id":1,"name":"Sol","x":10,"y":20,"color":"yellow"},`), 200)
	m.SetQuery("k", payload)

	got, ok := m.GetQuery("k")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload changed through the cache")
	}

	stats := m.Stats()
	ratio, ok := stats["query_compression_ratio"].(float64)
	if !ok || ratio >= 1 {
		t.Fatalf("expected repetitive payload to compress, stats=%v", stats)
	}
}

func TestQueryEviction(t *testing.T) {
	m := newTestManager(t)
	m.SetQuery("a", []byte("1"))
	m.SetQuery("b", []byte("2"))
	m.SetQuery("c", []byte("3"))

	if _, ok := m.GetQuery("a"); ok {
		t.Fatal("oldest entry should be evicted")
	}
	if got, ok := m.GetQuery("c"); !ok || string(got) != "3" {
		t.Fatalf("GetQuery(c) = %q, %v", got, ok)
	}
}

func TestSnapshot(t *testing.T) {
	m := newTestManager(t)
	if _, ok := m.GetSnapshot("missing"); ok {
		t.Fatal("unexpected hit")
	}
	if err := m.SetSnapshot("s", []byte("png")); err != nil {
		t.Fatalf("SetSnapshot: %v", err)
	}
	if got, ok := m.GetSnapshot("s"); !ok || string(got) != "png" {
		t.Fatalf("GetSnapshot = %q, %v", got, ok)
	}
}

func TestKeys(t *testing.T) {
	got := SnapshotKey("main", -5, 12, 2, starmap.Size{Width: 800, Height: 600})
	if want := "snap:main:2/-5/12:800x600"; got != want {
		t.Fatalf("SnapshotKey = %q, want %q", got, want)
	}

	r := starmap.NewTile(0, 29).Region()
	if got, want := RegionKey("main", r), "region:main:0|29|99|0"; got != want {
		t.Fatalf("RegionKey = %q, want %q", got, want)
	}
	if RegionKey("a", r) == RegionKey("b", r) {
		t.Fatal("region keys must be scoped by map")
	}
}

func TestInvalidateMap(t *testing.T) {
	m := newTestManager(t)
	region := starmap.NewTile(0, 29).Region()
	size := starmap.Size{Width: 200, Height: 120}

	m.SetQuery(RegionKey("a", region), []byte(`[]`))
	m.SetQuery(RegionKey("b", region), []byte(`[]`))
	if err := m.SetSnapshot(SnapshotKey("a", 0, 0, 2, size), []byte("png-a")); err != nil {
		t.Fatal(err)
	}
	if err := m.SetSnapshot(SnapshotKey("b", 0, 0, 2, size), []byte("png-b")); err != nil {
		t.Fatal(err)
	}

	if n := m.InvalidateMap("a"); n != 2 {
		t.Fatalf("expected 2 entries removed, got %d", n)
	}
	if _, ok := m.GetQuery(RegionKey("a", region)); ok {
		t.Error("map a region should be gone")
	}
	if _, ok := m.GetSnapshot(SnapshotKey("a", 0, 0, 2, size)); ok {
		t.Error("map a snapshot should be gone")
	}
	if _, ok := m.GetQuery(RegionKey("b", region)); !ok {
		t.Error("map b region should survive")
	}
	if _, ok := m.GetSnapshot(SnapshotKey("b", 0, 0, 2, size)); !ok {
		t.Error("map b snapshot should survive")
	}
}
