package viewer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/starmap-tiles/server/internal/markup"
	"github.com/starmap-tiles/server/internal/starmap"
)

type tileSource struct{}

func (tileSource) FetchRegion(ctx context.Context, r starmap.Region) ([]starmap.Star, error) {
	return []starmap.Star{{ID: 1, Name: "Star", X: r.Left + 1, Y: r.Top - 1, Color: "white"}}, nil
}

type testFactory struct {
	tmpl *markup.Templates
}

func (f testFactory) NewWindow(renderer starmap.Renderer, viewport starmap.Size) (*starmap.Window, error) {
	return starmap.New(starmap.Config{Viewport: viewport, FetchWorkers: 3}, renderer, tileSource{}, f.tmpl)
}

func (f testFactory) Templates() *markup.Templates { return f.tmpl }

func startHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	tmpl, err := markup.New("")
	if err != nil {
		t.Fatal(err)
	}
	hub := NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, testFactory{tmpl: tmpl})
	}))
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?width=800&height=600"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return hub, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func countOps(msgs []Message, op string) int {
	n := 0
	for _, m := range msgs {
		for _, o := range m.Ops {
			if o.Op == op {
				n++
			}
		}
	}
	return n
}

// readUntilContent reads frames until n content operations arrived.
func readUntilContent(t *testing.T, conn *websocket.Conn, n int) []Message {
	t.Helper()
	var msgs []Message
	for countOps(msgs, OpContent) < n {
		msgs = append(msgs, readMessage(t, conn))
	}
	return msgs
}

func TestSessionRenderAndDrag(t *testing.T) {
	_, conn := startHub(t)

	hello := readMessage(t, conn)
	if hello.Type != MsgSession {
		t.Fatalf("first frame should announce the session, got %+v", hello)
	}
	if _, err := uuid.Parse(hello.Session); err != nil {
		t.Fatalf("session id %q is not a uuid: %v", hello.Session, err)
	}

	if err := conn.WriteJSON(Command{Type: CmdRender, X: 0, Y: 0, Zoom: 2}); err != nil {
		t.Fatal(err)
	}
	msgs := readUntilContent(t, conn, 9)

	view := msgs[0]
	if view.Type != MsgView || view.View == nil {
		t.Fatalf("render should answer with a view frame, got %+v", view)
	}
	if view.View.Zoom != 2 || view.View.Scale != 35 {
		t.Fatalf("unexpected view %+v", view.View)
	}
	if got := countOps(msgs[:1], OpMount); got != 9 {
		t.Fatalf("expected 9 mounts, got %d", got)
	}
	if got := countOps(msgs[:1], OpSurface); got != 1 {
		t.Fatalf("expected 1 surface op, got %d", got)
	}
	for _, o := range view.Ops {
		if o.Op == OpMount && !strings.Contains(o.HTML, "starmap_tile") {
			t.Fatalf("mount op without element markup: %+v", o)
		}
	}

	offset := view.View.Offset
	offset.X -= starmap.TileWidth * 35
	if err := conn.WriteJSON(Command{Type: CmdDrag, Offset: &offset}); err != nil {
		t.Fatal(err)
	}
	msgs = readUntilContent(t, conn, 3)
	drag := msgs[0]
	if drag.Outcome == nil {
		t.Fatalf("drag frame has no outcome: %+v", drag)
	}
	if drag.Outcome.Kind != "recycled" || drag.Outcome.Target != 5 {
		t.Fatalf("unexpected outcome %+v", drag.Outcome)
	}
	if !reflect.DeepEqual(drag.Outcome.Refetched, []int{2, 5, 8}) {
		t.Fatalf("refetched = %v", drag.Outcome.Refetched)
	}
	if got := countOps(msgs[:1], OpMove); got != 6 {
		t.Fatalf("expected 6 moves, got %d", got)
	}
	if got := countOps(msgs[:1], OpClear); got != 3 {
		t.Fatalf("expected 3 clears, got %d", got)
	}
	if got := countOps(msgs[:1], OpReposition); got != 9 {
		t.Fatalf("expected 9 repositions, got %d", got)
	}
}

func TestSessionReportsCommandErrors(t *testing.T) {
	_, conn := startHub(t)
	readMessage(t, conn)

	for _, cmd := range []Command{
		{Type: CmdDrag, Offset: &starmap.Point{}},
		{Type: CmdZoom, Zoom: 12},
		{Type: CmdResize},
		{Type: "warp"},
	} {
		if err := conn.WriteJSON(cmd); err != nil {
			t.Fatal(err)
		}
		m := readMessage(t, conn)
		if m.Type != MsgError || m.Error == "" {
			t.Fatalf("command %+v: expected error frame, got %+v", cmd, m)
		}
	}

	// the session survives errors
	if err := conn.WriteJSON(Command{Type: CmdResize, Width: 400, Height: 300}); err != nil {
		t.Fatal(err)
	}
	m := readMessage(t, conn)
	if m.Type != MsgView || m.View.Viewport.Width != 400 {
		t.Fatalf("unexpected resize answer %+v", m)
	}
}

func TestHubTracksSessions(t *testing.T) {
	hub, conn := startHub(t)
	readMessage(t, conn)
	if hub.Count() != 1 {
		t.Fatalf("Count = %d", hub.Count())
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session not removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://stars.example.com"})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	if check(r) {
		t.Fatal("foreign origin accepted")
	}
	r.Header.Set("Origin", "https://stars.example.com")
	if !check(r) {
		t.Fatal("allowed origin rejected")
	}
	if !originChecker([]string{"*"})(r) {
		t.Fatal("wildcard should allow any origin")
	}
}
