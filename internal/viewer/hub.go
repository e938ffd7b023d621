package viewer

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/starmap-tiles/server/internal/starmap"
)

// Hub upgrades viewer connections and tracks their sessions.
type Hub struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*Session

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHub creates a hub. allowedOrigins limits the Origin header of upgrade
// requests; empty or "*" allows any origin.
func NewHub(allowedOrigins []string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// Serve upgrades the request and runs a session until the viewer leaves.
// The optional width and height query parameters set the initial viewport.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, factory WindowFactory) {
	viewport := starmap.Size{}
	if v, err := strconv.Atoi(r.URL.Query().Get("width")); err == nil {
		viewport.Width = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("height")); err == nil {
		viewport.Height = v
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Hub] upgrade failed: %v", err)
		return
	}

	session, err := NewSession(conn, factory, viewport)
	if err != nil {
		log.Printf("[Hub] failed to start session: %v", err)
		conn.Close()
		return
	}

	h.mu.Lock()
	select {
	case <-h.ctx.Done():
		h.mu.Unlock()
		conn.Close()
		return
	default:
	}
	h.sessions[session.ID()] = session
	h.wg.Add(1)
	h.mu.Unlock()

	log.Printf("[Hub] session %s connected", session.ID())
	defer func() {
		h.mu.Lock()
		delete(h.sessions, session.ID())
		h.mu.Unlock()
		h.wg.Done()
		log.Printf("[Hub] session %s closed", session.ID())
	}()

	if err := session.Run(h.ctx); err != nil && err != context.Canceled {
		log.Printf("[Hub] session %s ended: %v", session.ID(), err)
	}
}

// Count returns the number of connected sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Stop closes every session and waits for them to finish.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.cancel()
		h.mu.Unlock()
		h.wg.Wait()
	})
}
