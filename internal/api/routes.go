// Package api provides HTTP handlers for the star map server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/starmap-tiles/server/internal/cache"
	"github.com/starmap-tiles/server/internal/mapdata"
	"github.com/starmap-tiles/server/internal/service"
	"github.com/starmap-tiles/server/internal/starmap"
	"github.com/starmap-tiles/server/internal/starstore"
	"github.com/starmap-tiles/server/internal/viewer"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry    *MapRegistry
	CORSOrigins []string
	Hub         *viewer.Hub
	Cache       *cache.Manager
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Global endpoints (not map-scoped)
	r.Get("/api/maps", mapsHandler(cfg.Registry))
	r.Get("/api/stats", statsHandler(cfg.Registry, cfg.Hub, cfg.Cache))

	// The JSON-RPC module the original client posts to, on the default map
	r.Post("/map", func(w http.ResponseWriter, r *http.Request) {
		svc := cfg.Registry.Default()
		if svc == nil {
			http.Error(w, "no default map configured", http.StatusNotFound)
			return
		}
		rpcHandler(svc)(w, r)
	})

	// Map-scoped routes: /m/{map}/...
	r.Route("/m/{map}", func(r chi.Router) {
		r.Use(mapMiddleware(cfg.Registry))

		r.Post("/map", mapRPCHandler)
		r.Get("/snapshot.png", mapSnapshotHandler)
		if cfg.Hub != nil {
			r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
				cfg.Hub.Serve(w, r, getMapService(r))
			})
		}

		// API endpoints
		r.Route("/api", func(r chi.Router) {
			r.Get("/metadata", mapMetadataHandler)
			r.Get("/stars", mapStarsHandler)
			r.Get("/stars/{id}", mapStarHandler)
			r.Delete("/stars/{id}", mapDeleteStarHandler)
		})
	})

	return r
}

// Context key for map service
type ctxKey string

const mapServiceKey ctxKey = "mapService"

// mapMiddleware resolves the map from URL and injects its service into context.
func mapMiddleware(registry *MapRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mapID := chi.URLParam(r, "map")
			svc := registry.Get(mapID)
			if svc == nil {
				http.Error(w, "map not found: "+mapID, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), mapServiceKey, svc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getMapService(r *http.Request) *service.StarMapService {
	if svc, ok := r.Context().Value(mapServiceKey).(*service.StarMapService); ok {
		return svc
	}
	return nil
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, mapdata.ErrInvalidRegion),
		errors.Is(err, starmap.ErrInvalidZoom),
		errors.Is(err, service.ErrInvalidSize):
		return http.StatusBadRequest
	case errors.Is(err, starstore.ErrNotFound),
		errors.Is(err, service.ErrNoCatalogue):
		return http.StatusNotFound
	case errors.Is(err, mapdata.ErrRemote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// mapsHandler returns the list of available maps.
func mapsHandler(registry *MapRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"default": registry.DefaultMapID(),
			"maps":    registry.Maps(),
			"title":   registry.Title(),
		})
	}
}

// statsHandler reports cache and viewer statistics.
func statsHandler(registry *MapRegistry, hub *viewer.Hub, cacheMgr *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := map[string]interface{}{
			"maps": len(registry.MapIDs()),
		}
		if hub != nil {
			stats["viewers"] = hub.Count()
		}
		if cacheMgr != nil {
			stats["cache"] = cacheMgr.Stats()
		}
		writeJSON(w, stats)
	}
}

// Map-scoped handlers (get service from context)
func mapRPCHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	if svc == nil {
		http.Error(w, "map service not found", http.StatusInternalServerError)
		return
	}
	rpcHandler(svc)(w, r)
}

func mapSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	if svc == nil {
		http.Error(w, "map service not found", http.StatusInternalServerError)
		return
	}
	snapshotHandler(svc)(w, r)
}

func mapMetadataHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	if svc == nil {
		http.Error(w, "map service not found", http.StatusInternalServerError)
		return
	}
	metadataHandler(svc)(w, r)
}

func mapStarsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	if svc == nil {
		http.Error(w, "map service not found", http.StatusInternalServerError)
		return
	}
	starsHandler(svc)(w, r)
}

func mapStarHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	if svc == nil {
		http.Error(w, "map service not found", http.StatusInternalServerError)
		return
	}
	starHandler(svc)(w, r)
}

func mapDeleteStarHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	if svc == nil {
		http.Error(w, "map service not found", http.StatusInternalServerError)
		return
	}
	deleteStarHandler(svc)(w, r)
}

func metadataHandler(svc *service.StarMapService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metadata, err := svc.Metadata(r.Context())
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, metadata)
	}
}

func starsHandler(svc *service.StarMapService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		var region starmap.Region
		for _, p := range []struct {
			name string
			dst  *int
		}{
			{"left", &region.Left},
			{"top", &region.Top},
			{"right", &region.Right},
			{"bottom", &region.Bottom},
		} {
			v, err := intParam(query, p.name, nil)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			*p.dst = v
		}

		stars, err := svc.QueryRegion(r.Context(), region)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, map[string]interface{}{
			"region": region,
			"stars":  stars,
			"total":  len(stars),
		})
	}
}

func starHandler(svc *service.StarMapService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid star id", http.StatusBadRequest)
			return
		}
		star, err := svc.Star(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, star)
	}
}

func deleteStarHandler(svc *service.StarMapService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid star id", http.StatusBadRequest)
			return
		}
		if err := svc.DeleteStar(r.Context(), id); err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func snapshotHandler(svc *service.StarMapService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		defaults := svc.WindowDefaults()
		zero := 0

		x, err := intParam(query, "x", &zero)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		y, err := intParam(query, "y", &zero)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		zoom, err := intParam(query, "zoom", &defaults.Zoom)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		width, err := intParam(query, "width", &defaults.Viewport.Width)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		height, err := intParam(query, "height", &defaults.Viewport.Height)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		data, err := svc.Snapshot(r.Context(), x, y, zoom, starmap.Size{Width: width, Height: height})
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.Write(data)
	}
}

// intParam parses an integer query parameter. A missing parameter takes def,
// or is an error when def is nil.
func intParam(query url.Values, name string, def *int) (int, error) {
	raw := query.Get(name)
	if raw == "" {
		if def == nil {
			return 0, fmt.Errorf("missing required query param: %s", name)
		}
		return *def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}
