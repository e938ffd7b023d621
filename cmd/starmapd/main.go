// Package main is the entry point for the star map server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/starmap-tiles/server/internal/api"
	"github.com/starmap-tiles/server/internal/cache"
	"github.com/starmap-tiles/server/internal/config"
	"github.com/starmap-tiles/server/internal/mapdata"
	"github.com/starmap-tiles/server/internal/markup"
	"github.com/starmap-tiles/server/internal/service"
	"github.com/starmap-tiles/server/internal/starmap"
	"github.com/starmap-tiles/server/internal/starstore"
	"github.com/starmap-tiles/server/internal/viewer"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lshortfile)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting star map server on port %d", cfg.Server.Port)

	// Initialize components
	ctx := context.Background()

	// Initialize cache manager (shared across all maps)
	cacheManager, err := cache.NewManager(cache.Config{
		SnapshotCacheSizeMB: cfg.Cache.SnapshotSizeMB,
		SnapshotTTL:         cfg.Cache.SnapshotTTL(),
		QueryCacheSize:      cfg.Cache.QueryCacheSize,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer cacheManager.Close()

	// Tile markup templates (shared across all maps)
	templates, err := markup.New(cfg.Server.AssetsURL)
	if err != nil {
		log.Fatalf("Failed to initialize templates: %v", err)
	}

	// Initialize map registry
	mapIDs := cfg.Maps.MapIDs()
	registry := api.NewMapRegistry(cfg.Maps.DefaultMap, mapIDs, cfg.Server.Title)

	log.Printf("Initializing %d map(s), default: %s", len(mapIDs), cfg.Maps.DefaultMap)

	windowDefaults := service.WindowDefaults{
		Zoom:         cfg.Window.DefaultZoom,
		Viewport:     starmap.Size{Width: cfg.Window.ViewportWidth, Height: cfg.Window.ViewportHeight},
		FetchWorkers: cfg.Window.FetchWorkers,
	}

	// Initialize each map
	for _, mapID := range mapIDs {
		mc := cfg.Maps.Maps[mapID]

		var (
			source starmap.MapDataSource
			store  *starstore.Store
		)
		if mc.Remote() {
			remote, err := mapdata.NewRemoteSource(mapdata.RemoteConfig{
				URL:           mc.UpstreamURL,
				SessionID:     mc.SessionID,
				RatePerSecond: cfg.Remote.RatePerSecond,
				Burst:         cfg.Remote.Burst,
				CacheSize:     cfg.Remote.CacheSize,
				CacheTTL:      time.Duration(cfg.Remote.CacheTTLSeconds) * time.Second,
				Timeout:       time.Duration(cfg.Remote.TimeoutSeconds) * time.Second,
			})
			if err != nil {
				log.Fatalf("Failed to initialize remote source for map %q: %v", mapID, err)
			}
			source = remote
			log.Printf("  [%s] Proxying %s", mapID, mc.UpstreamURL)
		} else {
			store, err = starstore.NewStore(mc.SQLitePath)
			if err != nil {
				log.Fatalf("Failed to open catalogue for map %q: %v", mapID, err)
			}
			defer store.Close()

			if mc.SeedStars > 0 {
				n, err := store.Seed(ctx, starstore.SeedOptions{
					Bounds: *mc.Bounds,
					Stars:  mc.SeedStars,
					Seed:   mc.Seed,
				})
				if err != nil {
					log.Fatalf("Failed to seed catalogue for map %q: %v", mapID, err)
				}
				if n > 0 {
					log.Printf("  [%s] Seeded %d stars", mapID, n)
				}
			}

			count, err := store.Count(ctx)
			if err != nil {
				log.Fatalf("Failed to read catalogue for map %q: %v", mapID, err)
			}
			source = mapdata.NewLocalSource(mapID, store, cacheManager)
			log.Printf("  [%s] Loaded from: %s (%d stars)", mapID, mc.SQLitePath, count)
		}

		svc, err := service.NewStarMapService(service.StarMapServiceConfig{
			MapID:     mapID,
			Name:      mc.Name,
			Bounds:    *mc.Bounds,
			Source:    source,
			Store:     store,
			Cache:     cacheManager,
			Templates: templates,
			Window:    windowDefaults,
		})
		if err != nil {
			log.Fatalf("Failed to initialize map %q: %v", mapID, err)
		}
		registry.Register(mapID, svc)
	}

	// Live viewer sessions
	hub := viewer.NewHub(cfg.Server.CORSOrigins)

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Registry:    registry,
		CORSOrigins: cfg.Server.CORSOrigins,
		Hub:         hub,
		Cache:       cacheManager,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Websocket connections are hijacked, so Shutdown does not wait for them.
	hub.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
