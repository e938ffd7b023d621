// Package config handles configuration loading for the star map server.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/starmap-tiles/server/internal/starmap"
	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Maps   MapsConfig   `yaml:"maps"`
	Cache  CacheConfig  `yaml:"cache"`
	Window WindowConfig `yaml:"window"`
	Remote RemoteConfig `yaml:"remote"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	Title       string   `yaml:"title"`
	AssetsURL   string   `yaml:"assets_url"`
}

// MapConfig describes one star map. A map is served from its SQLite
// catalogue unless UpstreamURL is set.
type MapConfig struct {
	Name       string          `yaml:"name"`
	SQLitePath string          `yaml:"sqlite_path"`
	SeedStars  int             `yaml:"seed_stars"`
	Seed       uint64          `yaml:"seed"`
	Bounds     *starmap.Bounds `yaml:"bounds"`

	UpstreamURL string `yaml:"upstream_url"`
	SessionID   string `yaml:"session_id"`
}

// Remote reports whether the map is proxied from another server.
func (m MapConfig) Remote() bool { return m.UpstreamURL != "" }

// MapsConfig holds the configured maps in file order. The first map is the
// default.
type MapsConfig struct {
	Maps       map[string]MapConfig
	DefaultMap string
	order      []string
}

// UnmarshalYAML decodes the maps mapping, remembering key order.
func (m *MapsConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("maps: expected a mapping, got line %d", node.Line)
	}
	m.Maps = make(map[string]MapConfig, len(node.Content)/2)
	m.order = m.order[:0]
	for i := 0; i+1 < len(node.Content); i += 2 {
		id := node.Content[i].Value
		var mc MapConfig
		if err := node.Content[i+1].Decode(&mc); err != nil {
			return fmt.Errorf("maps.%s: %w", id, err)
		}
		if _, dup := m.Maps[id]; dup {
			return fmt.Errorf("maps.%s: duplicate map", id)
		}
		m.Maps[id] = mc
		m.order = append(m.order, id)
	}
	if len(m.order) > 0 {
		m.DefaultMap = m.order[0]
	}
	return nil
}

// MapIDs returns the map IDs in config order.
func (m MapsConfig) MapIDs() []string {
	return append([]string(nil), m.order...)
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	SnapshotSizeMB     int `yaml:"snapshot_size_mb"`
	SnapshotTTLMinutes int `yaml:"snapshot_ttl_minutes"`
	QueryCacheSize     int `yaml:"query_cache_size"`
}

// SnapshotTTL returns the snapshot lifetime.
func (c CacheConfig) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLMinutes) * time.Minute
}

// WindowConfig contains tile window defaults.
type WindowConfig struct {
	DefaultZoom    int `yaml:"default_zoom"`
	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`
	FetchWorkers   int `yaml:"fetch_workers"`
}

// RemoteConfig contains settings for maps proxied from an upstream server.
type RemoteConfig struct {
	RatePerSecond   float64 `yaml:"rate_per_second"`
	Burst           int     `yaml:"burst"`
	CacheSize       int     `yaml:"cache_size"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	bounds := starmap.DefaultBounds()
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			Title:       "Star Map",
			AssetsURL:   "/assets",
		},
		Maps: MapsConfig{
			Maps: map[string]MapConfig{
				"default": {
					Name:       "The Expanse",
					SQLitePath: "./data/stars.db",
					SeedStars:  20000,
					Seed:       1,
					Bounds:     &bounds,
				},
			},
			DefaultMap: "default",
			order:      []string{"default"},
		},
		Cache: CacheConfig{
			SnapshotSizeMB:     256,
			SnapshotTTLMinutes: 10,
			QueryCacheSize:     10000,
		},
		Window: WindowConfig{
			DefaultZoom:    2,
			ViewportWidth:  800,
			ViewportHeight: 600,
			FetchWorkers:   3,
		},
		Remote: RemoteConfig{
			RatePerSecond:   10,
			Burst:           9,
			CacheSize:       512,
			CacheTTLSeconds: 60,
			TimeoutSeconds:  10,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	if cfg.Server.AssetsURL == "" {
		cfg.Server.AssetsURL = defaults.Server.AssetsURL
	}

	if len(cfg.Maps.Maps) == 0 {
		cfg.Maps = defaults.Maps
	}
	for id, m := range cfg.Maps.Maps {
		if m.Name == "" {
			m.Name = id
		}
		if m.Bounds == nil {
			b := starmap.DefaultBounds()
			m.Bounds = &b
		}
		if !m.Remote() && m.SQLitePath == "" {
			m.SQLitePath = fmt.Sprintf("./data/%s.db", id)
		}
		cfg.Maps.Maps[id] = m
	}

	if cfg.Cache.SnapshotSizeMB == 0 {
		cfg.Cache.SnapshotSizeMB = defaults.Cache.SnapshotSizeMB
	}
	if cfg.Cache.SnapshotTTLMinutes == 0 {
		cfg.Cache.SnapshotTTLMinutes = defaults.Cache.SnapshotTTLMinutes
	}
	if cfg.Cache.QueryCacheSize == 0 {
		cfg.Cache.QueryCacheSize = defaults.Cache.QueryCacheSize
	}

	if cfg.Window.DefaultZoom == 0 {
		cfg.Window.DefaultZoom = defaults.Window.DefaultZoom
	}
	if cfg.Window.ViewportWidth == 0 {
		cfg.Window.ViewportWidth = defaults.Window.ViewportWidth
	}
	if cfg.Window.ViewportHeight == 0 {
		cfg.Window.ViewportHeight = defaults.Window.ViewportHeight
	}
	if cfg.Window.FetchWorkers == 0 {
		cfg.Window.FetchWorkers = defaults.Window.FetchWorkers
	}

	if cfg.Remote.RatePerSecond == 0 {
		cfg.Remote.RatePerSecond = defaults.Remote.RatePerSecond
	}
	if cfg.Remote.Burst == 0 {
		cfg.Remote.Burst = defaults.Remote.Burst
	}
	if cfg.Remote.CacheSize == 0 {
		cfg.Remote.CacheSize = defaults.Remote.CacheSize
	}
	if cfg.Remote.CacheTTLSeconds == 0 {
		cfg.Remote.CacheTTLSeconds = defaults.Remote.CacheTTLSeconds
	}
	if cfg.Remote.TimeoutSeconds == 0 {
		cfg.Remote.TimeoutSeconds = defaults.Remote.TimeoutSeconds
	}
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	if _, err := starmap.UnitScale(c.Window.DefaultZoom); err != nil {
		return fmt.Errorf("window.default_zoom: %w", err)
	}
	for _, id := range c.Maps.MapIDs() {
		m := c.Maps.Maps[id]
		if err := m.Bounds.Validate(); err != nil {
			return fmt.Errorf("maps.%s.bounds: %w", id, err)
		}
		if m.SeedStars < 0 {
			return fmt.Errorf("maps.%s.seed_stars must not be negative", id)
		}
	}
	return nil
}
