package mapdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/starmap-tiles/server/internal/cache"
	"github.com/starmap-tiles/server/internal/starmap"
	"golang.org/x/time/rate"
)

// RemoteConfig configures a RemoteSource.
type RemoteConfig struct {
	// URL is the JSON-RPC endpoint, e.g. https://host/map.
	URL       string
	SessionID string

	RatePerSecond float64
	Burst         int

	CacheSize int
	CacheTTL  time.Duration
	Timeout   time.Duration

	Client *http.Client
}

// RemoteSource fetches regions from a remote map server over JSON-RPC.
type RemoteSource struct {
	url       string
	sessionID string
	client    *http.Client
	limiter   *rate.Limiter
	cache     *expirable.LRU[string, []starmap.Star]
	nextID    atomic.Int64
}

// NewRemoteSource creates a remote source.
func NewRemoteSource(cfg RemoteConfig) (*RemoteSource, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote source requires a URL")
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 9
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &RemoteSource{
		url:       cfg.URL,
		sessionID: cfg.SessionID,
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		cache:     expirable.NewLRU[string, []starmap.Star](cfg.CacheSize, nil, cfg.CacheTTL),
	}, nil
}

// FetchRegion implements starmap.MapDataSource.
func (s *RemoteSource) FetchRegion(ctx context.Context, r starmap.Region) ([]starmap.Star, error) {
	if err := CheckRegion(r); err != nil {
		return nil, err
	}

	key := cache.RegionKey(s.url, r)
	if stars, ok := s.cache.Get(key); ok {
		return stars, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	stars, err := s.call(ctx, r)
	if err != nil {
		log.Printf("[RemoteSource] get_star_map %d|%d|%d|%d failed: %v", r.Left, r.Top, r.Right, r.Bottom, err)
		return nil, err
	}
	s.cache.Add(key, stars)
	return stars, nil
}

func (s *RemoteSource) call(ctx context.Context, r starmap.Region) ([]starmap.Star, error) {
	params, err := json.Marshal([]StarMapParams{{
		SessionID: s.sessionID,
		Left:      r.Left,
		Top:       r.Top,
		Right:     r.Right,
		Bottom:    r.Bottom,
	}})
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  MethodGetStarMap,
		Params:  params,
		ID:      json.RawMessage(strconv.FormatInt(s.nextID.Add(1), 10)),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("%w: status %d: %s", ErrRemote, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrRemote, err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, rpcResp.Error)
	}

	var result StarMapResult
	if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode result: %v", ErrRemote, err)
	}
	if result.Stars == nil {
		result.Stars = []starmap.Star{}
	}
	return result.Stars, nil
}
