// Package mapdata provides the star map data sources a tile window fetches
// from: the local catalogue and a remote JSON-RPC map server.
package mapdata

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starmap-tiles/server/internal/starmap"
)

// MethodGetStarMap is the JSON-RPC method that returns the stars of a region.
const MethodGetStarMap = "get_star_map"

// Limits on a single get_star_map region.
const (
	MaxRegionWidth = 3001
	MaxRegionArea  = 3000
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

var (
	// ErrInvalidRegion is returned for inverted or oversized regions.
	ErrInvalidRegion = errors.New("invalid region")
	// ErrRemote is returned when the remote map server fails a request.
	ErrRemote = errors.New("remote map server error")
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// StarMapParams are the get_star_map parameters.
type StarMapParams struct {
	SessionID string `json:"session_id"`
	Left      int    `json:"left"`
	Top       int    `json:"top"`
	Right     int    `json:"right"`
	Bottom    int    `json:"bottom"`
}

// Region returns the requested region.
func (p StarMapParams) Region() starmap.Region {
	return starmap.Region{Left: p.Left, Top: p.Top, Right: p.Right, Bottom: p.Bottom}
}

// StarMapResult is the get_star_map result.
type StarMapResult struct {
	Stars []starmap.Star `json:"stars"`
}

// DecodeStarMapParams accepts both the positional form, a one-element array
// holding the parameter object, and a bare parameter object.
func DecodeStarMapParams(raw json.RawMessage) (StarMapParams, error) {
	var p StarMapParams
	if len(raw) == 0 {
		return p, fmt.Errorf("missing params: %w", ErrInvalidRegion)
	}
	if raw[0] == '[' {
		var list []StarMapParams
		if err := json.Unmarshal(raw, &list); err != nil {
			return p, fmt.Errorf("failed to decode params: %w", err)
		}
		if len(list) != 1 {
			return p, fmt.Errorf("expected one parameter object, got %d: %w", len(list), ErrInvalidRegion)
		}
		return list[0], nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("failed to decode params: %w", err)
	}
	return p, nil
}

// CheckRegion validates a region against the get_star_map limits.
func CheckRegion(r starmap.Region) error {
	if r.Right < r.Left || r.Top < r.Bottom {
		return fmt.Errorf("region %d|%d|%d|%d is inverted: %w", r.Left, r.Top, r.Right, r.Bottom, ErrInvalidRegion)
	}
	// Edges are ordered, so the unsigned differences are exact even where
	// Right-Left would overflow int.
	dx := uint64(r.Right) - uint64(r.Left)
	dy := uint64(r.Top) - uint64(r.Bottom)
	if dx >= MaxRegionWidth {
		return fmt.Errorf("region %d|%d|%d|%d is wider than %d units: %w", r.Left, r.Top, r.Right, r.Bottom, MaxRegionWidth, ErrInvalidRegion)
	}
	if dy >= MaxRegionArea {
		return fmt.Errorf("region %d|%d|%d|%d is taller than %d units: %w", r.Left, r.Top, r.Right, r.Bottom, MaxRegionArea, ErrInvalidRegion)
	}
	if area := (dx + 1) * (dy + 1); area > MaxRegionArea {
		return fmt.Errorf("region covers %d units, limit is %d: %w", area, MaxRegionArea, ErrInvalidRegion)
	}
	return nil
}
