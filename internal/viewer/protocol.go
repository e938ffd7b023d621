// Package viewer drives a tile window for a browser over a websocket. Each
// connection gets a session whose event loop owns one window.
package viewer

import (
	"github.com/starmap-tiles/server/internal/starmap"
)

// Command types sent by the browser.
const (
	CmdRender = "render"
	CmdDrag   = "drag"
	CmdZoom   = "zoom"
	CmdResize = "resize"
)

// Command is an inbound message.
type Command struct {
	Type string `json:"type"`

	// render
	X int `json:"x,omitempty"`
	Y int `json:"y,omitempty"`
	// render, zoom
	Zoom int `json:"zoom,omitempty"`
	// drag: surface offset when the drag was released
	Offset *starmap.Point `json:"offset,omitempty"`
	// resize
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// Op types sent to the browser.
const (
	OpSurface    = "surface"
	OpMount      = "mount"
	OpContent    = "content"
	OpMove       = "move"
	OpReposition = "reposition"
	OpClear      = "clear"
)

// Op is one element operation the browser applies to its DOM.
type Op struct {
	Op     string         `json:"op"`
	Slot   *int           `json:"slot,omitempty"`
	From   *int           `json:"from,omitempty"`
	To     *int           `json:"to,omitempty"`
	Tile   *starmap.Tile  `json:"tile,omitempty"`
	Offset *starmap.Point `json:"offset,omitempty"`
	Size   *starmap.Size  `json:"size,omitempty"`
	HTML   string         `json:"html,omitempty"`
	Stars  int            `json:"stars,omitempty"`
}

// Message types sent to the browser.
const (
	MsgSession = "session"
	MsgOps     = "ops"
	MsgView    = "view"
	MsgError   = "error"
)

// Message is an outbound frame.
type Message struct {
	Type    string             `json:"type"`
	Session string             `json:"session,omitempty"`
	Ops     []Op               `json:"ops,omitempty"`
	View    *starmap.ViewState `json:"view,omitempty"`
	Outcome *Outcome           `json:"outcome,omitempty"`
	Pending int                `json:"pending"`
	Error   string             `json:"error,omitempty"`
}

// Outcome is the wire form of starmap.Outcome.
type Outcome struct {
	Kind      string `json:"kind"`
	Target    int    `json:"target"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Refetched []int  `json:"refetched"`
}

func newOutcome(o starmap.Outcome) *Outcome {
	refetched := o.Refetched
	if refetched == nil {
		refetched = []int{}
	}
	return &Outcome{Kind: o.Kind.String(), Target: o.Target, X: o.X, Y: o.Y, Refetched: refetched}
}

func intp(v int) *int { return &v }
