package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/starmap-tiles/server/internal/markup"
	"github.com/starmap-tiles/server/internal/starmap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
)

// WindowFactory creates the windows sessions drive.
type WindowFactory interface {
	NewWindow(renderer starmap.Renderer, viewport starmap.Size) (*starmap.Window, error)
	Templates() *markup.Templates
}

// Session is one connected viewer. Run owns the window; nothing else touches
// it.
type Session struct {
	id       string
	conn     *websocket.Conn
	window   *starmap.Window
	renderer *SocketRenderer
	commands chan Command
}

// NewSession creates a session for an upgraded connection.
func NewSession(conn *websocket.Conn, factory WindowFactory, viewport starmap.Size) (*Session, error) {
	renderer := NewSocketRenderer(factory.Templates())
	w, err := factory.NewWindow(renderer, viewport)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	return &Session{
		id:       uuid.NewString(),
		conn:     conn,
		window:   w,
		renderer: renderer,
		commands: make(chan Command, 16),
	}, nil
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Run reads commands and applies fetch completions until the connection
// closes or ctx is cancelled. It closes the window and the connection.
func (s *Session) Run(ctx context.Context) error {
	defer s.conn.Close()
	defer s.window.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.readLoop(ctx)

	if err := s.send(Message{Type: MsgSession, Session: s.id}); err != nil {
		return err
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case cmd, ok := <-s.commands:
			if !ok {
				return nil
			}
			if err := s.handle(cmd); err != nil {
				return err
			}
		case c := <-s.window.Completions():
			if !s.window.Apply(c) {
				continue
			}
			if err := s.flush(nil, nil); err != nil {
				return err
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case <-ctx.Done():
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return ctx.Err()
		}
	}
}

func (s *Session) readLoop(ctx context.Context) {
	defer close(s.commands)

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Session %s] read error: %v", s.id, err)
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			cmd = Command{Type: "invalid"}
		}
		select {
		case s.commands <- cmd:
		case <-ctx.Done():
			return
		}
	}
}

// handle applies one command. Command errors are reported to the browser;
// only write failures end the session.
func (s *Session) handle(cmd Command) error {
	var (
		err     error
		outcome *Outcome
	)
	switch cmd.Type {
	case CmdRender:
		var opts []starmap.RenderOption
		if cmd.Zoom != 0 {
			opts = append(opts, starmap.WithZoom(cmd.Zoom))
		}
		err = s.window.FullRender(cmd.X, cmd.Y, opts...)
	case CmdDrag:
		if cmd.Offset == nil {
			err = errors.New("drag requires an offset")
			break
		}
		var o starmap.Outcome
		o, err = s.window.DragReleased(*cmd.Offset)
		if err == nil {
			outcome = newOutcome(o)
		}
	case CmdZoom:
		err = s.window.SetZoom(cmd.Zoom)
	case CmdResize:
		if cmd.Width <= 0 || cmd.Height <= 0 {
			err = fmt.Errorf("invalid viewport %dx%d", cmd.Width, cmd.Height)
			break
		}
		s.window.Resize(starmap.Size{Width: cmd.Width, Height: cmd.Height})
	default:
		err = fmt.Errorf("unknown command %q", cmd.Type)
	}

	if err != nil {
		s.renderer.Drain()
		return s.send(Message{Type: MsgError, Error: err.Error(), Pending: s.window.Pending()})
	}
	view := s.window.View()
	return s.flush(&view, outcome)
}

// flush sends the buffered element operations, with the view when given.
func (s *Session) flush(view *starmap.ViewState, outcome *Outcome) error {
	ops := s.renderer.Drain()
	if len(ops) == 0 && view == nil {
		return nil
	}
	msgType := MsgOps
	if view != nil {
		msgType = MsgView
	}
	return s.send(Message{Type: msgType, Ops: ops, View: view, Outcome: outcome, Pending: s.window.Pending()})
}

func (s *Session) send(m Message) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(m)
}
