// Package wsui serves the local web UI: throttle state pushed over a
// websocket, commands accepted on the same connection. Commands from here
// carry WebLocal authority — a person standing at the layout.
package wsui

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"traction/engine"
	"traction/engine/command"
	"traction/engine/telemetry/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = time.Second
	// Maximum inbound message size.
	maxMessageSize = 4096
	// Default interval between state pushes; changes in between are not
	// sent individually.
	pushResolution = 100 * time.Millisecond
)

// Controller is the slice of the runtime loop the UI needs.
type Controller interface {
	Submit(cmd command.Command, src command.Source) (engine.Ack, error)
	State() engine.ThrottleState
}

// Options configure the websocket server.
type Options struct {
	Controller Controller
	Logger     logging.Logger
	// PushInterval overrides the state push cadence (default 100ms).
	PushInterval time.Duration
}

// Server upgrades /ws connections and bridges them to the controller.
type Server struct {
	ctrl     Controller
	log      logging.Logger
	interval time.Duration
	upgrader websocket.Upgrader
}

func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logging.New(nil)
	}
	interval := opts.PushInterval
	if interval <= 0 {
		interval = pushResolution
	}
	return &Server{ctrl: opts.Controller, log: log, interval: interval}
}

// Handler returns the /ws upgrade handler.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveWebsocket)
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.ErrorCtx(r.Context(), "websocket upgrade failed", slog.Any("error", err))
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.readCommands(ctx, cancel, ws)
	s.pushState(ctx, ws)
	s.closeWebsocket(ws)
}

// readCommands decodes wire-JSON commands from the client. A dead or
// misbehaving client only kills its own connection.
func (s *Server) readCommands(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn) {
	defer cancel()
	ws.SetReadLimit(maxMessageSize)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		cmd, err := command.Unmarshal(data)
		if err != nil {
			s.log.InfoCtx(ctx, "ui command undecodable", slog.Any("error", err))
			continue
		}
		if _, err := s.ctrl.Submit(cmd, command.SourceWebLocal); err != nil {
			s.log.InfoCtx(ctx, "ui command rejected", slog.Any("error", err))
		}
	}
}

// pushState streams state snapshots at the configured cadence until the
// connection drops.
func (s *Server) pushState(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	var last engine.ThrottleState
	sent := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.ctrl.State()
			if sent && st == last {
				continue // nothing changed; keep the wire quiet
			}
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := ws.WriteJSON(st); err != nil {
				return
			}
			last, sent = st, true
		}
	}
}

func (s *Server) closeWebsocket(ws *websocket.Conn) {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = ws.Close()
}
