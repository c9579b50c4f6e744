// Package webview serves a live view of the channel lines over a
// websocket, next to the Prometheus metrics.
package webview

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Server serves the viewer page, the websocket feed and the metrics.
type Server struct {
	hub     *Hub
	metrics http.Handler
	legend  template.HTML
	mux     *http.ServeMux
	nextID  atomic.Uint64
}

// NewServer creates a server. metrics may be nil. legend is trusted,
// already sanitized HTML shown above the line view.
func NewServer(hub *Hub, metrics http.Handler, legend string) *Server {
	s := &Server{
		hub:     hub,
		metrics: metrics,
		legend:  template.HTML(legend),
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe runs the server until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Web viewer listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web viewer: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("web viewer shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	CheckOrigin: func(r *http.Request) bool {
		// Only the page served by this host may open the feed.
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		host := r.Host
		if origin == "http://"+host || origin == "https://"+host {
			return true
		}
		slog.Warn("Rejected WebSocket connection from unauthorized origin", "origin", origin, "host", host)
		return false
	},
}

// parseChannels parses a comma separated channel filter like "0,2".
func parseChannels(raw string) (map[uint8]bool, error) {
	if raw == "" {
		return nil, nil
	}
	channels := make(map[uint8]bool)
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 5)
		if err != nil {
			return nil, fmt.Errorf("invalid channel %q", part)
		}
		channels[uint8(id)] = true
	}
	return channels, nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	channels, err := parseChannels(r.URL.Query().Get("channel"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade to WebSocket", "error", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Error("Failed to close WebSocket connection", "error", err)
		}
	}()

	client := &Client{
		ID:       fmt.Sprintf("web-%d", s.nextID.Add(1)),
		Channels: channels,
		Send:     make(chan Line, DefaultBacklog+100),
		Done:     make(chan struct{}),
	}
	s.hub.RegisterClient(client)
	defer s.hub.UnregisterClient(client.ID)
	defer close(client.Done)

	// The reader only exists to notice the close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case line := <-client.Send:
			if err := conn.WriteJSON(line); err != nil {
				slog.Error("Failed to write WebSocket message", "error", err)
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>swotrace</title>
<style>
body { font-family: monospace; margin: 1em; }
#lines { white-space: pre-wrap; }
.ch { color: #888; }
</style>
</head>
<body>
<div class="legend">{{.Legend}}</div>
<div id="lines"></div>
<script>
const lines = document.getElementById("lines");
const proto = location.protocol === "https:" ? "wss://" : "ws://";
const ws = new WebSocket(proto + location.host + "/ws" + location.search);
ws.onmessage = (ev) => {
  const line = JSON.parse(ev.data);
  const row = document.createElement("div");
  const ch = document.createElement("span");
  ch.className = "ch";
  ch.textContent = "[" + line.channel + "] ";
  row.appendChild(ch);
  row.appendChild(document.createTextNode(line.text));
  lines.appendChild(row);
  window.scrollTo(0, document.body.scrollHeight);
};
</script>
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, map[string]any{"Legend": s.legend}); err != nil {
		slog.Error("Failed to render index", "error", err)
	}
}
