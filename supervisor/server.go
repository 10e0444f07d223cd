package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Server exposes the fleet's health, status, and live snapshot feed over
// HTTP, mirroring the teacher's health/status/websocket server shape.
type Server struct {
	sup       *Supervisor
	server    *http.Server
	port      int
	startTime time.Time
	upgrader  websocket.Upgrader
}

// NewServer builds a Server bound to port. Returns nil if port <= 0
// (server disabled), matching the teacher's health-server convention.
func NewServer(sup *Supervisor, port int) *Server {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	s := &Server{
		sup:       sup,
		port:      port,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/sites/", s.siteHandler)
	mux.HandleFunc("/ws/", s.wsHandler)

	return s
}

// Start begins serving in the background. A no-op on a nil Server.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("supervisor: http server error: %v\n", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down. A no-op on a nil Server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]any{
		"status":     "healthy",
		"site_count": len(s.sup.ListSiteIDs()),
		"uptime":     time.Since(s.startTime).String(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, resp)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.sup.AggregatedState())
}

func (s *Server) siteHandler(w http.ResponseWriter, r *http.Request) {
	id, err := siteIDFromPath(r.URL.Path, "/sites/")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctrl, ok := s.sup.GetSite(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, ctrl.Snapshot())
}

// wsHandler upgrades to a websocket connection and streams plant-state
// snapshots for one site, one JSON frame per published snapshot, until
// the client disconnects or the site's broadcaster is torn down.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := siteIDFromPath(r.URL.Path, "/ws/")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctrl, ok := s.sup.GetSite(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close() //nolint:gosec

	ch, cancel := ctrl.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(ctrl.Snapshot()); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func siteIDFromPath(path, prefix string) (int, error) {
	suffix := path[len(prefix):]
	var id int
	if _, err := fmt.Sscanf(suffix, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid site id in path %q", path)
	}
	return id, nil
}
