// Package adminhttp exposes the node's operational surface: a liveness
// probe, Prometheus scrape endpoint, and a WebSocket feed that pushes
// epoch-close notifications to connected operators. None of this is on
// the client-facing wire path — it is purely for observability.
package adminhttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ocx/flnode/internal/defl"
)

// EpochEvent is one push-feed message, sent to every connected WebSocket
// client whenever the state machine closes an epoch.
type EpochEvent struct {
	ClosedEpochID int64 `json:"closed_epoch_id"`
	NewEpochID    int64 `json:"new_epoch_id"`
	ClientCount   int   `json:"client_count"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the admin HTTP surface. NewServer wires /healthz, /metrics, and
// /ws/epochs onto a gorilla/mux router.
type Server struct {
	router *mux.Router
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan EpochEvent
	healthy func() bool
}

// NewServer constructs the admin server. healthy reports liveness for
// /healthz; it may be nil, in which case /healthz always reports ok.
func NewServer(healthy func() bool, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		clients: make(map[*websocket.Conn]chan EpochEvent),
		healthy: healthy,
	}
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/ws/epochs", s.handleEpochFeed)
	return s
}

// Router returns the underlying http.Handler for http.ListenAndServe.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.healthy != nil && !s.healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleEpochFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("adminhttp: websocket upgrade failed", "err", err)
		return
	}

	ch := make(chan EpochEvent, 16)
	s.mu.Lock()
	s.clients[conn] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for event := range ch {
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}
}

// PublishEpochClose fans an EpochEvent out to every connected operator.
// It satisfies node.EpochObserver; the node calls it on every epoch close
// when the server is set as node.Config.Observer.
func (s *Server) PublishEpochClose(closed defl.EpochDatabank, newEpochID int64) {
	event := EpochEvent{
		ClosedEpochID: closed.EpochID,
		NewEpochID:    newEpochID,
		ClientCount:   len(closed.ClientWeights),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.clients {
		select {
		case ch <- event:
		default:
			s.logger.Warn("adminhttp: epoch feed client is slow, dropping event", "remote", conn.RemoteAddr())
		}
	}
}
