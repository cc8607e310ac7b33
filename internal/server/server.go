package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/agent-trace/bridge/internal/demo"
	"github.com/agent-trace/bridge/internal/frontend"
	"github.com/agent-trace/bridge/internal/hub"
	"github.com/agent-trace/bridge/internal/session"
	"github.com/agent-trace/bridge/internal/sink"
	"github.com/agent-trace/bridge/internal/trace"
)

// maxIngestBytes caps one ingest request body.
const maxIngestBytes = 1 << 20

// Server is the bridge's HTTP surface: the live event stream (SSE and
// websocket), event ingest, and the sessions/stats/health read APIs.
type Server struct {
	logger  *zap.Logger
	hub     *hub.Hub
	store   *session.Store
	events  *sink.Multi
	gen     *demo.Generator
	http    *http.Server
	started time.Time
}

func NewServer(logger *zap.Logger, host string, port int, h *hub.Hub, store *session.Store, events *sink.Multi) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger:  logger,
		hub:     h,
		store:   store,
		events:  events,
		started: time.Now(),
	}

	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: corsMiddleware(mux),
	}
	return s
}

// SetGenerator wires the demo generator into the stats endpoint. Optional;
// without it the stats payload simply omits the generator section.
func (s *Server) SetGenerator(g *demo.Generator) {
	s.gen = g
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/", frontend.Handler())
}

// Handler exposes the full route set including middleware.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves until Shutdown; it returns http.ErrServerClosed after a
// graceful stop.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests,
// bounded by ctx. Streaming observers are closed via the hub before this is
// called, otherwise their open responses would hold the drain until ctx
// expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// corsMiddleware opens every route to browser observers from any origin and
// answers preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleStream(w, r)
	case http.MethodPost:
		s.handleIngest(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleIngest accepts one JSON event or a stream of them (NDJSON, or any
// whitespace-separated concatenation), validates each, and hands them to the
// multiplexer. Events already accepted stay accepted when a later one in the
// same body is rejected.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBytes)
	dec := json.NewDecoder(r.Body)

	accepted := 0
	for {
		var ev trace.Event
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			http.Error(w, fmt.Sprintf("invalid event: %v", err), http.StatusBadRequest)
			return
		}
		if !ev.Kind.Valid() {
			http.Error(w, fmt.Sprintf("unknown event kind %q", ev.Kind), http.StatusBadRequest)
			return
		}
		if ev.Timestamp == 0 {
			ev.Timestamp = time.Now().UnixMilli()
		}
		if err := s.events.Write(r.Context(), ev.SessionID, &ev); err != nil {
			s.logger.Error("ingest write failed", zap.Error(err))
			http.Error(w, "write failed", http.StatusInternalServerError)
			return
		}
		accepted++
	}
	if accepted == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]int{"accepted": accepted})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.store.All())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
