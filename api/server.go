package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"tachyon/service"
)

// Server exposes the book state over HTTP and streams digests over a
// websocket. It is read-only; the feed is the sole writer.
type Server struct {
	svc  *service.BookService
	log  *zap.Logger
	http *http.Server
	up   websocket.Upgrader
}

func NewServer(addr string, origins []string, svc *service.BookService, log *zap.Logger) *Server {
	s := &Server{
		svc: svc,
		log: log,
		up: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/v1/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/books", s.handleBooks).Methods(http.MethodGet)
	r.HandleFunc("/v1/book/{isin}", s.handleBook).Methods(http.MethodGet)
	r.HandleFunc("/v1/book/{isin}/levels", s.handleLevels).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           cors.New(cors.Options{AllowedOrigins: origins}).Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info("http server listening", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBooks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"isins": s.svc.Isins()})
}

// handleBook renders the plain-text debug table for one book. It reads
// the published digest only; the live book belongs to its writer.
func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	isin := mux.Vars(r)["isin"]
	u, ok := s.svc.Latest(isin)
	if !ok {
		http.Error(w, "unknown isin", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(u.RenderTable()))
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	isin := mux.Vars(r)["isin"]
	u, ok := s.svc.Latest(isin)
	if !ok {
		http.Error(w, "unknown isin", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleWS streams every published digest to the client. Slow clients
// only ever miss intermediate digests, never see stale-after-fresh.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.up.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	reader := s.svc.ObserveUpdates()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	// Drop inbound frames so pings keep the connection alive.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for range ticker.C {
		u, seq, ok := reader.Poll()
		if !ok {
			continue
		}
		if err := conn.WriteJSON(u); err != nil {
			s.log.Debug("ws client gone", zap.Error(err))
			return
		}
		reader.Ack(seq)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
