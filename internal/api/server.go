package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/glpibot/glpibot/internal/logbuf"
	"github.com/glpibot/glpibot/pkg/protocol"
)

// LogQuerier abstracts log entry querying to avoid coupling to logbuf directly.
type LogQuerier interface {
	Query(f logbuf.Filter) []logbuf.Entry
}

// NotificationFilter narrows a journal listing.
type NotificationFilter struct {
	TicketID int
	Status   string
	Limit    int
}

// BotService is the interface the API server needs from the running bot.
type BotService interface {
	Sessions() []protocol.SessionInfo
	Snapshots() []protocol.SnapshotInfo
	Stats() protocol.Stats
	Notifications(f NotificationFilter) ([]protocol.NotificationRecord, error)
	PollNow(ctx context.Context) protocol.CycleStats
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
	Key  string // API key for Bearer auth
}

// Server is the glpibot admin API server.
type Server struct {
	svc    BotService
	cfg    Config
	logger *slog.Logger
	logs   LogQuerier
	mux    *http.ServeMux
	srv    *http.Server
}

// NewServer creates a new API server. logs may be nil.
func NewServer(svc BotService, cfg Config, logger *slog.Logger, logs LogQuerier) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		logger: logger,
		logs:   logs,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/sessions", s.requireAuth(s.handleSessions))
	mux.HandleFunc("GET /api/snapshots", s.requireAuth(s.handleSnapshots))
	mux.HandleFunc("GET /api/snapshots/{id}", s.requireAuth(s.handleGetSnapshot))
	mux.HandleFunc("GET /api/stats", s.requireAuth(s.handleStats))
	mux.HandleFunc("GET /api/notifications", s.requireAuth(s.handleNotifications))
	mux.HandleFunc("POST /api/poll", s.requireAuth(s.handlePoll))
	mux.HandleFunc("GET /api/logs", s.requireAuth(s.handleGetLogs))
	s.mux = mux

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Mount registers h at pattern without Bearer auth. Mounted handlers
// authenticate requests themselves.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.svc.Sessions()))
}

func (s *Server) handleSnapshots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.svc.Snapshots()))
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ticket id"})
		return
	}
	for _, snap := range s.svc.Snapshots() {
		if snap.TicketID == id {
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "snapshot not found"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Stats())
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := NotificationFilter{Limit: 50, Status: q.Get("status")}
	if v := q.Get("ticket"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ticket id"})
			return
		}
		filter.TicketID = n
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	records, err := s.svc.Notifications(filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, nonNil(records))
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	stats := s.svc.PollNow(r.Context())
	s.logger.Info("manual poll cycle", "cycle", stats.ID, "notified", stats.Notified)
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	q := r.URL.Query()
	filter := logbuf.Filter{Limit: 200, MinLevel: slog.LevelDebug}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if lvl := q.Get("level"); lvl != "" {
		filter.MinLevel = logbuf.ParseLevel(lvl)
	}
	if v := q.Get("since"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.Since = time.UnixMilli(ms)
		}
	}
	if v := q.Get("ticket"); v != "" {
		filter.AttrKey, filter.AttrValue = "ticket", v
	}

	entries := s.logs.Query(filter)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Helpers ---

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
