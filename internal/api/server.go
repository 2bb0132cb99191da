package api

import (
	"net/http"

	"github.com/reelindex/reelindex/internal/config"
	"github.com/reelindex/reelindex/internal/db"
	"github.com/reelindex/reelindex/internal/httputil"
	"github.com/reelindex/reelindex/internal/jobs"
	"github.com/reelindex/reelindex/internal/repository"
	"github.com/reelindex/reelindex/internal/scheduler"
	"github.com/reelindex/reelindex/internal/version"
)

// Server is the scanner's control API, modelled directly on the teacher's
// api.Server: a plain *http.ServeMux with Go 1.22 "METHOD /path" patterns and
// the shared httputil JSON envelope. Authentication middleware is
// intentionally absent — the spec lists authentication as an explicit
// non-goal feature (see DESIGN.md).
type Server struct {
	config    *config.Config
	db        *db.DB
	indexRepo *repository.IndexRepository
	jobQueue  *jobs.Queue
	scheduler *scheduler.Scheduler
	wsHub     *WSHub
	router    *http.ServeMux
}

func NewServer(cfg *config.Config, database *db.DB, jobQueue *jobs.Queue, sched *scheduler.Scheduler) *Server {
	s := &Server{
		config:    cfg,
		db:        database,
		indexRepo: repository.NewIndexRepository(database.DB),
		jobQueue:  jobQueue,
		scheduler: sched,
		wsHub:     NewWSHub(),
		router:    http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)

	s.router.HandleFunc("GET /api/v1/indexes", s.handleListIndexes)
	s.router.HandleFunc("POST /api/v1/indexes", s.handleCreateIndex)
	s.router.HandleFunc("GET /api/v1/indexes/{id}", s.handleGetIndex)
	s.router.HandleFunc("POST /api/v1/indexes/{id}/scan", s.handleScanIndex)
	s.router.HandleFunc("POST /api/v1/indexes/{id}/cancel", s.handleCancelScan)
	s.router.HandleFunc("GET /api/v1/indexes/{id}/status", s.handleIndexStatus)

	s.router.HandleFunc("GET /api/v1/ws", s.handleWebSocket)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Load().Version})
}

func (s *Server) Start() error {
	handler := s.corsMiddleware(s.router)
	return http.ListenAndServe(s.config.Addr(), handler)
}

// corsMiddleware handles CORS preflight and response headers globally,
// kept near-verbatim from the teacher's server.go.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Requested-With")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
