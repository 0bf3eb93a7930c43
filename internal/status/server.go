// Package status serves the supervisor's local HTTP endpoints: Prometheus
// metrics, a liveness probe and a JSON view of the restart loop.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/psantana5/kiosk-supervisor/internal/launch"
	"github.com/psantana5/kiosk-supervisor/internal/logging"
	"github.com/psantana5/kiosk-supervisor/internal/process"
	"github.com/psantana5/kiosk-supervisor/internal/report"
	"github.com/psantana5/kiosk-supervisor/internal/supervisor"
)

// Source is what the status endpoints read from. *supervisor.Supervisor implements it.
type Source interface {
	Snapshot() supervisor.State
	History() *report.History
	Config() launch.Config
}

// Response is the body of GET /status
type Response struct {
	State   supervisor.State    `json:"state"`
	Launch  launch.Config       `json:"launch"`
	Browser *process.Usage      `json:"browser,omitempty"`
	Recent  []report.ExitSample `json:"recent_exits"`
	Uptime  string              `json:"uptime,omitempty"`
	Time    time.Time           `json:"timestamp"`
}

// Server exposes /metrics, /healthz and /status
type Server struct {
	addr    string
	source  Source
	metrics http.Handler
	current func() int
	logger  *logging.Logger
	router  *mux.Router
	server  *http.Server
}

// New builds the router. metrics and current may be nil.
func New(addr string, source Source, metrics http.Handler, current func() int, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}

	s := &Server{
		addr:    addr,
		source:  source,
		metrics: metrics,
		current: current,
		logger:  logger,
		router:  mux.NewRouter(),
	}
	s.registerRoutes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.router.Use(requestLogger(s.logger))
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods("GET")
	}
	s.router.HandleFunc("/healthz", s.health).Methods("GET")
	s.router.HandleFunc("/status", s.status).Methods("GET")
}

// Handler returns the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background.
// Bind errors are returned, serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.logger.Info("Status endpoint listening", map[string]interface{}{"addr": ln.Addr().String()})

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server error", map[string]interface{}{"error": err.Error()})
		}
	}()
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requestLogger logs every request at debug level
func requestLogger(logger *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("Status request", map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"remote":   r.RemoteAddr,
				"duration": time.Since(start).String(),
			})
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	state := s.source.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	if state.Phase == supervisor.PhaseStopped {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    healthStatus(state.Phase),
		"phase":     state.Phase,
		"iteration": state.Iteration,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func healthStatus(p supervisor.Phase) string {
	if p == supervisor.PhaseStopped {
		return "stopped"
	}
	return "healthy"
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	now := time.Now()
	state := s.source.Snapshot()
	resp := Response{
		State:  state,
		Launch: s.source.Config(),
		Recent: s.source.History().Recent(limit),
		Time:   now,
	}
	if !state.StartedAt.IsZero() {
		resp.Uptime = now.Sub(state.StartedAt).Round(time.Second).String()
	}
	if s.current != nil {
		if pid := s.current(); pid > 0 {
			if usage, err := process.TreeUsage(pid); err == nil {
				resp.Browser = &usage
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
