// Package server provides the HTTP status endpoints of the monitor.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/powa-team/pgtop/internal/logger"
	"github.com/powa-team/pgtop/internal/model"
)

// StatusProvider exposes the status of the last completed cycle.
type StatusProvider interface {
	Status() model.Status
}

// Options configures a Server.
type Options struct {
	// Addr is the listen address, e.g. ":9187".
	Addr string

	// StaleAfter is how old the last cycle may be for /readyz to succeed.
	StaleAfter time.Duration

	Logger logger.Logger
	Now    func() time.Time
}

// Server provides HTTP endpoints for health checks and monitoring.
type Server struct {
	opts     Options
	status   StatusProvider
	log      logger.Logger
	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
	started  time.Time
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Uptime    string    `json:"uptime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
	Monitor   *Monitor  `json:"monitor,omitempty"`
}

// Monitor is the status summary served by /healthz.
type Monitor struct {
	Connected    bool               `json:"connected"`
	Cycles       int64              `json:"cycles"`
	Reconnects   int64              `json:"reconnects"`
	UpdatedAt    time.Time          `json:"updated_at"`
	LastError    string             `json:"last_error,omitempty"`
	Hosts        []model.HostStatus `json:"hosts"`
	BlockedCount int                `json:"blocked_count"`
	SlowCount    int                `json:"slow_count"`
}

// New creates a new Server.
func New(opts Options, status StatusProvider) *Server {
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		opts:    opts,
		status:  status,
		log:     opts.Logger,
		started: opts.Now(),
	}
}

// Handler returns the router of the status endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/livez", s.handleLive)
	return mux
}

// Start binds the listen address and serves requests in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.opts.Addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		s.log.Info("status server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status server error: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

// handleHealth serves /healthz: the monitor summary, 503 while disconnected.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.status.Status()
	response := HealthResponse{
		Status:    "ok",
		Timestamp: s.opts.Now(),
		Uptime:    s.uptime(),
		Monitor: &Monitor{
			Connected:    status.Connected,
			Cycles:       status.Cycles,
			Reconnects:   status.Reconnects,
			UpdatedAt:    status.UpdatedAt,
			LastError:    status.LastError,
			Hosts:        status.Hosts,
			BlockedCount: status.CountAlerts(model.AlertLock),
			SlowCount:    status.CountAlerts(model.AlertSlowStatement),
		},
	}

	statusCode := http.StatusOK
	if !status.Connected {
		response.Status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(w, statusCode, response)
}

// handleReady serves /readyz: connected, with a cycle no older than StaleAfter.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.status.Status()
	now := s.opts.Now()

	var reason string
	switch {
	case !status.Connected:
		reason = "not connected"
		if status.LastError != "" {
			reason += ": " + status.LastError
		}
	case s.opts.StaleAfter > 0 && now.Sub(status.UpdatedAt) > s.opts.StaleAfter:
		reason = fmt.Sprintf("last cycle completed %s ago", now.Sub(status.UpdatedAt).Round(time.Second))
	}

	if reason != "" {
		s.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "not ready",
			Timestamp: now,
			Reason:    reason,
		})
		return
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ready",
		Timestamp: now,
	})
}

// handleLive serves /livez (liveness probe).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "alive",
		Timestamp: s.opts.Now(),
		Uptime:    s.uptime(),
	})
}

func (s *Server) uptime() string {
	return s.opts.Now().Sub(s.started).Round(time.Second).String()
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("encoding response: %v", err)
	}
}
