// Package statusapi serves health, session status and metrics over HTTP.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dayuer/charbot-go/internal/lane"
)

// SessionStatus is the session part of /api/status.
type SessionStatus struct {
	Status         string    `json:"status"`
	BoundGroupID   string    `json:"boundGroupId,omitempty"`
	BoundGroupName string    `json:"boundGroupName,omitempty"`
	ActivatedAt    time.Time `json:"activatedAt,omitempty"`
}

// Status is the /api/status document.
type Status struct {
	InstanceID string          `json:"instanceId"`
	Uptime     string          `json:"uptime"`
	Session    SessionStatus   `json:"session"`
	Channels   map[string]bool `json:"channels"`
	Mappings   struct {
		Static  int `json:"static"`
		Learned int `json:"learned"`
	} `json:"mappings"`
	Services []string   `json:"services,omitempty"`
	Lanes    lane.Stats `json:"lanes"`
}

// Config configures the Server.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	InstanceID string
	Status     func() Status  // fills everything but InstanceID and Uptime
	Metrics    http.Handler   // nil disables /metrics
	Logger     *zap.Logger
}

// Server is the status HTTP server.
type Server struct {
	cfg       Config
	router    chi.Router
	srv       *http.Server
	startTime time.Time
	logger    *zap.Logger
}

// NewServer creates the server and registers its routes.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Server{
		cfg:       cfg,
		startTime: time.Now(),
		logger:    cfg.Logger.Named("statusapi"),
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Use(s.withAuth)
		r.Get("/status", s.handleStatus)
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	s.router = r
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("status API listening", zap.String("addr", s.srv.Addr))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// --- Auth middleware ---

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("Authorization") != "Bearer "+s.cfg.APIKey {
			writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"status":     "ok",
		"instanceId": s.cfg.InstanceID,
		"uptime":     time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var st Status
	if s.cfg.Status != nil {
		st = s.cfg.Status()
	}
	st.InstanceID = s.cfg.InstanceID
	st.Uptime = time.Since(s.startTime).Round(time.Second).String()
	writeJSON(w, st)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
