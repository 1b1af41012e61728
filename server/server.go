// Package server provides the daemon-mode HTTP server: run status, on-demand runs, metrics
// and an RSS digest of the last run.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/umputun/newsvault/pkg/domain"
	"github.com/umputun/newsvault/pkg/pipeline"
)

//go:generate moq -out mocks/config.go -pkg mocks -skip-ensure -fmt goimports . ConfigProvider
//go:generate moq -out mocks/runner.go -pkg mocks -skip-ensure -fmt goimports . Runner

// Server represents HTTP server instance
type Server struct {
	config  ConfigProvider
	runner  Runner
	metrics MetricsProvider
	version string
	debug   bool

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// ConfigProvider provides server configuration
type ConfigProvider interface {
	GetServerConfig() (listen string, timeout time.Duration)
}

// Runner controls pipeline runs
type Runner interface {
	RunNow() error
	Running() bool
	LastResult() (res domain.WorkflowResult, runErr error, ok bool)
}

// MetricsProvider exposes collected metrics and instruments handlers
type MetricsProvider interface {
	Handler() http.Handler
	InstrumentHandler(next http.Handler) http.Handler
}

// New initializes a new server instance, metrics are optional
func New(cfg ConfigProvider, runner Runner, metrics MetricsProvider, version string, debug bool) *Server {
	s := &Server{
		config:  cfg,
		runner:  runner,
		metrics: metrics,
		version: version,
		debug:   debug,
		router:  routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	listen, timeout := s.config.GetServerConfig()
	lgr.Printf("[INFO] starting server on %s", listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:              listen,
		Handler:           s.router,
		ReadHeaderTimeout: timeout,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		lgr.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			lgr.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("newsvault", "umputun", s.version))
	s.router.Use(rest.Ping)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}
	if s.metrics != nil {
		s.router.Use(s.metrics.InstrumentHandler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)
		r.HandleFunc("POST /run", s.runHandler)
	})

	s.router.HandleFunc("GET /rss", s.rssHandler)
	s.router.HandleFunc("GET /rss/{category}", s.rssHandler)

	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics.Handler())
	}
}

// statusHandler returns server status with the result of the last run
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC(),
		"running": s.runner.Running(),
	}
	if res, runErr, ok := s.runner.LastResult(); ok {
		status["last_run"] = res
		if runErr != nil {
			status["last_error"] = runErr.Error()
		}
	}
	RenderJSON(w, r, http.StatusOK, status)
}

// runHandler starts a pipeline run in background
func (s *Server) runHandler(w http.ResponseWriter, r *http.Request) {
	err := s.runner.RunNow()
	switch {
	case err == nil:
		RenderJSON(w, r, http.StatusAccepted, map[string]string{"status": "started"})
	case errors.Is(err, pipeline.ErrRunInProgress):
		RenderError(w, r, err, http.StatusConflict)
	case errors.Is(err, pipeline.ErrNotStarted):
		RenderError(w, r, err, http.StatusServiceUnavailable)
	default:
		lgr.Printf("[ERROR] failed to start run: %v", err)
		RenderError(w, r, err, http.StatusInternalServerError)
	}
}

// RenderJSON sends JSON response
func RenderJSON(w http.ResponseWriter, _ *http.Request, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			lgr.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// RenderError sends error response as JSON
func RenderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	RenderJSON(w, r, code, map[string]string{"error": errMsg})
}
