package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rolekeeper/rolekeeper/internal/config"
	"github.com/rolekeeper/rolekeeper/internal/console"
	"github.com/rolekeeper/rolekeeper/internal/handler"
	"github.com/rolekeeper/rolekeeper/internal/server/middleware"
	"github.com/rolekeeper/rolekeeper/internal/ui"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	CORSMethods     []string
	EnableUI        bool
	MaxBodySize     int64 // bytes
	RateLimit       int   // requests per minute per client, 0 disables
	Version         string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8090,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		CORSMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		EnableUI:        true,
		MaxBodySize:     32 * 1024 * 1024, // metadata documents can be large
	}
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics instruments every request and serves /metrics.
func WithMetrics(m *middleware.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMCP mounts an MCP Streamable HTTP handler at /mcp.
func WithMCP(h http.Handler) Option {
	return func(s *Server) { s.mcp = h }
}

// Server is the top-level HTTP server for the console. It owns the Chi
// router, the editing session and the local store.
type Server struct {
	cfg        Config
	router     chi.Router
	session    *console.Session
	store      *config.Store
	metrics    *middleware.Metrics
	mcp        http.Handler
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, session *console.Session, store *config.Store, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		session: session,
		store:   store,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	if s.metrics != nil {
		r.Use(s.metrics.Instrument)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   s.cfg.CORSMethods,
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}

	// --- Probes and descriptions ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Get("/openapi.json", handler.NewOpenAPIHandler(s.cfg.Version).ServeSpec)

	if s.mcp != nil {
		r.Handle("/mcp", s.mcp)
	}

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(middleware.RateLimit(s.cfg.RateLimit))
		}

		metaHandler := handler.NewMetadataHandler(s.session)
		roleHandler := handler.NewRoleHandler(s.session)

		r.Get("/status", metaHandler.Status)

		r.Get("/metadata", metaHandler.GetMetadata)
		r.Get("/metadata/export", metaHandler.Export)
		r.Post("/metadata/reload", metaHandler.Reload)
		r.Post("/metadata/save", metaHandler.Save)
		r.Get("/metadata/changes", metaHandler.Changes)

		r.Get("/tables", metaHandler.Tables)
		r.Get("/sources", metaHandler.Sources)
		r.Get("/tree", metaHandler.Tree)

		r.Get("/roles", roleHandler.ListRoles)
		r.Post("/roles", roleHandler.CreateRole)
		r.Get("/roles/{role}", roleHandler.GetRole)
		r.Delete("/roles/{role}", roleHandler.DeleteRole)
		r.Post("/roles/{role}/select", roleHandler.SelectRole)

		r.Get("/activity", handler.NewActivityHandler(s.store).ListActivity)

		r.Route("/system", func(r chi.Router) {
			sysHandler := handler.NewSystemHandler(s.store)
			r.Get("/settings", sysHandler.ListSettings)
			r.Put("/settings/{key}", sysHandler.PutSetting)
			r.Delete("/settings/{key}", sysHandler.DeleteSetting)
		})
	})

	// --- Embedded console UI ---
	if s.cfg.EnableUI {
		distFS, err := fs.Sub(ui.Dist, "dist")
		if err != nil {
			s.logger.Error("failed to create sub filesystem for UI", "error", err)
		} else {
			fileServer := http.FileServer(http.FS(distFS))
			r.Handle("/assets/*", fileServer)
			// SPA fallback: serve index.html for all UI routes
			spaHandler := func(w http.ResponseWriter, r *http.Request) {
				f, err := distFS.Open("index.html")
				if err != nil {
					http.Error(w, "UI not available", http.StatusNotFound)
					return
				}
				defer f.Close()
				stat, _ := f.Stat()
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				http.ServeContent(w, r, "index.html", stat.ModTime(), f.(io.ReadSeeker))
			}
			r.Get("/roles", spaHandler)
			r.Get("/roles/*", spaHandler)
			r.Get("/", spaHandler)
		}
	}

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 once the metadata document
// has been loaded and the local store answers, 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if st := s.session.Status(); st.Loaded {
		checks["metadata"] = "ok"
	} else {
		checks["metadata"] = "not loaded"
		status = "degraded"
	}

	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			checks["store"] = "error: " + err.Error()
			status = "degraded"
		} else {
			checks["store"] = "ok"
		}
	}

	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe loads the metadata document, starts the HTTP server and
// blocks until a SIGINT or SIGTERM is received. It then performs a graceful
// shutdown, draining in-flight requests. A failed initial load is logged
// and retried on the first request.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.session.EnsureLoaded(ctx); err != nil {
		s.logger.Warn("initial metadata load failed", "error", err)
	}

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if changes, err := s.session.Changes(); err == nil && changes.HasChanges {
		s.logger.Warn("unsaved changes discarded", "added", changes.Added, "removed", changes.Removed, "modified", changes.Modified)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
