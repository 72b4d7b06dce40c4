// Package server provides the HTTP server and routing for eqtrak.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/eqtrak/internal/config"
	"github.com/aristath/eqtrak/internal/database"
	"github.com/aristath/eqtrak/internal/di"
	featurehandlers "github.com/aristath/eqtrak/internal/modules/features/handlers"
	ledgerhandlers "github.com/aristath/eqtrak/internal/modules/ledger/handlers"
	metrichandlers "github.com/aristath/eqtrak/internal/modules/metrics/handlers"
	performancehandlers "github.com/aristath/eqtrak/internal/modules/performance/handlers"
	portfoliohandlers "github.com/aristath/eqtrak/internal/modules/portfolio/handlers"
	"github.com/aristath/eqtrak/internal/scheduler"
)

const version = "1.0.0"

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container // DI container with all services
	Port      int
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
	port           int
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	c := cfg.Container

	jobs := map[string]scheduler.Job{}
	if c.Jobs != nil {
		jobs = map[string]scheduler.Job{
			"sync-prices":           c.Jobs.PriceSync,
			"cleanup-cache":         c.Jobs.CacheCleanup,
			"check-core-databases":  c.Jobs.DatabaseCheck,
			"check-wal-checkpoints": c.Jobs.WALCheckpoint,
			"backup":                c.Jobs.Backup,
			"maintenance":           c.Jobs.Maintenance,
		}
	}

	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: c,
		port:      cfg.Port,
		systemHandlers: NewSystemHandlers(
			cfg.Log,
			[]*database.DB{c.MainDB, c.CacheDB},
			c.Scheduler,
			jobs,
			c.MarketDataService,
			c.BackupService,
		),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router exposes the HTTP handler, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// The event stream is long-lived and stays outside the request timeout.
		eventsStreamHandler := NewEventsStreamHandler(s.container.EventBus, s.log)
		r.Get("/events/stream", eventsStreamHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.systemHandlers.HandleSystemStatus)
				r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
				r.Get("/backups", s.systemHandlers.HandleListBackups)
				r.Post("/jobs/{name}", s.systemHandlers.HandleTriggerJob)
			})

			portfoliohandlers.NewHandler(s.container.PortfolioRepo, s.log).RegisterRoutes(r)
			ledgerhandlers.NewHandler(s.container.LedgerRepo, s.log).RegisterRoutes(r)
			metrichandlers.NewHandler(s.container.MetricsService, s.log).RegisterRoutes(r)
			featurehandlers.NewHandler(s.container.FeatureGate, s.log).RegisterRoutes(r)
			performancehandlers.NewHandler(s.container.PerformanceService, s.log).RegisterRoutes(r)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("user_id", r.Header.Get("X-User-ID")).
			Msg("HTTP request")
	})
}
