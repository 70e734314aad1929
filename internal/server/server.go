package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/bookmap/internal/domain"
	"github.com/alanyoungcy/bookmap/internal/server/handler"
	"github.com/alanyoungcy/bookmap/internal/server/middleware"
	"github.com/alanyoungcy/bookmap/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port         int
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RateLimit requests per RateWindow per client IP on /api. Zero
	// disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Heatmap *handler.HeatmapHandler
	View    *handler.ViewHandler
	Venues  *handler.VenueHandler
}

// Extras are optional collaborators. Nil fields switch the matching route
// or middleware off.
type Extras struct {
	Hub      *ws.Hub
	Limiter  domain.RateLimiter
	Gatherer prometheus.Gatherer
}

// Server is the HTTP and WebSocket front of the heatmap engine.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	logger     *slog.Logger
}

// NewServer registers every route and middleware.
func NewServer(cfg Config, handlers Handlers, extras Extras, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Route("/api", func(r chi.Router) {
		if extras.Limiter != nil && cfg.RateLimit > 0 {
			r.Use(middleware.RateLimit(extras.Limiter, cfg.RateLimit, cfg.RateWindow, logger))
		}

		r.Get("/health", handlers.Health.HealthCheck)
		r.Get("/status", handlers.Health.Status)

		r.Get("/layout", handlers.Heatmap.Layout)
		r.Put("/layout/mode", handlers.Heatmap.SetLayoutMode)
		r.Get("/panels", handlers.Heatmap.Panels)
		r.Get("/panels/{index}/cells", handlers.Heatmap.Cells)
		r.Get("/trace", handlers.Heatmap.Trace)
		r.Get("/minimap", handlers.Heatmap.Minimap)

		r.Route("/view", func(r chi.Router) {
			r.Get("/", handlers.View.Get)
			r.Put("/", handlers.View.Put)
			r.Post("/zoom", handlers.View.Zoom)
			r.Post("/pan", handlers.View.Pan)
			r.Post("/reset", handlers.View.Reset)
		})

		r.Get("/venues", handlers.Venues.List)
		r.Put("/venues", handlers.Venues.Put)
		r.Get("/venues/{id}/book", handlers.Venues.Book)
		r.Get("/prices", handlers.Venues.Prices)
		r.Get("/session/events", handlers.Venues.SessionEvents)
	})

	if extras.Hub != nil {
		r.Get("/ws", extras.Hub.HandleWS)
	}
	if extras.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(extras.Gatherer, promhttp.HandlerOpts{}))
	}

	readTimeout, writeTimeout := cfg.ReadTimeout, cfg.WriteTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      r,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  60 * time.Second,
		},
		router: r,
		logger: logger,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
