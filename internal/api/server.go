package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/studyabroad/services/applications/config"
	"example.com/studyabroad/services/applications/internal/api/handlers"
	"example.com/studyabroad/services/applications/internal/api/middleware"
	"example.com/studyabroad/services/applications/internal/auth"
	"example.com/studyabroad/services/applications/internal/metrics"
	"example.com/studyabroad/services/applications/internal/services"
	"example.com/studyabroad/services/applications/internal/tracing"
)

// Server represents the HTTP server.
type Server struct {
	config     config.Config
	router     *gin.Engine
	httpServer *http.Server
	engine     *services.ApplicationService
	resolver   auth.Resolver
	metrics    *metrics.Metrics
	tracer     tracing.Tracer
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg config.Config,
	engine *services.ApplicationService,
	resolver auth.Resolver,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:   cfg,
		engine:   engine,
		resolver: resolver,
		metrics:  metricsCollector,
		tracer:   tracer,
	}

	server.router = server.setupRouter()
	server.httpServer = &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: server.router,
	}

	return server
}

// setupRouter configures the HTTP router.
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())

	applicationHandler := handlers.NewApplicationHandler(s.engine)
	applicationHandler.RegisterRoutes(router, middleware.Identity(s.resolver))

	metricsHandler := handlers.NewMetricsHandler(s.metrics, s.tracer)
	metricsHandler.RegisterRoutes(router)

	return router
}

// Router exposes the configured router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
