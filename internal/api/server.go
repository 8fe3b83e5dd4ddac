package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/omniface/omniface-go/internal/api/auth"
	mw "github.com/omniface/omniface-go/internal/api/middleware"
	v1 "github.com/omniface/omniface-go/internal/api/v1"
	"github.com/omniface/omniface-go/internal/camera"
	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/datastore"
	"github.com/omniface/omniface-go/internal/inference"
	"github.com/omniface/omniface-go/internal/logger"
	"github.com/omniface/omniface-go/internal/observability"
	"github.com/omniface/omniface-go/internal/session"
)

// Server is the main HTTP server for omniface.
// It manages the Echo framework instance, middleware, and all HTTP routes.
type Server struct {
	// Core components
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings

	// Dependencies
	engine    *session.Engine
	cameras   *camera.Pool
	workers   *inference.Registry
	dataStore datastore.Interface
	tokens    *auth.TokenService
	metrics   *observability.Metrics
	version   string

	// API controller
	apiController *v1.Controller

	// Lifecycle management
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithEngine sets the session engine that serves recognition streams.
func WithEngine(e *session.Engine) ServerOption {
	return func(s *Server) {
		s.engine = e
	}
}

// WithCameraPool sets the camera pool used for listings and health.
func WithCameraPool(p *camera.Pool) ServerOption {
	return func(s *Server) {
		s.cameras = p
	}
}

// WithWorkers sets the inference registry reported by health.
func WithWorkers(r *inference.Registry) ServerOption {
	return func(s *Server) {
		s.workers = r
	}
}

// WithDataStore sets the datastore for the record endpoints.
func WithDataStore(ds datastore.Interface) ServerOption {
	return func(s *Server) {
		s.dataStore = ds
	}
}

// WithTokens sets the JWT validator.
func WithTokens(t *auth.TokenService) ServerOption {
	return func(s *Server) {
		s.tokens = t
	}
}

// WithMetrics sets the observability metrics served on /metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithVersion sets the build version reported by health.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// New creates a new HTTP server with the given settings and options.
func New(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:   config,
		settings: settings,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.engine == nil || s.cameras == nil || s.workers == nil || s.tokens == nil {
		return nil, fmt.Errorf("server requires an engine, a camera pool, a worker registry and a token service")
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	GetLogger().Info("HTTP server initialized",
		logger.String("address", config.Listen),
		logger.Bool("metrics", config.MetricsEnabled && s.metrics != nil))

	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())

	s.echo.Use(mw.NewRequestLoggerWithSkipper(GetLogger(), func(c echo.Context) bool {
		return c.Path() == "/metrics" || c.Path() == "/api/v1/health"
	}))

	securityConfig := mw.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = s.config.AllowedOrigins

	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders(securityConfig))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	if s.config.MetricsEnabled && s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	s.apiController = v1.New(s.echo, s.settings, s.engine, s.cameras, s.workers, s.tokens,
		v1.WithDataStore(s.dataStore),
		v1.WithVersion(s.version))
}

// Start begins serving HTTP requests in a background goroutine.
// Use Shutdown() to stop the server.
func (s *Server) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Serve(); err != nil {
			GetLogger().Error("server error", logger.Error(err))
		}
	}()
}

// Serve blocks until the server is shut down. A clean shutdown returns nil.
func (s *Server) Serve() error {
	GetLogger().Info("starting HTTP server", logger.String("address", s.config.Listen))
	if err := s.echo.Start(s.config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown ends open streams, then stops the listener gracefully.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		// streams are hijacked connections that echo.Shutdown does not wait for
		s.apiController.Shutdown()

		if serr := s.echo.Shutdown(ctx); serr != nil {
			GetLogger().Error("error during server shutdown", logger.Error(serr))
			err = fmt.Errorf("shutdown error: %w", serr)
		}
		s.wg.Wait()
		GetLogger().Info("server shutdown complete")
	})
	return err
}

// Echo returns the underlying Echo instance.
// This is useful for testing or advanced configuration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// APIController returns the v1 controller.
func (s *Server) APIController() *v1.Controller {
	return s.apiController
}
