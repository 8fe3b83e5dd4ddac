// Package api holds the v1 JSON endpoints and the recognition stream.
package api

import (
	"context"
	"crypto/rand"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/omniface/omniface-go/internal/api/auth"
	"github.com/omniface/omniface-go/internal/camera"
	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/datastore"
	"github.com/omniface/omniface-go/internal/inference"
	"github.com/omniface/omniface-go/internal/logger"
	"github.com/omniface/omniface-go/internal/session"
)

// GetLogger returns the api v1 logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Controller manages the API routes and handlers
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *conf.Settings

	Engine  *session.Engine
	Cameras *camera.Pool
	Workers *inference.Registry
	DS      datastore.Interface // nil when no store is enabled
	Tokens  *auth.TokenService

	version   string
	startTime time.Time

	// ErrorCloseDelay is the pause between a startup error message and the close frame
	ErrorCloseDelay time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	closing bool           // guarded by mu, set once Shutdown starts
	wg      sync.WaitGroup // open streams
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithDataStore sets the record store used by the listing endpoints.
func WithDataStore(ds datastore.Interface) Option {
	return func(c *Controller) {
		c.DS = ds
	}
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(version string) Option {
	return func(c *Controller) {
		c.version = version
	}
}

// New creates the controller and registers its routes below /api/v1
func New(e *echo.Echo, settings *conf.Settings, engine *session.Engine, cameras *camera.Pool,
	workers *inference.Registry, tokens *auth.TokenService, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		Echo:            e,
		Group:           e.Group("/api/v1"),
		Settings:        settings,
		Engine:          engine,
		Cameras:         cameras,
		Workers:         workers,
		Tokens:          tokens,
		startTime:       time.Now(),
		ErrorCloseDelay: settings.Stream.ErrorCloseDelay,
		ctx:             ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ErrorCloseDelay <= 0 {
		c.ErrorCloseDelay = session.DefaultErrorCloseDelay
	}

	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	// the stream authenticates from the query string, browsers cannot set headers on websockets
	c.Group.GET("/recognition/ws", c.HandleRecognitionStream)

	protected := c.Group.Group("", c.Tokens.Middleware())
	protected.GET("/cameras", c.ListCameras)
	protected.POST("/models/reload", c.ReloadModel)
	protected.GET("/attendance/today", c.AttendanceToday)
	protected.GET("/attendance/history", c.AttendanceHistory)
	protected.GET("/exits/today", c.ExitsToday)
	protected.GET("/exits/history", c.ExitsHistory)
}

// Shutdown ends every open stream and waits for their sessions to close
func (c *Controller) Shutdown() {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// trackStream registers an open stream with Shutdown. It reports false once
// shutdown has begun.
func (c *Controller) trackStream() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return false
	}
	c.wg.Add(1)
	return true
}

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

// generateCorrelationID creates a short random identifier for log lookup
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "00000000"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError logs err with a correlation id and writes the JSON error body
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		GetLogger().Error("API error", fields...)
	} else {
		GetLogger().Warn("API error", fields...)
	}

	return ctx.JSON(code, resp)
}
