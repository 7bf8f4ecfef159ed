// Package proxy forwards authenticated requests from the browser client to
// the workspace API.
//
// A single route accepts any method. The target path comes from the
// endpoint query parameter, the caller's bearer token is forwarded as-is and
// the API version header is pinned here. Responses are wrapped in an
// Envelope that mirrors the upstream status.
package proxy

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/voicetask/internal/logging"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config holds proxy server configuration.
type Config struct {
	Host            string
	Port            int
	Path            string
	UpstreamURL     string
	UpstreamTimeout time.Duration
	ShutdownTimeout time.Duration
	CacheMaxAge     time.Duration
	Version         string
	UserAgent       string
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 3000
	}
	if c.Path == "" {
		c.Path = "/api/notion"
	}
	if c.UpstreamURL == "" {
		c.UpstreamURL = "https://api.notion.com/v1"
	}
	c.UpstreamURL = strings.TrimRight(c.UpstreamURL, "/")
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = 8 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.CacheMaxAge <= 0 {
		c.CacheMaxAge = 5 * time.Minute
	}
	if c.Version == "" {
		c.Version = "2022-06-28"
	}
	if c.UserAgent == "" {
		c.UserAgent = "Striks-Voice-Task-Manager/1.0"
	}
}

// Server is the workspace proxy.
type Server struct {
	echo     *echo.Echo
	config   Config
	client   *http.Client
	registry *prometheus.Registry
	metrics  *upstreamMetrics
	logger   *zap.Logger
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Upstream string `json:"upstream"`
}

// NewServer creates a proxy server.
func NewServer(cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	registry := prometheus.NewRegistry()
	s := &Server{
		echo:     e,
		config:   cfg,
		client:   &http.Client{},
		registry: registry,
		metrics:  newUpstreamMetrics(registry),
		logger:   logger,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	s.echo.Any(s.config.Path, s.handleProxy, cors)
}

// requestLogger logs each request and carries its ID in the request context.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), reqID)))

			err := next(c)

			s.logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("path", c.Path()),
				zap.String("endpoint", c.QueryParam("endpoint")),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", reqID),
			)
			return err
		}
	}
}

// cors allows every origin, and answers preflight requests itself.
func cors(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set(echo.HeaderAccessControlAllowOrigin, "*")
		h.Set(echo.HeaderAccessControlAllowMethods, "GET, POST, PUT, DELETE, OPTIONS")
		h.Set(echo.HeaderAccessControlAllowHeaders, "Content-Type, Authorization, Notion-Version")
		if c.Request().Method == http.MethodOptions {
			return c.NoContent(http.StatusOK)
		}
		return next(c)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Upstream: s.config.UpstreamURL})
}

// ServeHTTP lets the server be mounted or tested without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
// Returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting workspace proxy",
		zap.String("addr", addr),
		zap.String("path", s.config.Path),
		zap.String("upstream", s.config.UpstreamURL))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down workspace proxy")
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}
