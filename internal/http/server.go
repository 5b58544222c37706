// Package http serves the generation control surface over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codemage/internal/events"
	"github.com/fyrsmithlabs/codemage/internal/generator"
	"github.com/fyrsmithlabs/codemage/internal/hostdir"
	"github.com/fyrsmithlabs/codemage/internal/installer"
	"github.com/fyrsmithlabs/codemage/internal/logging"
)

// Generator is the orchestrator surface the server drives.
type Generator interface {
	Start(ctx context.Context, description, origin string) (*generator.Result, error)
	Confirm(ctx context.Context, approved bool, feedback string) (*generator.Result, error)
	Reject(ctx context.Context) (*generator.Result, error)
	Status() generator.Status
	Pending() generator.Pending
}

// PluginCatalog lists plugins present on disk.
type PluginCatalog interface {
	ListLocal() ([]hostdir.LocalPlugin, error)
	PluginsRoot() (string, bool)
}

// PluginInstaller pushes and removes plugins on the host.
type PluginInstaller interface {
	InstallDir(ctx context.Context, dir string) (installer.InstallResult, error)
	Uninstall(ctx context.Context, name string) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// Heartbeat is the SSE keepalive interval.
	Heartbeat time.Duration
}

// Deps are the collaborators of a Server. Installer and Events are optional.
type Deps struct {
	Generator Generator
	Plugins   PluginCatalog
	Installer PluginInstaller
	Events    *events.Broadcaster

	// Registerer receives the HTTP metrics; Gatherer backs /metrics.
	// Both default to the prometheus default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	Logger *logging.Logger
}

// Server provides HTTP endpoints for codemage.
type Server struct {
	echo      *echo.Echo
	gen       Generator
	plugins   PluginCatalog
	installer PluginInstaller
	events    *events.Broadcaster
	logger    *logging.Logger
	config    *Config
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, cfg *Config) (*Server, error) {
	if deps.Generator == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}
	if deps.Plugins == nil {
		return nil, fmt.Errorf("plugin catalog cannot be nil")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "127.0.0.1", Port: 6190}
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	if deps.Registerer == nil {
		deps.Registerer = prometheus.DefaultRegisterer
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	logger := deps.Logger.Named("http")
	metrics := NewHTTPMetrics(deps.Registerer)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{
		echo:      e,
		gen:       deps.Generator,
		plugins:   deps.Plugins,
		installer: deps.Installer,
		events:    deps.Events,
		logger:    logger,
		config:    cfg,
	}
	s.registerRoutes(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	return s, nil
}

func (s *Server) registerRoutes(metricsHandler http.Handler) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(metricsHandler))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/generations", s.handleStart)
	v1.POST("/generations/confirm", s.handleConfirm)
	v1.POST("/generations/reject", s.handleReject)
	v1.GET("/status", s.handleStatus)
	v1.GET("/pending", s.handlePending)
	v1.GET("/events", s.handleEvents)

	v1.GET("/plugins", s.handleListPlugins)
	v1.POST("/plugins/install", s.handleInstallPlugin)
	v1.DELETE("/plugins/:name", s.handleUninstallPlugin)
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
