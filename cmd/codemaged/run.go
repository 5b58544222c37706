package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/codemage/internal/artifact"
	"github.com/fyrsmithlabs/codemage/internal/codescan"
	"github.com/fyrsmithlabs/codemage/internal/config"
	"github.com/fyrsmithlabs/codemage/internal/events"
	"github.com/fyrsmithlabs/codemage/internal/generator"
	"github.com/fyrsmithlabs/codemage/internal/hostdir"
	httpserver "github.com/fyrsmithlabs/codemage/internal/http"
	"github.com/fyrsmithlabs/codemage/internal/installer"
	"github.com/fyrsmithlabs/codemage/internal/llm"
	"github.com/fyrsmithlabs/codemage/internal/logging"
	"github.com/fyrsmithlabs/codemage/internal/mcp"
	"github.com/fyrsmithlabs/codemage/internal/synth"
)

type options struct {
	configPath string
	mcp        bool
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// app holds everything run wires together.
type app struct {
	cfg        *config.Config
	logger     *logging.Logger
	registry   *prometheus.Registry
	broadcast  *events.Broadcaster
	natsSink   *events.NATSSink
	resolver   *hostdir.Resolver
	installer  *installer.Client
	generator  *generator.Orchestrator
	httpServer *httpserver.Server
	mcpServer  *mcp.Server
}

// run builds the daemon and blocks until ctx is cancelled or a server
// fails.
//
// Startup order:
//  1. Load and validate configuration
//  2. Initialize logger (stderr when MCP owns stdout)
//  3. Build model client, synthesizer and host collaborators
//  4. Wire event sinks (broadcaster, log, optional NATS)
//  5. Build the orchestrator, HTTP server and optional MCP server
//  6. Run servers in one errgroup and shut down gracefully
func run(ctx context.Context, opts options) error {
	cfg, err := config.LoadWithFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	output := "stdout"
	if opts.mcp {
		output = "stderr"
	}
	logCfg, err := logging.FromAppConfig(cfg.Logging, output)
	if err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	a, err := build(cfg, logger, opts)
	if err != nil {
		return err
	}
	defer a.close()

	logger.Info(ctx, "starting codemaged",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("mcp", opts.mcp),
		zap.Bool("auto_approve", cfg.Generation.AutoApprove),
		zap.Bool("nats", a.natsSink != nil),
		zap.Bool("installer", a.installer.Configured()),
	)
	return a.serve(ctx)
}

func build(cfg *config.Config, logger *logging.Logger, opts options) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client, err := llm.New(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}
	synthesizer := synth.New(client, synth.Options{AllowDependencies: cfg.Generation.AllowDependencies}, logger)

	a.resolver = hostdir.NewResolver(cfg.Host)
	if v := a.resolver.ValidateLayout(); !v.Valid {
		logger.Warn(context.Background(), "host layout incomplete; generations will fail until fixed",
			zap.Strings("issues", v.Issues))
	}

	writer := artifact.NewWriter(artifact.Options{
		AllowDependencies: cfg.Generation.AllowDependencies,
		GitInit:           cfg.Artifact.GitInit,
		GitAuthor:         cfg.Artifact.GitAuthor,
		GitEmail:          cfg.Artifact.GitEmail,
	}, logger)

	a.installer = installer.New(cfg.Installer, logger, installer.WithPluginsRoot(a.resolver.PluginsRoot))

	a.broadcast = events.NewBroadcaster(cfg.Events.Buffer)
	sinks := []events.Sink{a.broadcast, events.NewLogSink(logger)}
	if cfg.Events.NATSURL != "" {
		a.natsSink, err = events.Connect(cfg.Events.NATSURL, cfg.Events.NATSSubject, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		sinks = append(sinks, a.natsSink)
	}

	var reg prometheus.Registerer
	if cfg.Observability.MetricsEnabled {
		reg = a.registry
	}

	a.generator, err = generator.New(cfg.Generation, generator.Deps{
		Synth:     synthesizer,
		Dirs:      a.resolver,
		Writer:    writer,
		Installer: a.installer,
		Scanner:   codescan.New(),
		Sink:      events.Multi(sinks...),
		Metrics:   generator.NewMetrics(reg),
		Logger:    logger,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	a.httpServer, err = httpserver.NewServer(httpserver.Deps{
		Generator:  a.generator,
		Plugins:    a.resolver,
		Installer:  a.installer,
		Events:     a.broadcast,
		Registerer: a.registry,
		Gatherer:   a.registry,
		Logger:     logger,
	}, &httpserver.Config{Host: cfg.Server.Host, Port: cfg.Server.Port})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("creating http server: %w", err)
	}

	if opts.mcp {
		a.mcpServer, err = mcp.NewServer(&mcp.Config{
			Name:       "codemage",
			Version:    version,
			Registerer: reg,
			Logger:     logger,
		}, a.generator)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("creating mcp server: %w", err)
		}
	}

	return a, nil
}

// serve runs the servers until ctx is done. An MCP client disconnecting
// stops the daemon too.
func (a *app) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.httpServer.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer done()
		return a.httpServer.Shutdown(shutdownCtx)
	})

	if a.mcpServer != nil {
		g.Go(func() error {
			defer cancel()
			if err := a.mcpServer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	a.logger.Info(context.Background(), "codemaged stopped")
	return err
}

func (a *app) shutdownTimeout() time.Duration {
	if d := a.cfg.Server.ShutdownTimeout.Duration(); d > 0 {
		return d
	}
	return 10 * time.Second
}

func (a *app) close() {
	if a.broadcast != nil {
		a.broadcast.Close()
	}
	if a.natsSink != nil {
		if err := a.natsSink.Close(); err != nil {
			a.logger.Warn(context.Background(), "draining NATS connection", zap.Error(err))
		}
	}
}
