package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fyrsmithlabs/codemage/internal/generator"
	"github.com/fyrsmithlabs/codemage/internal/logging"
)

// Generator is the orchestrator surface exposed as tools.
type Generator interface {
	Start(ctx context.Context, description, origin string) (*generator.Result, error)
	Confirm(ctx context.Context, approved bool, feedback string) (*generator.Result, error)
	Status() generator.Status
	Pending() generator.Pending
}

// Server is an MCP server backed by a Generator.
type Server struct {
	mcp     *mcp.Server
	gen     Generator
	metrics *Metrics
	logger  *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "codemage")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Registerer receives tool metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer

	Logger *logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "codemage",
		Version: "1.0.0",
		Logger:  logging.NewNop(),
	}
}

// NewServer creates an MCP server with the plugin tools registered.
func NewServer(cfg *Config, gen Generator) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		gen:     gen,
		metrics: NewMetrics(cfg.Registerer),
		logger:  cfg.Logger.Named("mcp"),
	}
	s.registerTools()

	return s, nil
}

// Run serves on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session on t. Used with in-memory transports.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}
