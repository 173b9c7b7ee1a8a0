// Package mcp exposes membankd over the Model Context Protocol so an
// agent can read the memory bank, plan and apply syncs, and invoke the
// side-effect tools through one stdio server.
package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/membankd/internal/executor"
	"github.com/fyrsmithlabs/membankd/internal/membank"
	"github.com/fyrsmithlabs/membankd/internal/reconcile"
	"github.com/fyrsmithlabs/membankd/internal/toolexec"
	"github.com/fyrsmithlabs/membankd/internal/tracker"
)

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "membankd").
	Name string

	// Version is the server version (default: "1.0.0").
	Version string

	// Logger for structured logging.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "membankd",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// Server is the MCP server wiring the engine, executor, store, and
// tool adapter.
type Server struct {
	mcp     *mcp.Server
	store   *membank.Store
	engine  *reconcile.Engine
	exec    *executor.Executor
	client  tracker.Client
	adapter *toolexec.Adapter
	logger  *zap.Logger

	// mu guards the pending proposal. A proposal is consumed exactly
	// once: sync_apply applies it, sync_abort discards it, and a new
	// sync_plan replaces it.
	mu      sync.Mutex
	pending *reconcile.Proposal
}

// NewServer creates the MCP server with all tools registered.
func NewServer(cfg *Config, store *membank.Store, engine *reconcile.Engine, exec *executor.Executor, client tracker.Client, adapter *toolexec.Adapter) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if store == nil {
		return nil, fmt.Errorf("mcp: document store is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("mcp: reconciliation engine is required")
	}
	if exec == nil {
		return nil, fmt.Errorf("mcp: executor is required")
	}
	if client == nil {
		return nil, fmt.Errorf("mcp: tracker client is required")
	}
	if adapter == nil {
		return nil, fmt.Errorf("mcp: tool adapter is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:     mcpServer,
		store:   store,
		engine:  engine,
		exec:    exec,
		client:  client,
		adapter: adapter,
		logger:  cfg.Logger.Named("mcp"),
	}
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// takePending removes and returns the stored proposal.
func (s *Server) takePending() (*reconcile.Proposal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	s.pending = nil
	return p, p != nil
}

func (s *Server) setPending(p *reconcile.Proposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = p
}
