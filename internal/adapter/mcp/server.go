// Package mcp exposes the review pipeline to AI controllers over the
// Model Context Protocol. Controllers list their open assignments,
// inspect item status and submit decisions through tools; the operator
// queue and the active routing policy are published as resources.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/curatd/curatd/internal/config"
	"github.com/curatd/curatd/internal/domain/assignment"
	"github.com/curatd/curatd/internal/domain/decision"
	"github.com/curatd/curatd/internal/domain/instance"
)

// ServerConfig holds the MCP server settings.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string
}

// PendingLister lists a reviewer's open assignments.
type PendingLister interface {
	Pending(ctx context.Context, reviewerID string, limit int) ([]assignment.ReviewAssignment, error)
}

// StatusReader reads the live status projection of a content item.
type StatusReader interface {
	StatusByContent(ctx context.Context, contentItemID string) (*instance.StatusProjection, error)
}

// DecisionSubmitter relays a reviewer decision to the item's open review gate.
type DecisionSubmitter interface {
	DecideByContent(ctx context.Context, contentItemID string, sig *decision.ReviewSignal) error
}

// AttentionLister lists instances parked for operator resolution.
type AttentionLister interface {
	Attention(ctx context.Context, limit int) ([]instance.WorkflowInstance, error)
}

// PolicyReader reports the routing policy new instances freeze at start.
type PolicyReader interface {
	Policy() config.Review
}

// ServerDeps are the service surfaces the MCP tools and resources call
// into. A nil field disables the corresponding tools; they answer with a
// configuration error instead of panicking.
type ServerDeps struct {
	Pending   PendingLister
	Statuses  StatusReader
	Decisions DecisionSubmitter
	Attention AttentionLister
	Policies  PolicyReader
}

// Server wraps an mcp-go server and serves it over streamable HTTP.
type Server struct {
	cfg        ServerConfig
	deps       ServerDeps
	mcpServer  *mcpserver.MCPServer
	httpServer *http.Server
}

// NewServer builds the MCP server and registers all tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.mcpServer = mcpserver.NewMCPServer(
		cfg.Name,
		cfg.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithRecovery(),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start serves the MCP endpoint in a background goroutine. Requests must
// carry the configured API key; an empty key disables auth.
func (s *Server) Start() error {
	handler := AuthMiddleware(s.cfg.APIKey, mcpserver.NewStreamableHTTPServer(s.mcpServer))
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server stopped", "addr", s.cfg.Addr, "error", err)
		}
	}()
	slog.Info("mcp server listening", "addr", s.cfg.Addr)
	return nil
}

// Stop shuts the listener down. Stop without a prior Start is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
