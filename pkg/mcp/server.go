// Package mcp exposes the analysis engine over the Model Context Protocol
// so coding agents can inspect query batches while they work.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Server wraps the mcp-go MCPServer with querypatrol's tool set.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates the MCP server and registers the analysis tools.
func NewServer(deps ToolDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	callLogger := NewCallLogger(deps.Logger)

	mcpServer := server.NewMCPServer(
		"querypatrol",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithHooks(callLogger.Hooks()),
	)

	RegisterAnalyzeTool(mcpServer, deps)
	RegisterCacheStatsTool(mcpServer, deps)
	RegisterHealthTool(mcpServer, deps.Version)

	return &Server{
		mcp:    mcpServer,
		logger: deps.Logger,
	}
}

// MCP returns the underlying MCPServer, mainly for tests and extra tools.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio blocks serving the protocol over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this
// MCP server. The caller owns routing and shutdown.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}
