package mcp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rolekeeper/rolekeeper/internal/console"
	"github.com/rolekeeper/rolekeeper/internal/model"
)

// ActivityLister reads the console's audit trail.
type ActivityLister interface {
	ListActivity(ctx context.Context, filter model.ActivityFilter) ([]model.Activity, error)
}

// Options controls which tools are exposed.
type Options struct {
	Version string
	// ReadOnly hides every tool that edits or saves the document.
	ReadOnly bool
}

// MCPServer wraps the mcp-go server with the role console's tools and
// resources. It exposes the editing session so AI agents can inspect
// permissions, add or remove roles and save the result.
type MCPServer struct {
	session  *console.Session
	activity ActivityLister
	opts     Options
	logger   *slog.Logger
	server   *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with all tools and
// resources. activity may be nil, in which case the activity tool is not
// registered. The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(session *console.Session, activity ActivityLister, opts Options, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &MCPServer{
		session:  session,
		activity: activity,
		opts:     opts,
		logger:   logger,
	}

	mcpServer := server.NewMCPServer(
		"rolekeeper",
		opts.Version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, for clients that launch
// the server as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode", "read_only", s.opts.ReadOnly)
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the MCP server in Streamable HTTP mode, listening on
// the given address (e.g. ":3001").
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr, "read_only", s.opts.ReadOnly)
	return httpServer.Start(addr)
}

// HTTPHandler returns a Streamable HTTP handler that can be mounted on the
// console router.
func (s *MCPServer) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.server, server.WithEndpointPath("/mcp"))
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func mutatingAnnotation(destructive bool) mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:    boolPtr(false),
		DestructiveHint: boolPtr(destructive),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
