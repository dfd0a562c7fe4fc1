package mcp

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// HTTPHandlerOptions configures the HTTP transport behavior.
type HTTPHandlerOptions struct {
	// Stateless disables session management. Default: false (stateful).
	Stateless bool
	// JSONResponse answers with application/json instead of an event stream.
	JSONResponse bool
}

// NewHTTPHandler creates an HTTP handler for the MCP server using Streamable HTTP transport.
func NewHTTPHandler(server *Server, opts *HTTPHandlerOptions) http.Handler {
	if opts == nil {
		opts = &HTTPHandlerOptions{}
	}

	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server.MCPServer()
	}, &mcp.StreamableHTTPOptions{
		Stateless:    opts.Stateless,
		JSONResponse: opts.JSONResponse,
	})
}

// NewHealthMux serves only the health check, for processes whose MCP
// transport is stdio.
func NewHealthMux(health HealthChecker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", NewHealthHandler(health))
	return mux
}

// NewMux mounts the MCP endpoint at /mcp and the health check at /health.
func NewMux(server *Server, health HealthChecker, opts *HTTPHandlerOptions) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", NewHealthHandler(health))
	mux.Handle("/mcp", NewHTTPHandler(server, opts))
	return mux
}
