package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"

	"github.com/guillermoBallester/auditspool/internal/core/port"
	"github.com/guillermoBallester/auditspool/internal/core/service"
)

// NewServer creates the operator MCPServer with the audit admin tools and
// reporting hooks.
func NewServer(version string, admin *service.AdminService, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithHooks(AdminHooks(logger, tracer, inst)),
	)

	RegisterTools(s, admin)

	return s
}
