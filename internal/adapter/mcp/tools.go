package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/guillermoBallester/auditspool/internal/core/service"
)

const serverName = "auditspool"

// Admin tool names.
const (
	toolRotate = "rotate_audit_log"
	toolStatus = "audit_status"
)

const (
	descRotate = "Force every audit writer to close its current audit log file. " +
		"Each writer reopens on its next event, at the file name computed from the current settings. " +
		"Requests made while one is still pending collapse into it."

	descStatus = "Report the audit log file writers are currently targeting, the next scheduled rotation, " +
		"the rotation interval and timezone, and whether a forced rotation is still pending."
)

func RegisterTools(s *server.MCPServer, admin *service.AdminService) {
	s.AddTool(
		mcp.NewTool(toolRotate,
			mcp.WithDescription(descRotate),
			mcp.WithDestructiveHintAnnotation(false),
		),
		rotateHandler(admin),
	)

	s.AddTool(
		mcp.NewTool(toolStatus,
			mcp.WithDescription(descStatus),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		statusHandler(admin),
	)
}

func rotateHandler(admin *service.AdminService) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := admin.RequestRotation(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("rotation request failed: %v", err)), nil
		}
		return statusResult(ctx, admin)
	}
}

func statusHandler(admin *service.AdminService) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return statusResult(ctx, admin)
	}
}

func statusResult(ctx context.Context, admin *service.AdminService) (*mcp.CallToolResult, error) {
	st, err := admin.Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read status: %v", err)), nil
	}

	data, err := json.Marshal(st)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}

	return mcp.NewToolResultText(string(data)), nil
}
