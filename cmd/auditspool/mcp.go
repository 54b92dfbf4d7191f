package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/guillermoBallester/auditspool/internal/adapter/mcp"
	"github.com/guillermoBallester/auditspool/internal/core/service"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the audit admin tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE:  runMCP,
	}
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.shutdown(context.WithoutCancel(ctx))

	if err := a.requireSignalFile("mcp"); err != nil {
		return err
	}
	sig, closeSignal, err := a.openSignal()
	if err != nil {
		return err
	}
	defer func() { _ = closeSignal() }()

	admin := service.NewAdminService(a.cfg, sig, a.logger)
	mcpServer := mcp.NewServer(version, admin, a.logger, a.tracer, a.inst)

	stdioServer := mcpserver.NewStdioServer(mcpServer)

	a.logger.Info("serving MCP over stdio")
	if err := stdioServer.Listen(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("stdio server: %w", err)
	}

	a.logger.Info("shutdown complete", slog.String("command", "mcp"))
	return nil
}
