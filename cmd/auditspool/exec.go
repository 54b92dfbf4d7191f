package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/guillermoBallester/auditspool/internal/adapter/postgres"
	"github.com/guillermoBallester/auditspool/internal/audit"
	"github.com/guillermoBallester/auditspool/internal/config"
	"github.com/guillermoBallester/auditspool/internal/core/service"
)

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run a SQL script and audit the notices it raises",
		Long: "Run a SQL script (from --file or stdin) on one or more database sessions. Notices the " +
			"server sends each session, such as pgaudit output with log_client=on, are routed to the " +
			"audit log. Every session has its own writer; all of them share one rotation signal.",
		Args: cobra.NoArgs,
		RunE: runExec,
	}
	cmd.Flags().String("file", "", "SQL script to run (default stdin)")
	cmd.Flags().Int("sessions", 1, "number of concurrent sessions running the script")
	return cmd
}

func runExec(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.shutdown(context.WithoutCancel(ctx))

	if a.cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required (set via env var or --database-url flag)")
	}

	sessions, _ := cmd.Flags().GetInt("sessions")
	if sessions <= 0 {
		return fmt.Errorf("invalid --sessions value: must be a positive integer")
	}

	script, err := readScript(cmd)
	if err != nil {
		return err
	}

	sig, closeSignal, err := a.openSignal()
	if err != nil {
		return err
	}
	defer func() { _ = closeSignal() }()

	live := config.NewLive(a.cfg, sig)
	fallback := a.logger.With(slog.String("source", "server"))

	g, gctx := errgroup.WithContext(ctx)
	for i := range sessions {
		g.Go(func() error {
			logger := a.logger.With(slog.Int("session", i))
			w, err := audit.NewWriter(live, sig, logger, audit.WithInstrumentation(a.inst))
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()

			svc := service.NewAuditService(live, w, fallback, a.tracer, a.inst)
			tap, err := postgres.Connect(gctx, a.cfg.DatabaseURL, svc, a.cfg.Location, logger)
			if err != nil {
				return err
			}
			defer func() { _ = tap.Close(context.WithoutCancel(gctx)) }()

			logger.Debug("session connected", slog.Int("pid", tap.Session().PID))
			return tap.Exec(gctx, script)
		})
	}
	return g.Wait()
}

func readScript(cmd *cobra.Command) (string, error) {
	var r io.Reader = cmd.InOrStdin()
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		f, err := os.Open(path) //nolint:gosec // G304: operator-supplied script
		if err != nil {
			return "", fmt.Errorf("opening script: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading script: %w", err)
	}
	return string(data), nil
}
