package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/guillermoBallester/auditspool/internal/adapter/signal"
	"github.com/guillermoBallester/auditspool/internal/config"
	"github.com/guillermoBallester/auditspool/internal/core/port"
	"github.com/guillermoBallester/auditspool/internal/telemetry"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "auditspool",
		Short:         "Durable, time-rotated audit log for PostgreSQL sessions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.String("config", "", "YAML config file (env AUDIT_CONFIG_FILE)")
	f.String("log-directory", "", "directory for audit log files")
	f.String("log-filename", "", "strftime template for audit log file names")
	f.Int("log-rotation-age", 0, "minutes between rotations, aligned to local midnight; 0 disables")
	f.String("log-timezone", "", "IANA timezone for rotation boundaries and timestamps")
	f.String("log-file-mode", "", "octal permissions for new audit log files")
	f.Bool("log-connections", false, "write connection messages to the audit log")
	f.Bool("log-disconnections", false, "write disconnection messages to the audit log")
	f.String("log-error-verbosity", "", "terse, default, or verbose")
	f.Bool("quote-fields", false, "quote free-text fields CSV-style")
	f.Bool("redact-statements", false, "replace literals in logged statements with placeholders")
	f.String("signal-file", "", "rotation signal file shared by all writer processes")
	f.Int("workers", 0, "number of writers")
	f.String("database-url", "", "PostgreSQL connection string")
	f.String("log-level", "", "debug, info, warn, or error")
	f.Bool("otel", false, "enable OpenTelemetry tracing and metrics")

	root.AddCommand(
		newIngestCmd(),
		newExecCmd(),
		newRotateCmd(),
		newStatusCmd(),
		newMCPCmd(),
	)
	return root
}

// overridesFromFlags maps explicitly set flags onto config overrides.
func overridesFromFlags(cmd *cobra.Command) (config.Overrides, error) {
	f := cmd.Flags()
	var o config.Overrides
	var err error

	o.ConfigFile, err = f.GetString("config")
	if err != nil {
		return o, err
	}
	o.OTelEnabled, err = f.GetBool("otel")
	if err != nil {
		return o, err
	}

	strs := map[string]**string{
		"log-directory":       &o.LogDirectory,
		"log-filename":        &o.LogFilename,
		"log-timezone":        &o.LogTimezone,
		"log-file-mode":       &o.LogFileMode,
		"log-error-verbosity": &o.Verbosity,
		"signal-file":         &o.SignalFile,
		"database-url":        &o.DatabaseURL,
		"log-level":           &o.LogLevel,
	}
	for name, dst := range strs {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetString(name)
		if err != nil {
			return o, err
		}
		*dst = &v
	}

	bools := map[string]**bool{
		"log-connections":    &o.LogConnections,
		"log-disconnections": &o.LogDisconnections,
		"quote-fields":       &o.QuoteFields,
		"redact-statements":  &o.RedactStatements,
	}
	for name, dst := range bools {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetBool(name)
		if err != nil {
			return o, err
		}
		*dst = &v
	}

	ints := map[string]**int{
		"log-rotation-age": &o.LogRotationAge,
		"workers":          &o.Workers,
	}
	for name, dst := range ints {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetInt(name)
		if err != nil {
			return o, err
		}
		*dst = &v
	}

	return o, nil
}

// app is what every command needs once configuration is loaded.
type app struct {
	cfg       *config.Config
	overrides config.Overrides
	logger    *slog.Logger
	otel      *telemetry.Provider
	tracer    trace.Tracer
	inst      port.Instrumentation
}

func setup(ctx context.Context, cmd *cobra.Command) (*app, error) {
	overrides, err := overridesFromFlags(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(overrides)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr; stdout carries command output and the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	a := &app{
		cfg:       cfg,
		overrides: overrides,
		logger:    logger,
		tracer:    telemetry.NoopTracer(),
		inst:      telemetry.NoopInstruments(),
	}

	if cfg.OTelEnabled {
		a.otel, err = telemetry.Init(ctx, telemetry.Process{
			Version:    version,
			Command:    cmd.Name(),
			SignalFile: cfg.SignalFile,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing telemetry: %w", err)
		}
		a.tracer = telemetry.Tracer(true)
		a.inst = telemetry.NewInstruments()
	}

	logger.Info("auditspool initialized",
		slog.String("version", version),
		slog.String("command", cmd.Name()),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("log_directory", cfg.LogDirectory),
		slog.String("log_filename", cfg.LogFilename),
		slog.Int("log_rotation_age", cfg.LogRotationAge),
		slog.String("log_timezone", cfg.Location.String()),
		slog.String("signal_file", cfg.SignalFile),
		slog.Bool("otel", cfg.OTelEnabled),
	)
	return a, nil
}

func (a *app) shutdown(ctx context.Context) {
	if err := a.otel.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
	}
}

// openSignal returns the shared rotation signal: the signal file when one is
// configured, otherwise an in-process signal.
func (a *app) openSignal() (port.RotationSignal, func() error, error) {
	if a.cfg.SignalFile == "" {
		return signal.NewMemory(), func() error { return nil }, nil
	}
	sig, err := signal.OpenFile(a.cfg.SignalFile, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return sig, sig.Close, nil
}

// requireSignalFile is for commands that must reach writers in other
// processes.
func (a *app) requireSignalFile(cmd string) error {
	if a.cfg.SignalFile == "" {
		return fmt.Errorf("%s needs a shared signal file (set AUDIT_SIGNAL_FILE or --signal-file)", cmd)
	}
	return nil
}
