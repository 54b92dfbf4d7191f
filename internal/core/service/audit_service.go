package service

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/guillermoBallester/auditspool/internal/core/domain"
	"github.com/guillermoBallester/auditspool/internal/core/port"
)

// AuditService routes host log events either to the audit sink or, when the
// event is not an audit event or could not be written, to the host's
// regular log.
type AuditService struct {
	settings port.SettingsProvider
	sink     port.AuditSink
	fallback *slog.Logger
	tracer   trace.Tracer
	inst     port.Instrumentation
}

func NewAuditService(settings port.SettingsProvider, sink port.AuditSink, fallback *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *AuditService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &AuditService{
		settings: settings,
		sink:     sink,
		fallback: fallback,
		tracer:   tracer,
		inst:     inst,
	}
}

// Emit reports whether ev reached the audit file. When it returns false the
// event has been written to the regular log instead.
func (s *AuditService) Emit(ctx context.Context, ev domain.Event, sess *domain.Session) bool {
	ctx, span := s.tracer.Start(ctx, "AuditService.Emit",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.response.status_code", ev.SQLState),
		),
	)
	defer span.End()

	st := s.settings.AuditSettings()
	if !st.Enabled() {
		s.toFallback(ctx, ev, sess)
		return false
	}

	isAudit, trim := domain.Classify(ev.Message, st.LogConnections, st.LogDisconnections)
	span.SetAttributes(attribute.Bool("audit.event", isAudit))
	if !isAudit {
		s.toFallback(ctx, ev, sess)
		return false
	}

	ev.TrimOffset = trim
	if !s.sink.Submit(ctx, ev, sess) {
		span.SetStatus(codes.Error, "audit write failed")
		s.toFallback(ctx, ev, sess)
		return false
	}
	return true
}

func (s *AuditService) toFallback(ctx context.Context, ev domain.Event, sess *domain.Session) {
	s.inst.IncrementFallbacks(ctx)

	attrs := []slog.Attr{
		slog.String("severity", ev.Severity),
		slog.String("sqlstate", ev.SQLState),
	}
	if sess != nil {
		attrs = append(attrs,
			slog.String("user", sess.User),
			slog.String("database", sess.Database),
			slog.Int("pid", sess.PID),
			slog.String("session_id", sess.ID()),
		)
	}
	if ev.Detail != "" {
		attrs = append(attrs, slog.String("detail", ev.Detail))
	}
	if ev.Hint != "" {
		attrs = append(attrs, slog.String("hint", ev.Hint))
	}
	s.fallback.LogAttrs(ctx, severityLevel(ev.Severity), ev.Message, attrs...)
}

// severityLevel maps a server severity onto the regular log's levels.
func severityLevel(severity string) slog.Level {
	sev := strings.ToUpper(severity)
	switch {
	case strings.HasPrefix(sev, "DEBUG"):
		return slog.LevelDebug
	case sev == "WARNING":
		return slog.LevelWarn
	case sev == "ERROR", sev == "FATAL", sev == "PANIC":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
