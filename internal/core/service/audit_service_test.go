package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/guillermoBallester/auditspool/internal/core/domain"
	"github.com/guillermoBallester/auditspool/internal/core/port"
)

// --- mock AuditSink ---

type mockSink struct {
	accept bool
	events []domain.Event
}

func (m *mockSink) Submit(_ context.Context, ev domain.Event, _ *domain.Session) bool {
	m.events = append(m.events, ev)
	return m.accept
}

func (m *mockSink) Close() error { return nil }

// --- mock Instrumentation ---

type countingInstrumentation struct {
	port.NoopInstrumentation
	fallbacks int
}

func (c *countingInstrumentation) IncrementFallbacks(context.Context) { c.fallbacks++ }

func enabledSettings() port.StaticSettings {
	return port.StaticSettings{
		Directory:      "/var/log/audit",
		Filename:       "audit-%Y%m%d.log",
		RotationAge:    domain.DefaultRotationAge,
		Location:       time.UTC,
		LogConnections: true,
	}
}

func testSession() *domain.Session {
	return domain.NewSession(domain.SessionInfo{User: "alice", Database: "appdb", PID: 77}, time.UTC)
}

func jsonLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestEmit_AuditEventReachesSink(t *testing.T) {
	t.Parallel()
	sink := &mockSink{accept: true}
	var logs bytes.Buffer
	inst := &countingInstrumentation{}
	svc := NewAuditService(enabledSettings(), sink, jsonLogger(&logs), nil, inst)

	ok := svc.Emit(context.Background(), domain.Event{Severity: "LOG", Message: "audit: SESSION,1,1,READ,SELECT"}, testSession())

	require.True(t, ok)
	require.Len(t, sink.events, 1)
	assert.Equal(t, 7, sink.events[0].TrimOffset)
	assert.Equal(t, "SESSION,1,1,READ,SELECT", sink.events[0].Text())
	assert.Empty(t, logs.String())
	assert.Zero(t, inst.fallbacks)
}

func TestEmit_ConnectionMessageUntrimmed(t *testing.T) {
	t.Parallel()
	sink := &mockSink{accept: true}
	svc := NewAuditService(enabledSettings(), sink, jsonLogger(&bytes.Buffer{}), nil, nil)

	require.True(t, svc.Emit(context.Background(), domain.Event{Message: "connection authorized: user=alice database=appdb"}, testSession()))
	require.Len(t, sink.events, 1)
	assert.Equal(t, 0, sink.events[0].TrimOffset)
}

func TestEmit_NonAuditEventFallsBack(t *testing.T) {
	t.Parallel()
	sink := &mockSink{accept: true}
	var logs bytes.Buffer
	inst := &countingInstrumentation{}
	svc := NewAuditService(enabledSettings(), sink, jsonLogger(&logs), nil, inst)

	ok := svc.Emit(context.Background(), domain.Event{Severity: "WARNING", SQLState: "01000", Message: "disk nearly full"}, testSession())

	assert.False(t, ok)
	assert.Empty(t, sink.events)
	assert.Equal(t, 1, inst.fallbacks)

	entries := decodeLogLines(t, &logs)
	require.Len(t, entries, 1)
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, "disk nearly full", entries[0]["msg"])
	assert.Equal(t, "alice", entries[0]["user"])
	assert.Equal(t, "01000", entries[0]["sqlstate"])
}

func TestEmit_DisconnectionsNeedTheirSwitch(t *testing.T) {
	t.Parallel()
	sink := &mockSink{accept: true}
	svc := NewAuditService(enabledSettings(), sink, jsonLogger(&bytes.Buffer{}), nil, nil)

	assert.False(t, svc.Emit(context.Background(), domain.Event{Message: "disconnection: session time: 0:00:01.000"}, testSession()))
	assert.Empty(t, sink.events)
}

func TestEmit_DisabledSettingsFallBack(t *testing.T) {
	t.Parallel()
	sink := &mockSink{accept: true}
	settings := enabledSettings()
	settings.Directory = ""
	var logs bytes.Buffer
	svc := NewAuditService(settings, sink, jsonLogger(&logs), nil, nil)

	assert.False(t, svc.Emit(context.Background(), domain.Event{Message: "AUDIT: SESSION,1,1,DDL,CREATE TABLE"}, testSession()))
	assert.Empty(t, sink.events)
	assert.Contains(t, logs.String(), "AUDIT: SESSION,1,1,DDL,CREATE TABLE")
}

func TestEmit_SinkFailureFallsBackWithFullMessage(t *testing.T) {
	t.Parallel()
	sink := &mockSink{accept: false}
	var logs bytes.Buffer
	inst := &countingInstrumentation{}

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	svc := NewAuditService(enabledSettings(), sink, jsonLogger(&logs), tp.Tracer("test"), inst)

	ok := svc.Emit(context.Background(), domain.Event{Severity: "LOG", Message: "AUDIT: SESSION,1,1,WRITE,INSERT"}, testSession())

	assert.False(t, ok)
	require.Len(t, sink.events, 1)
	assert.Equal(t, 1, inst.fallbacks)

	entries := decodeLogLines(t, &logs)
	require.Len(t, entries, 1)
	assert.Equal(t, "AUDIT: SESSION,1,1,WRITE,INSERT", entries[0]["msg"])
	assert.Equal(t, "INFO", entries[0]["level"])

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "AuditService.Emit", spans[0].Name)
	assert.Equal(t, "audit write failed", spans[0].Status.Description)
}

func TestSeverityLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		severity string
		want     slog.Level
	}{
		{"DEBUG2", slog.LevelDebug},
		{"LOG", slog.LevelInfo},
		{"NOTICE", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"FATAL", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, severityLevel(tt.severity), tt.severity)
	}
}
