package mcp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/guillermoBallester/auditspool/internal/core/port"
)

// adminCall is one in-flight admin tool call.
type adminCall struct {
	tool  string
	start time.Time
	span  trace.Span
}

// AdminHooks reports every admin tool call: one log line, plus a span when
// tracer is set and a duration sample when inst is set.
func AdminHooks(logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	r := &adminReporter{logger: logger, tracer: tracer, inst: inst}
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(r.begin)
	hooks.AddAfterCallTool(r.afterCall)
	hooks.AddOnError(r.onError)
	return hooks
}

type adminReporter struct {
	logger *slog.Logger
	tracer trace.Tracer
	inst   port.Instrumentation

	inflight sync.Map // request id -> *adminCall
}

func (r *adminReporter) begin(ctx context.Context, id any, req *mcp.CallToolRequest) {
	call := &adminCall{tool: req.Params.Name, start: time.Now()}
	if r.tracer != nil {
		_, call.span = r.tracer.Start(ctx, "auditspool.admin "+call.tool,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("audit.admin.tool", call.tool),
				attribute.Bool("audit.admin.mutating", call.tool == toolRotate),
			),
		)
	}
	r.inflight.Store(id, call)
}

// take returns the call started for id. Calls that failed before the
// handler ran have no begin record and are timed from now.
func (r *adminReporter) take(id any, tool string) *adminCall {
	if v, ok := r.inflight.LoadAndDelete(id); ok {
		return v.(*adminCall)
	}
	return &adminCall{tool: tool, start: time.Now()}
}

func (r *adminReporter) afterCall(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
	call := r.take(id, req.Params.Name)
	failure := ""
	if res, ok := result.(*mcp.CallToolResult); ok && res.IsError {
		failure = resultText(res)
	}
	r.finish(ctx, call, failure)
}

func (r *adminReporter) onError(ctx context.Context, id any, _ mcp.MCPMethod, message any, err error) {
	req, ok := message.(*mcp.CallToolRequest)
	if !ok {
		return
	}
	r.finish(ctx, r.take(id, req.Params.Name), err.Error())
}

// finish reports a completed call; failure is empty on success.
func (r *adminReporter) finish(ctx context.Context, call *adminCall, failure string) {
	elapsed := time.Since(call.start)

	level := slog.LevelInfo
	attrs := []slog.Attr{
		slog.String("tool", call.tool),
		slog.Duration("duration", elapsed),
	}
	if failure != "" {
		level = slog.LevelError
		attrs = append(attrs, slog.String("error", failure))
	}
	r.logger.LogAttrs(ctx, level, "admin tool call", attrs...)

	if r.inst != nil {
		r.inst.RecordToolDuration(ctx, float64(elapsed.Milliseconds()))
	}

	if call.span == nil {
		return
	}
	if failure != "" {
		call.span.RecordError(errors.New(failure))
		call.span.SetStatus(codes.Error, failure)
	}
	call.span.End()
}

// resultText is the message of an error result.
func resultText(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok && tc.Text != "" {
			return tc.Text
		}
	}
	return "tool returned error"
}
