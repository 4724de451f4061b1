package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/amdetect/pkg/amd"
)

const tracerName = "github.com/MrWong99/amdetect"

// amdetect emits two kinds of spans: one server span per plain HTTP request
// (see [Middleware]) and one [SpanAnalyze] span per analysed call, which
// covers reading the call's audio until the verdict.
const SpanAnalyze = "amd.analyze"

// Span attribute keys.
const (
	AttrCallID = attribute.Key("call.id")
	AttrStatus = attribute.Key("amd.status")
	AttrCause  = attribute.Key("amd.cause")
	AttrWords  = attribute.Key("amd.words")
)

// Tracer returns the amdetect tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartAnalyzeSpan starts the [SpanAnalyze] span for callID. Finish it with
// [EndAnalyzeSpan].
func StartAnalyzeSpan(ctx context.Context, callID string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanAnalyze, trace.WithAttributes(AttrCallID.String(callID)))
}

// EndAnalyzeSpan records the verdict on span, marks it failed when err is
// non-nil, and ends it.
func EndAnalyzeSpan(span trace.Span, v amd.Verdict, err error) {
	span.SetAttributes(
		AttrStatus.String(string(v.Status)),
		AttrCause.String(string(v.Cause)),
		AttrWords.Int(v.Words),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID returns the trace ID of the span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id and span_id attached when
// ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
