package tracing

import (
    "context"
    "sync/atomic"

    "go.opentelemetry.io/otel"
    "go.opentelemetry.io/otel/attribute"
    "go.opentelemetry.io/otel/codes"
    "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
    sdktrace "go.opentelemetry.io/otel/sdk/trace"
    "go.opentelemetry.io/otel/trace"
)

const tracerName = "go-kvrouter"

var enabled atomic.Bool

// Setup configures a global tracer provider exporting to stdout when
// enable=true. It returns a shutdown function which should be deferred.
func Setup(enable bool) (func(context.Context) error, error) {
    enabled.Store(enable)
    if !enable {
        return func(context.Context) error { return nil }, nil
    }
    exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
    if err != nil {
        enabled.Store(false)
        return nil, err
    }
    tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
    otel.SetTracerProvider(tp)
    return tp.Shutdown, nil
}

// Span wraps an otel span so callers can record an outcome without
// importing otel themselves. The zero value is a no-op.
type Span struct{ s trace.Span }

// End finishes the span, marking it failed when err is non-nil.
func (sp Span) End(err error) {
    if sp.s == nil { return }
    if err != nil {
        sp.s.RecordError(err)
        sp.s.SetStatus(codes.Error, err.Error())
    }
    sp.s.End()
}

// SetAttributes adds attributes to a live span.
func (sp Span) SetAttributes(attrs ...attribute.KeyValue) {
    if sp.s == nil { return }
    sp.s.SetAttributes(attrs...)
}

// StartSpan starts a span if tracing is enabled.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
    if !enabled.Load() {
        return ctx, Span{}
    }
    ctx, s := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
    return ctx, Span{s: s}
}
