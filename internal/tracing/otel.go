package tracing

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Instrumentation scopes, one per stage of a message's trip through the bot.
const (
	TracerWebhook  = "shinimi.webhook"
	TracerDispatch = "shinimi.dispatch"
	TracerNLU      = "shinimi.nlu"
	TracerActions  = "shinimi.actions"
)

// Options configures the tracer provider.
type Options struct {
	ServiceName    string
	ServiceVersion string
	// SampleRatio is the fraction of root traces kept, in [0, 1].
	SampleRatio float64
}

var (
	setupMu sync.Mutex
	active  *sdktrace.TracerProvider
)

// InitOpenTelemetry installs the global tracer provider. Calls after the first
// successful one are no-ops until ShutdownOpenTelemetry runs.
func InitOpenTelemetry(opts Options) error {
	setupMu.Lock()
	defer setupMu.Unlock()

	if active != nil {
		return nil
	}
	if opts.SampleRatio < 0 || opts.SampleRatio > 1 {
		return fmt.Errorf("sample ratio %g out of range", opts.SampleRatio)
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(opts.ServiceName)}
	if opts.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(opts.ServiceVersion))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return fmt.Errorf("failed to build trace resource: %w", err)
	}

	active = sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(active)
	return nil
}

// ShutdownOpenTelemetry flushes pending spans and releases the provider.
func ShutdownOpenTelemetry(ctx context.Context) error {
	setupMu.Lock()
	tp := active
	active = nil
	setupMu.Unlock()

	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan opens a span under tracerName. The returned context always carries
// a trace ID for log correlation, taken from the span when it is sampled.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
	if GetTraceID(ctx) != "" {
		return ctx, span
	}

	if sc := span.SpanContext(); sc.IsValid() {
		return WithTraceID(ctx, sc.TraceID().String()), span
	}
	return WithTraceID(ctx, NewTraceID()), span
}

// RecordError marks span as failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
