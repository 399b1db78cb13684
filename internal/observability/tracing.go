// Package observability provides metrics and tracing.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the global tracer used for the application.
var Tracer trace.Tracer = otel.Tracer("forum-api")

// Span attribute keys. Store spans carry the operation, attempts and
// outcome; service spans carry the acting profile and the entity touched.
const (
	AttrOperation   = attribute.Key("forum.operation")
	AttrActorID     = attribute.Key("forum.actor_id")
	AttrSubjectType = attribute.Key("forum.subject_type")
	AttrSubjectID   = attribute.Key("forum.subject_id")
	AttrResult      = attribute.Key("forum.result")
	AttrAttempts    = attribute.Key("forum.store.attempts")
	AttrOutcome     = attribute.Key("forum.store.outcome")
	AttrReceipt     = attribute.Key("forum.store.receipt")
)

// Actor tags a span with the profile performing the action.
func Actor(id uint) attribute.KeyValue {
	return AttrActorID.Int64(int64(id))
}

// Subject tags a span with the thread, post or profile the action targets.
func Subject(kind string, id uint) []attribute.KeyValue {
	return []attribute.KeyValue{AttrSubjectType.String(kind), AttrSubjectID.Int64(int64(id))}
}

// TracingConfig holds configuration for initializing the tracer.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool
	Exporter       string // "stdout" or "otlp"
	OTLPEndpoint   string
	SamplerRatio   float64
}

// InitTracing installs the global tracer provider and returns its shutdown
// function. With tracing disabled spans are no-ops.
func InitTracing(cfg TracingConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		Tracer = otel.Tracer(cfg.ServiceName)
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracing exporter: %w", err)
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SamplerRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	Tracer = tp.Tracer(cfg.ServiceName)

	return tp.Shutdown, nil
}

func newExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	if cfg.Exporter == "otlp" {
		return otlptracehttp.New(context.Background(),
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
	}
	return stdouttrace.New(stdouttrace.WithPrettyPrint())
}

// samplerFor samples every trace at ratio >= 1 and otherwise follows the
// parent's decision, sampling root spans at ratio.
func samplerFor(ratio float64) sdktrace.Sampler {
	if ratio >= 1.0 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Span wraps an OpenTelemetry span.
type Span struct {
	span trace.Span
}

// StartSpan starts a service span for a forum action named op.
func StartSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (*Span, context.Context) {
	attrs = append(attrs, AttrOperation.String(op))
	ctx, span := Tracer.Start(ctx, op, trace.WithAttributes(attrs...))
	return &Span{span: span}, ctx
}

// StartStoreSpan starts the span around one store transaction, including
// its retries.
func StartStoreSpan(ctx context.Context, op string) (*Span, context.Context) {
	ctx, span := Tracer.Start(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrOperation.String(op)),
	)
	return &Span{span: span}, ctx
}

// AddAttributes sets attributes on the span.
func (s *Span) AddAttributes(attrs ...attribute.KeyValue) {
	if s.span != nil {
		s.span.SetAttributes(attrs...)
	}
}

// SetResult records the domain result of the action, such as "liked".
func (s *Span) SetResult(result string) {
	s.AddAttributes(AttrResult.String(result))
}

// SetStoreOutcome records how a store transaction finished and how many
// attempts it took.
func (s *Span) SetStoreOutcome(outcome string, attempts int) {
	s.AddAttributes(AttrOutcome.String(outcome), AttrAttempts.Int(attempts))
}

// SetError records the error on the span and sets span status to Error.
func (s *Span) SetError(err error) {
	if s.span != nil && err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
}

// End ends the span.
func (s *Span) End() {
	if s.span != nil {
		s.span.End()
	}
}

// TraceID returns the trace ID of the span.
func (s *Span) TraceID() string {
	if s.span != nil {
		return s.span.SpanContext().TraceID().String()
	}
	return ""
}
