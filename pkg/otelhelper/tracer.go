// Package otelhelper provides distributed tracing for session monitoring.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys shared by the engine and the executor.
const (
	SessionIDKey  = "finflow.session.id"
	QueryKey      = "finflow.query"
	ComplexityKey = "finflow.complexity"
	TaskIDKey     = "finflow.task.id"
	AgentKey      = "finflow.agent"
	ToolKey       = "finflow.tool"
	ErrorTypeKey  = "finflow.error.type"
	DecisionKey   = "finflow.remediation.decision"
	StepKey       = "finflow.step"
)

// NewTracer installs an OTLP/HTTP trace provider as the global one and
// returns a tracer for the service. The exporter endpoint comes from
// the standard OTEL_EXPORTER_OTLP_* environment variables.
//
//nolint:ireturn
func NewTracer(ctx context.Context, serviceName string) (trace.Tracer, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return provider.Tracer(serviceName), nil
}

// StartSpan opens a span with the given session attributes.
//
//nolint:ireturn,spancheck
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
