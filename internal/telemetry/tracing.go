// Package telemetry sets up OpenTelemetry tracing and carries trace context
// across Pub/Sub message attributes.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/JakeFAU/batchwatch"

// InitTracerProvider installs the global trace provider and the W3C trace
// context propagator. No exporter is attached; spans are only propagated.
func InitTracerProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}

// Tracer returns the tracer used for message handling spans.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Inject writes the trace context of ctx into message attributes.
func Inject(ctx context.Context, attrs map[string]string) {
	if attrs == nil {
		return
	}
	otel.GetTextMapPropagator().Inject(ctx, attributesCarrier(attrs))
}

// Extract returns ctx enriched with any trace context found in attrs.
func Extract(ctx context.Context, attrs map[string]string) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, attributesCarrier(attrs))
}

// attributesCarrier implements propagation.TextMapCarrier for message attributes.
type attributesCarrier map[string]string

func (c attributesCarrier) Get(key string) string {
	return c[key]
}

func (c attributesCarrier) Set(key, value string) {
	c[key] = value
}

func (c attributesCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
