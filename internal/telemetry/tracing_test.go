package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestInjectExtractRoundTrip(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), "batchwatch-test")
	require.NoError(t, err)
	defer func() { require.NoError(t, tp.Shutdown(context.Background())) }()

	ctx, span := Tracer().Start(context.Background(), "publish")
	defer span.End()

	attrs := map[string]string{"action": "terminate"}
	Inject(ctx, attrs)
	require.Contains(t, attrs, "traceparent")

	extracted := trace.SpanContextFromContext(Extract(context.Background(), attrs))
	require.Equal(t, span.SpanContext().TraceID(), extracted.TraceID())
	require.True(t, extracted.IsRemote())
}

func TestInjectExtractNilSafe(t *testing.T) {
	t.Parallel()

	Inject(context.Background(), nil)
	ctx := context.Background()
	require.Equal(t, ctx, Extract(ctx, nil))
}
