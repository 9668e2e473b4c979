package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestStartSpan_NoTracer(t *testing.T) {
	SetTracer(nil)

	ctx, span := StartSpan(context.Background(), "test")
	require.NotNil(t, span)
	span.End()

	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetSpanID(ctx))
}

func TestStartSpan_WithProvider(t *testing.T) {
	provider := sdktrace.NewTracerProvider()
	defer provider.Shutdown(context.Background())
	SetTracer(provider.Tracer("test"))
	defer SetTracer(nil)

	ctx, span := StartSpan(context.Background(), "registry.Service.AddIdentifier")
	defer span.End()

	assert.Len(t, GetTraceID(ctx), 32)
	assert.Len(t, GetSpanID(ctx), 16)
	assert.NotNil(t, GetActiveSpan(ctx))
}

func TestNewProvider_WithoutEndpoint(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{ServiceName: "thistle-test"})
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())
	defer SetTracer(nil)

	ctx, span := StartSpan(context.Background(), "test")
	defer span.End()
	assert.NotEmpty(t, GetTraceID(ctx))
}

func TestNewProvider_UnsupportedProtocol(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{ServiceName: "thistle-test", Endpoint: "localhost:4317", Protocol: "udp"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported OTLP protocol")
}
