package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recorder() (*Provider, *tracetest.SpanRecorder) {
	sr := tracetest.NewSpanRecorder()
	return NewProviderFrom(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))), sr
}

func TestDisabledProviderIsNoop(t *testing.T) {
	p, err := NewProvider(DefaultTracingConfig())
	require.NoError(t, err)
	_, span := StartSpan(context.Background(), p.Tracer(), "noop")
	span.SetAttribute("rows", 3)
	span.End(nil)
	assert.NoError(t, p.Shutdown(context.Background()))

	var nilProvider *Provider
	assert.NotNil(t, nilProvider.Tracer())
	assert.NoError(t, nilProvider.Shutdown(context.Background()))
}

func TestStdoutExport(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.Writer = &buf
	p, err := NewProvider(cfg)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), p.Tracer(), "convert")
	span.End(nil)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"convert"`)
}

func TestSpanAttributesAndErrors(t *testing.T) {
	p, sr := recorder()
	ctx, parent := StartSpan(context.Background(), p.Tracer(), "parent", attribute.String("input", "in.csv"))

	boom := errors.New("boom")
	err := TraceFunc(ctx, p.Tracer(), "child", func(context.Context) error { return boom })
	assert.Equal(t, boom, err)

	parent.SetAttribute("rows", int64(10))
	parent.SetAttribute("columns", []string{"a", "b"})
	parent.AddEvent("checkpoint")
	parent.End(nil)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	child, top := spans[0], spans[1]
	assert.Equal(t, "child", child.Name())
	assert.Equal(t, codes.Error, child.Status().Code)
	assert.Equal(t, top.SpanContext().SpanID(), child.Parent().SpanID())

	assert.Equal(t, codes.Ok, top.Status().Code)
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range top.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "in.csv", attrs["input"].AsString())
	assert.Equal(t, int64(10), attrs["rows"].AsInt64())
	assert.Equal(t, []string{"a", "b"}, attrs["columns"].AsStringSlice())
	require.Len(t, top.Events(), 1)
}
