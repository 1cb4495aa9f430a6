// Package observability sets up OpenTelemetry tracing for conversion runs.
//
// Tracing is off unless enabled; a disabled Provider hands out no-op tracers
// so callers never branch on whether spans are exported.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName names the tracer used by pql packages.
const InstrumentationName = "github.com/ajitpratap0/pql"

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// SamplingRate is the fraction of traces kept, 1 keeps all
	SamplingRate float64
	// Writer receives exported spans, stderr when nil
	Writer io.Writer
	// PrettyPrint indents exported spans
	PrettyPrint bool
}

// DefaultTracingConfig returns a disabled configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName:    "pql",
		ServiceVersion: "dev",
		SamplingRate:   1.0,
	}
}

// Provider owns the tracer provider for one process or test.
type Provider struct {
	tp       trace.TracerProvider
	shutdown func(context.Context) error
}

// NewProvider builds a Provider. Spans are exported synchronously so a
// short-lived CLI run does not lose them on exit.
func NewProvider(config TracingConfig) (*Provider, error) {
	if !config.Enabled {
		return &Provider{
			tp:       noop.NewTracerProvider(),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	w := config.Writer
	if w == nil {
		w = os.Stderr
	}
	opts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if config.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SamplingRate <= 0:
		sampler = sdktrace.NeverSample()
	case config.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	return &Provider{tp: tp, shutdown: tp.Shutdown}, nil
}

// NewProviderFrom wraps an existing tracer provider, such as one built on
// an in-memory exporter.
func NewProviderFrom(tp trace.TracerProvider) *Provider {
	p := &Provider{tp: tp, shutdown: func(context.Context) error { return nil }}
	if s, ok := tp.(interface{ Shutdown(context.Context) error }); ok {
		p.shutdown = s.Shutdown
	}
	return p
}

// Tracer returns the pql tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return noop.NewTracerProvider().Tracer(InstrumentationName)
	}
	return p.tp.Tracer(InstrumentationName)
}

// Shutdown flushes and stops span export.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// Span wraps a trace span and times it.
type Span struct {
	span      trace.Span
	startTime time.Time
}

// StartSpan starts a span on tracer.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &Span{span: span, startTime: time.Now()}
}

// SetAttribute records a key/value pair, converting common Go types.
func (s *Span) SetAttribute(key string, value interface{}) {
	var kv attribute.KeyValue
	switch v := value.(type) {
	case string:
		kv = attribute.String(key, v)
	case int:
		kv = attribute.Int(key, v)
	case int64:
		kv = attribute.Int64(key, v)
	case uint64:
		kv = attribute.Int64(key, int64(v))
	case float64:
		kv = attribute.Float64(key, v)
	case bool:
		kv = attribute.Bool(key, v)
	case []string:
		kv = attribute.StringSlice(key, v)
	case fmt.Stringer:
		kv = attribute.String(key, v.String())
	default:
		kv = attribute.String(key, fmt.Sprintf("%v", v))
	}
	s.span.SetAttributes(kv)
}

// AddEvent records a named event on the span.
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// End finishes the span, marking it failed when err is non-nil, and
// returns its duration.
func (s *Span) End(err error) time.Duration {
	d := time.Since(s.startTime)
	s.span.SetAttributes(attribute.Int64("duration_ms", d.Milliseconds()))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
	return d
}

// TraceFunc runs fn inside a span named name.
func TraceFunc(ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := StartSpan(ctx, tracer, name, attrs...)
	err := fn(ctx)
	span.End(err)
	return err
}
