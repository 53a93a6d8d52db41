package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/oriys/cachebridge/internal/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Version is reported as the service version of every span.
var Version = "dev"

// Exporter names accepted in Config.
const (
	ExporterOTLPHTTP = "otlp-http"
	ExporterNoop     = "noop"
)

// Config selects where spans go. Tracing is off unless Enabled is set.
type Config struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// DefaultConfig returns tracing disabled with an OTLP/HTTP exporter ready
// to be switched on.
func DefaultConfig() Config {
	return Config{
		Exporter:    ExporterOTLPHTTP,
		Endpoint:    "localhost:4318",
		ServiceName: "cachebridge",
		SampleRate:  1.0,
	}
}

type provider struct {
	sdk    *sdktrace.TracerProvider
	tracer trace.Tracer
}

var disabled = &provider{tracer: noop.NewTracerProvider().Tracer("")}

var current atomic.Pointer[provider]

func init() { current.Store(disabled) }

// Init installs the global tracer provider described by cfg. With tracing
// disabled every span is a no-op.
func Init(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		current.Store(disabled)
		return nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "cachebridge"
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return err
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(Version),
	))
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	current.Store(&provider{sdk: tp, tracer: tp.Tracer(cfg.ServiceName)})
	return nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterOTLPHTTP, "otlp":
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create OTLP exporter: %w", err)
		}
		return exp, nil
	case ExporterNoop:
		// spans are sampled and processed but never leave the process
		return discardExporter{}, nil
	}
	return nil, fmt.Errorf("unknown exporter: %s", cfg.Exporter)
}

func sampler(rate float64) sdktrace.Sampler {
	if rate >= 0 && rate < 1 {
		return sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.AlwaysSample()
}

// Shutdown flushes pending spans and stops the provider.
func Shutdown(ctx context.Context) error {
	p := current.Load()
	if p.sdk == nil {
		return nil
	}
	logging.Op().Debug("flushing trace exporter")
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.sdk.Shutdown(ctx)
}

// Tracer returns the tracer installed by Init.
func Tracer() trace.Tracer { return current.Load().tracer }

// Enabled reports whether spans are being recorded.
func Enabled() bool { return current.Load().sdk != nil }

type discardExporter struct{}

func (discardExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (discardExporter) Shutdown(context.Context) error                             { return nil }
