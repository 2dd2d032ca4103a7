// Package telemetry installs the OpenTelemetry tracer provider and context
// propagator used by the crawler, exporting spans over OTLP when an
// endpoint is configured.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/jmylchreest/mediacrawl/internal/logger"
)

// OTLP protocols.
const (
	ProtocolHTTP = "http"
	ProtocolGRPC = "grpc"
)

// Config selects where spans are exported.
type Config struct {
	// Endpoint is the OTLP collector URL, e.g. http://localhost:4318. Empty
	// keeps spans in process: trace context is still generated and
	// propagated, but nothing is exported.
	Endpoint string
	Protocol string
	Headers  map[string]string
}

// Telemetry owns the installed tracer provider.
type Telemetry struct {
	TracerProvider *trace.TracerProvider
}

// Shutdown flushes pending spans and stops the provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.TracerProvider == nil {
		return nil
	}
	var errs []error
	if err := t.TracerProvider.ForceFlush(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := t.TracerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Setup registers a W3C trace context propagator and a tracer provider as
// the otel globals.
func Setup(ctx context.Context, serviceName string, cfg Config) (*Telemetry, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	r, err := newResource(serviceName)
	if err != nil {
		return nil, err
	}

	opts := []trace.TracerProviderOption{trace.WithResource(r)}
	if cfg.Endpoint != "" {
		exporter, err := newExporter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, trace.WithBatcher(exporter))
		logger.Debug("exporting traces", "endpoint", cfg.Endpoint, "protocol", cfg.protocol())
	}

	provider := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	return &Telemetry{TracerProvider: provider}, nil
}

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
}

func newExporter(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	switch cfg.protocol() {
	case ProtocolGRPC:
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpointURL(cfg.Endpoint),
			otlptracegrpc.WithHeaders(cfg.Headers),
		)
	case ProtocolHTTP:
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(cfg.Endpoint),
			otlptracehttp.WithHeaders(cfg.Headers),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol: %s", cfg.Protocol)
	}
}

func (c Config) protocol() string {
	if c.Protocol == "" {
		return ProtocolHTTP
	}
	return c.Protocol
}
