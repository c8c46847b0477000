// Package telemetry wires OpenTelemetry metrics (exported for Prometheus
// scraping) and traces (OTLP/gRPC or stdout) for the server.
package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/voicenotes/internal/logging"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Config struct {
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	OTLPInsecure bool
	// StdoutTraces prints spans to TraceWriter when no OTLP endpoint is set.
	StdoutTraces bool
	TraceWriter  io.Writer
}

// Telemetry holds the providers created by Setup.
type Telemetry struct {
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	// MetricsHandler serves the Prometheus exposition format.
	MetricsHandler http.Handler

	shutdown []func(context.Context) error
}

// Setup builds the providers and installs them as the otel globals.
func Setup(ctx context.Context, cfg Config, logger logging.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = logging.Nop{}
	}
	logger = logger.With("module", "telemetry")

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	t := &Telemetry{}

	if err := t.initTracer(ctx, cfg, res, logger); err != nil {
		return nil, err
	}
	otel.SetTracerProvider(t.TracerProvider)

	if err := t.initMetrics(ctx, res, logger); err != nil {
		_ = t.Shutdown(ctx)
		return nil, err
	}
	otel.SetMeterProvider(t.MeterProvider)

	return t, nil
}

func (t *Telemetry) initTracer(ctx context.Context, cfg Config, res *resource.Resource, logger logging.Logger) error {
	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return err
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		t.TracerProvider = tp
		t.shutdown = append(t.shutdown, tp.Shutdown)
		logger.Info(ctx, "telemetry initialized", "exporter", "otlp", "endpoint", endpoint)
		return nil
	}

	if cfg.StdoutTraces {
		opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if cfg.TraceWriter != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.TraceWriter))
		}
		exporter, err := stdouttrace.New(opts...)
		if err != nil {
			return err
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		t.TracerProvider = tp
		t.shutdown = append(t.shutdown, tp.Shutdown)
		logger.Info(ctx, "telemetry initialized", "exporter", "stdout")
		return nil
	}

	t.TracerProvider = noop.NewTracerProvider()
	return nil
}

// initMetrics registers on a private Prometheus registry so that repeated
// setups (tests) do not collide on the default one.
func (t *Telemetry) initMetrics(ctx context.Context, res *resource.Resource, logger logging.Logger) error {
	registry := promclient.NewRegistry()
	promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		logger.Warn(ctx, "failed to initialize prometheus exporter", "error", err)
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		t.MeterProvider = mp
		t.shutdown = append(t.shutdown, mp.Shutdown)
		t.MetricsHandler = http.NotFoundHandler()
		return nil
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)
	t.MeterProvider = mp
	t.shutdown = append(t.shutdown, mp.Shutdown)
	t.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	return nil
}

// Shutdown flushes and stops every provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(t.shutdown) - 1; i >= 0; i-- {
		if err := t.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.shutdown = nil
	return errors.Join(errs...)
}
