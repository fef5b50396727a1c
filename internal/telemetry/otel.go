package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const scopeName = "github.com/shaharia-lab/notifyd"

// OTelConfig controls SetupOTel.
type OTelConfig struct {
	// Endpoint is the OTLP gRPC collector (host:port). Empty keeps traces and
	// logs local and exports metrics through Prometheus only.
	Endpoint    string
	Insecure    bool
	ServiceName string
	Version     string
}

// OTel holds the OpenTelemetry providers installed for the process.
type OTel struct {
	meterProvider  *sdkmetric.MeterProvider
	loggerProvider *sdklog.LoggerProvider
	shutdowns      []func(context.Context) error
}

// SetupOTel installs the global propagator and tracer provider and builds a
// meter provider whose instruments are exposed on reg. When an endpoint is
// configured, traces, metrics and logs are also exported over OTLP gRPC.
func SetupOTel(ctx context.Context, cfg OTelConfig, reg prometheus.Registerer) (*OTel, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.Version),
	)
	o := &OTel{}

	promExp, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}
	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res), sdkmetric.WithReader(promExp)}

	if cfg.Endpoint != "" {
		traceExp, err := otlptracegrpc.New(ctx, traceOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("creating otlp trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))
		otel.SetTracerProvider(tp)
		o.shutdowns = append(o.shutdowns, tp.Shutdown)

		metricExp, err := otlpmetricgrpc.New(ctx, metricOptions(cfg)...)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("creating otlp metric exporter: %w", err), o.Shutdown(ctx))
		}
		metricOpts = append(metricOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))

		logExp, err := otlploggrpc.New(ctx, logOptions(cfg)...)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("creating otlp log exporter: %w", err), o.Shutdown(ctx))
		}
		o.loggerProvider = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
			sdklog.WithResource(res),
		)
		o.shutdowns = append(o.shutdowns, o.loggerProvider.Shutdown)
	}

	o.meterProvider = sdkmetric.NewMeterProvider(metricOpts...)
	otel.SetMeterProvider(o.meterProvider)
	o.shutdowns = append(o.shutdowns, o.meterProvider.Shutdown)
	return o, nil
}

// Meter returns the process meter.
func (o *OTel) Meter() metric.Meter {
	return o.meterProvider.Meter(scopeName)
}

// LogHandler returns a slog handler that forwards records to the OTLP log
// exporter, or nil when no endpoint is configured.
func (o *OTel) LogHandler() slog.Handler {
	if o.loggerProvider == nil {
		return nil
	}
	return otelslog.NewHandler(scopeName, otelslog.WithLoggerProvider(o.loggerProvider))
}

// Shutdown flushes and stops every provider, newest first.
func (o *OTel) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(o.shutdowns) - 1; i >= 0; i-- {
		if err := o.shutdowns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	o.shutdowns = nil
	return errors.Join(errs...)
}

func traceOptions(cfg OTelConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return opts
}

func metricOptions(cfg OTelConfig) []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return opts
}

func logOptions(cfg OTelConfig) []otlploggrpc.Option {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	return opts
}
