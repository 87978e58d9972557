// Package telemetry installs the global OpenTelemetry tracer provider that
// the state machine spans are recorded on.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amp-labs/diagramfsm/logger"
	"github.com/amp-labs/diagramfsm/settings"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const (
	defaultServiceVersion = "1.0.0"
	defaultTimeout        = 5 * time.Second
)

var (
	providerMu     sync.Mutex                //nolint:gochecknoglobals
	tracerProvider *sdktrace.TracerProvider //nolint:gochecknoglobals
)

// Config holds the OpenTelemetry configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	LogsEndpoint   string
	Enabled        bool
	Timeout        time.Duration
}

// LoadConfigFromEnv reads OTEL_ENABLED, OTEL_SERVICE_NAME,
// OTEL_SERVICE_VERSION, OTEL_EXPORTER_OTLP_TRACES_ENDPOINT and
// OTEL_EXPORTER_OTLP_TRACES_TIMEOUT. The service name defaults to the
// logging subsystem.
func LoadConfigFromEnv(ctx context.Context) (*Config, error) {
	enabled, errEnabled := settings.Bool(ctx, "OTEL_ENABLED", settings.Default(false)).Value()
	name, errName := settings.String(ctx, "OTEL_SERVICE_NAME",
		settings.Default(logger.GetSubsystem(ctx))).Value()
	version, errVersion := settings.String(ctx, "OTEL_SERVICE_VERSION",
		settings.Default(defaultServiceVersion)).Value()
	endpoint := settings.String(ctx, "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT").ValueOrElse("")
	logsEndpoint := settings.String(ctx, "OTEL_EXPORTER_OTLP_LOGS_ENDPOINT").ValueOrElse("")
	timeout, errTimeout := settings.Duration(ctx, "OTEL_EXPORTER_OTLP_TRACES_TIMEOUT",
		settings.Default(defaultTimeout)).Value()

	if err := errors.Join(errEnabled, errName, errVersion, errTimeout); err != nil {
		return nil, err
	}

	return &Config{
		ServiceName:    name,
		ServiceVersion: version,
		Endpoint:       endpoint,
		LogsEndpoint:   logsEndpoint,
		Enabled:        enabled,
		Timeout:        timeout,
	}, nil
}

// Initialize exports spans over OTLP/HTTP when tracing is enabled and an
// endpoint is configured. Otherwise it leaves the no-op provider in place.
func Initialize(ctx context.Context, config *Config) error {
	if !config.Enabled {
		slog.Info("OpenTelemetry tracing is disabled")

		return nil
	}

	if config.Endpoint == "" {
		slog.Warn("OpenTelemetry endpoint not configured, tracing will be disabled")

		return nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(config.Endpoint),
		otlptracehttp.WithTimeout(config.Timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	return install(ctx, config, sdktrace.WithBatcher(exporter))
}

// InitializeWithExporter installs a provider exporting every span
// synchronously into exporter. Tests pass an in-memory exporter.
func InitializeWithExporter(ctx context.Context, config *Config, exporter sdktrace.SpanExporter) error {
	return install(ctx, config, sdktrace.WithSyncer(exporter))
}

func install(ctx context.Context, config *Config, export sdktrace.TracerProviderOption) error {
	res, err := newResource(ctx, config)
	if err != nil {
		return err
	}

	provider := sdktrace.NewTracerProvider(
		export,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	providerMu.Lock()
	previous := tracerProvider
	tracerProvider = provider
	providerMu.Unlock()

	if previous != nil {
		_ = previous.Shutdown(ctx)
	}

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("OpenTelemetry tracing initialized",
		"service", config.ServiceName,
		"version", config.ServiceVersion,
		"endpoint", config.Endpoint,
	)

	return nil
}

func newResource(ctx context.Context, config *Config) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	return res, nil
}

// Shutdown flushes and stops the installed providers, if any.
func Shutdown(ctx context.Context) error {
	providerMu.Lock()
	tracer := tracerProvider
	logs := loggerProvider
	tracerProvider = nil
	loggerProvider = nil
	providerMu.Unlock()

	var errs []error

	if tracer != nil {
		slog.Info("Shutting down OpenTelemetry tracer provider")

		errs = append(errs, tracer.Shutdown(ctx))
	}

	if logs != nil {
		errs = append(errs, logs.Shutdown(ctx))
	}

	return errors.Join(errs...)
}
