package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

var loggerProvider *sdklog.LoggerProvider //nolint:gochecknoglobals

// InitializeLogs exports log records over OTLP/HTTP when telemetry is
// enabled and a logs endpoint is configured. It returns the slog handler
// feeding the exporter, or nil when logs are not exported.
func InitializeLogs(ctx context.Context, config *Config) (slog.Handler, error) {
	if !config.Enabled || config.LogsEndpoint == "" {
		return nil, nil //nolint:nilnil
	}

	exporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpointURL(config.LogsEndpoint),
		otlploghttp.WithTimeout(config.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}

	return installLogs(ctx, config, sdklog.NewBatchProcessor(exporter))
}

// InitializeLogsWithExporter is InitializeLogs with a synchronous processor
// over exporter.
func InitializeLogsWithExporter(ctx context.Context, config *Config, exporter sdklog.Exporter) (slog.Handler, error) {
	return installLogs(ctx, config, sdklog.NewSimpleProcessor(exporter))
}

func installLogs(ctx context.Context, config *Config, processor sdklog.Processor) (slog.Handler, error) {
	res, err := newResource(ctx, config)
	if err != nil {
		return nil, err
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(processor),
		sdklog.WithResource(res),
	)

	providerMu.Lock()
	previous := loggerProvider
	loggerProvider = provider
	providerMu.Unlock()

	if previous != nil {
		_ = previous.Shutdown(ctx)
	}

	global.SetLoggerProvider(provider)

	return otelslog.NewHandler(config.ServiceName, otelslog.WithLoggerProvider(provider)), nil
}
