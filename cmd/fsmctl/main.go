// Command fsmctl validates, draws and exercises the editor's state machines.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/amp-labs/diagramfsm/logger"
	"github.com/amp-labs/diagramfsm/shutdown"
	"github.com/amp-labs/diagramfsm/telemetry"
)

const appName = "fsmctl"

func main() {
	coord := shutdown.New(0)
	ctx := coord.Listen(logger.WithSubsystem(context.Background(), appName))

	if _, err := logger.ConfigureLogging(ctx, appName, logger.WithOutput(os.Stderr)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	otelConfig, err := telemetry.LoadConfigFromEnv(ctx)
	if err != nil {
		logger.Fatal("Invalid telemetry configuration", "error", err)
	}

	if err := telemetry.Initialize(ctx, otelConfig); err != nil {
		logger.Fatal("Failed to initialize telemetry", "error", err)
	}

	otelLogs, err := telemetry.InitializeLogs(ctx, otelConfig)
	if err != nil {
		logger.Fatal("Failed to initialize log export", "error", err)
	}

	if otelLogs != nil {
		if _, err := logger.ConfigureLogging(ctx, appName,
			logger.WithOutput(os.Stderr), logger.WithHandler(otelLogs)); err != nil {
			logger.Fatal("Failed to configure logging", "error", err)
		}
	}

	coord.BeforeShutdown(func(ctx context.Context) {
		if err := telemetry.Shutdown(ctx); err != nil {
			logger.Get(ctx).Warn("Telemetry shutdown failed", "error", err)
		}
	})

	root := newRootCmd(os.Stdout, os.Stderr)
	code := 0

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)

		code = 1
	}

	if err := telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
		logger.Get(ctx).Warn("Telemetry shutdown failed", "error", err)
	}

	os.Exit(code)
}
