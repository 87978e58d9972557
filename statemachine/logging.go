package statemachine

import (
	"context"
	"log/slog"
	"time"
)

// Logger provides logging hooks for machine, mapper and executor activity.
type Logger interface {
	TransitionExecuted(ctx context.Context, change StateChange)
	TransitionRejected(ctx context.Context, machineID, state, action string)
	EventUnmapped(ctx context.Context, machineID, event, state string)
	ActionCompleted(ctx context.Context, machineID string, run ActionRun, duration time.Duration, err error)
	Warn(ctx context.Context, machineID, msg string, args ...any)
}

// DefaultLogger implements Logger using slog.
type DefaultLogger struct {
	logger *slog.Logger
}

// NewDefaultLogger creates a logger writing to slog.Default().
func NewDefaultLogger() *DefaultLogger {
	return NewSlogLogger(slog.Default())
}

// NewSlogLogger creates a Logger writing to l.
func NewSlogLogger(l *slog.Logger) *DefaultLogger {
	if l == nil {
		l = slog.Default()
	}

	return &DefaultLogger{logger: l}
}

func (l *DefaultLogger) TransitionExecuted(ctx context.Context, change StateChange) {
	fields := []any{
		"machine", change.MachineID,
		"from", change.From,
		"to", change.To,
		"action", change.Action,
	}

	if change.Forced {
		fields = append(fields, "forced", true)
		l.logger.InfoContext(ctx, "State forced", fields...)

		return
	}

	l.logger.DebugContext(ctx, "Transition executed", fields...)
}

func (l *DefaultLogger) TransitionRejected(ctx context.Context, machineID, state, action string) {
	l.logger.WarnContext(ctx, "Transition not allowed",
		"machine", machineID,
		"state", state,
		"action", action,
	)
}

func (l *DefaultLogger) EventUnmapped(ctx context.Context, machineID, event, state string) {
	l.logger.DebugContext(ctx, "No mapping for event",
		"machine", machineID,
		"event", event,
		"state", state,
	)
}

func (l *DefaultLogger) ActionCompleted(
	ctx context.Context, machineID string, run ActionRun, duration time.Duration, err error,
) {
	fields := []any{
		"machine", machineID,
		"action", run.Spec.Label(),
		"phase", run.Phase,
		"state", run.State,
		"duration_ms", duration.Milliseconds(),
	}

	if err != nil {
		l.logger.ErrorContext(ctx, "Action failed", append(fields, "error", err)...)

		return
	}

	l.logger.DebugContext(ctx, "Action completed", fields...)
}

func (l *DefaultLogger) Warn(ctx context.Context, machineID, msg string, args ...any) {
	l.logger.WarnContext(ctx, msg, append([]any{"machine", machineID}, args...)...)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) TransitionExecuted(context.Context, StateChange) {}
func (NopLogger) TransitionRejected(context.Context, string, string, string) {}
func (NopLogger) EventUnmapped(context.Context, string, string, string) {}
func (NopLogger) ActionCompleted(context.Context, string, ActionRun, time.Duration, error) {}
func (NopLogger) Warn(context.Context, string, string, ...any) {}
