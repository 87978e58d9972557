package statemachine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/amp-labs/diagramfsm/clock"
)

// HighlightFlag is the flag set by the built-in highlight handler.
const HighlightFlag = "highlighted"

// Target is the visual handle an executor mutates through flag actions.
type Target interface {
	AddFlag(flag string)
	RemoveFlag(flag string)
}

// Phase tells whether an action runs on exit or on entry.
type Phase string

const (
	PhaseExit  Phase = "exit"
	PhaseEnter Phase = "enter"
)

// ActionRun is the context handed to handlers and callbacks.
type ActionRun struct {
	MachineID string
	Phase     Phase
	// State owns the list being run: the old state on exit, the new one on enter.
	State   string
	From    string
	To      string
	Trigger string
	Data    map[string]any
	Spec    ActionSpec
	Target  Target
}

// ActionHandler is a named action implementation.
type ActionHandler func(ctx context.Context, run ActionRun) error

// TimeoutFunc receives the logical action of a fired timeout.
type TimeoutFunc func(ctx context.Context, action string, data map[string]any)

// ActionExecutor runs onExit and onEnter lists for transitions. It owns at
// most one pending timeout; scheduling another cancels the first.
type ActionExecutor struct {
	id     string
	states map[string]StateConfig
	opts   options

	mu        sync.Mutex
	handlers  map[string]ActionHandler
	callbacks map[string]ActionHandler
	onTimeout TimeoutFunc
	timer     clock.Timer
	timerGen  uint64
	destroyed bool
}

// NewActionExecutor returns an executor for the given state table with the
// built-in highlight and unhighlight handlers registered.
func NewActionExecutor(id string, states map[string]StateConfig, opts ...Option) *ActionExecutor {
	e := &ActionExecutor{
		id:        id,
		states:    states,
		opts:      newOptions(opts),
		handlers:  make(map[string]ActionHandler),
		callbacks: make(map[string]ActionHandler),
	}

	e.RegisterHandler("highlight", func(_ context.Context, run ActionRun) error {
		if run.Target != nil {
			run.Target.AddFlag(HighlightFlag)
		}

		return nil
	})
	e.RegisterHandler("unhighlight", func(_ context.Context, run ActionRun) error {
		if run.Target != nil {
			run.Target.RemoveFlag(HighlightFlag)
		}

		return nil
	})

	return e
}

// RegisterHandler registers or replaces a named handler.
func (e *ActionExecutor) RegisterHandler(name string, handler ActionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.handlers[name] = handler
}

// HasHandler reports whether name is registered.
func (e *ActionExecutor) HasHandler(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.handlers[name]

	return ok
}

// RegisterCallback registers a callback reachable from callback actions and
// from timeouts that do not name an action (DefaultTimeoutCallback).
func (e *ActionExecutor) RegisterCallback(name string, callback ActionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.callbacks[name] = callback
}

// OnTimeout sets the receiver of timeouts that name a logical action.
func (e *ActionExecutor) OnTimeout(fn TimeoutFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.onTimeout = fn
}

// ExecuteTransition runs the exit actions of change.From, clears any pending
// timeout, then runs the entry actions of change.To.
func (e *ActionExecutor) ExecuteTransition(ctx context.Context, change StateChange) {
	if change.From != "" {
		e.runList(ctx, change, PhaseExit, change.From)
	}

	e.ClearTimeout()

	e.runList(ctx, change, PhaseEnter, change.To)
}

func (e *ActionExecutor) runList(ctx context.Context, change StateChange, phase Phase, state string) {
	stateConfig, ok := e.states[state]
	if !ok {
		return
	}

	list := stateConfig.OnExit
	if phase == PhaseEnter {
		list = stateConfig.OnEnter
	}

	if list.Malformed {
		e.opts.logger.Warn(ctx, e.id, "Action list is not a list, skipping", "state", state, "phase", phase)

		return
	}

	for _, spec := range list.Specs {
		e.runAction(ctx, ActionRun{
			MachineID: e.id,
			Phase:     phase,
			State:     state,
			From:      change.From,
			To:        change.To,
			Trigger:   change.Action,
			Data:      change.Data,
			Spec:      spec,
			Target:    e.opts.target,
		})
	}
}

// runAction executes one spec. Failures are logged and counted, never
// propagated: the remaining actions of the list still run.
func (e *ActionExecutor) runAction(ctx context.Context, run ActionRun) {
	actionCtx, span := startActionSpan(ctx, e.opts.kind, e.id, run)
	start := time.Now()

	err := e.dispatch(actionCtx, run)

	duration := time.Since(start)
	endSpan(span, err)

	machine := sanitizeMachine(e.opts.kind)
	actionDuration.WithLabelValues(machine, run.Spec.Label(), string(run.Phase)).Observe(duration.Seconds())

	if err != nil {
		actionFailureTotal.WithLabelValues(machine, run.Spec.Label(), failureReason(err)).Inc()
	}

	e.opts.logger.ActionCompleted(ctx, e.id, run, duration, err)
}

func (e *ActionExecutor) dispatch(ctx context.Context, run ActionRun) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverError(r)
		}
	}()

	spec := run.Spec

	switch spec.Kind {
	case ActionKindHandler:
		e.mu.Lock()
		handler, ok := e.handlers[spec.Name]
		e.mu.Unlock()

		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownHandler, spec.Name)
		}

		return handler(ctx, run)
	case ActionKindCallback:
		e.mu.Lock()
		callback, ok := e.callbacks[spec.Name]
		e.mu.Unlock()

		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCallback, spec.Name)
		}

		return callback(ctx, run)
	case ActionKindAddFlag:
		if run.Target != nil {
			run.Target.AddFlag(spec.Flag)
		}
	case ActionKindRemoveFlag:
		if run.Target != nil {
			run.Target.RemoveFlag(spec.Flag)
		}
	case ActionKindTimeout:
		e.schedule(run)
	case ActionKindClearTimeout:
		e.ClearTimeout()
	case ActionKindLog:
		logAction(ctx, run)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownActionKind, spec.Kind)
	}

	return nil
}

func (e *ActionExecutor) schedule(run ActionRun) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return
	}

	if e.timer != nil {
		e.timer.Stop()
	}

	e.timerGen++
	gen := e.timerGen
	data := maps.Clone(run.Data)

	e.timer = e.opts.clock.AfterFunc(run.Spec.Delay(), func() {
		e.fire(gen, run, data)
	})
}

func (e *ActionExecutor) fire(gen uint64, run ActionRun, data map[string]any) {
	e.mu.Lock()

	if e.destroyed || gen != e.timerGen || e.timer == nil {
		e.mu.Unlock()

		return
	}

	e.timer = nil
	onTimeout := e.onTimeout
	callback := e.callbacks[DefaultTimeoutCallback]
	e.mu.Unlock()

	ctx := context.Background()

	if run.Spec.OnFire != "" {
		if onTimeout != nil {
			onTimeout(ctx, run.Spec.OnFire, data)
		}

		return
	}

	if callback != nil {
		if err := e.safeCallback(ctx, callback, run); err != nil {
			e.opts.logger.Warn(ctx, e.id, "Timeout callback failed", "error", err)
		}
	}
}

func (e *ActionExecutor) safeCallback(ctx context.Context, callback ActionHandler, run ActionRun) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverError(r)
		}
	}()

	return callback(ctx, run)
}

// ClearTimeout cancels the pending timeout, if any.
func (e *ActionExecutor) ClearTimeout() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}

	e.timerGen++
}

// HasPendingTimeout reports whether a timeout is scheduled.
func (e *ActionExecutor) HasPendingTimeout() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.timer != nil
}

// Destroy cancels the pending timeout and drops all handlers.
func (e *ActionExecutor) Destroy() {
	e.ClearTimeout()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.destroyed = true
	e.handlers = make(map[string]ActionHandler)
	e.callbacks = make(map[string]ActionHandler)
	e.onTimeout = nil
}

func logAction(ctx context.Context, run ActionRun) {
	level := slog.LevelInfo

	switch strings.ToLower(run.Spec.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	slog.Default().Log(ctx, level, run.Spec.Message,
		"machine", run.MachineID,
		"state", run.State,
		"phase", run.Phase,
	)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrHandlerPanic):
		return "panic"
	case errors.Is(err, ErrUnknownHandler), errors.Is(err, ErrUnknownCallback):
		return "unknown"
	default:
		return "error"
	}
}
