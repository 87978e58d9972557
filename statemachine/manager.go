package statemachine

import (
	"context"
	"fmt"
	"time"
)

// Manager binds a Machine, its EventMapper and its ActionExecutor built from
// one Config. Every state change runs the executor before the caller's
// HandleEvent or Transition returns.
type Manager struct {
	id       string
	config   *Config
	opts     options
	machine  *Machine
	mapper   *EventMapper
	executor *ActionExecutor
}

// DebugInfo is a point-in-time snapshot of a Manager.
type DebugInfo struct {
	ID               string        `json:"id"`
	Machine          string        `json:"machine"`
	CurrentState     string        `json:"currentState"`
	PreviousState    string        `json:"previousState,omitempty"`
	AvailableActions []string      `json:"availableActions"`
	PendingTimeout   bool          `json:"pendingTimeout"`
	History          []StateChange `json:"history"`
}

// NewManager validates config, reporting every problem at once, and builds
// the machine, mapper and executor. The config must not be mutated later.
func NewManager(id string, config *Config, opts ...Option) (*Manager, error) {
	if config == nil {
		return nil, &ConfigError{Name: id, Problems: []error{ErrStatesRequired}}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts = append([]Option{WithKind(config.Name)}, opts...)
	o := newOptions(opts)

	machine, err := NewMachine(id, config.StateMachine, opts...)
	if err != nil {
		return nil, err
	}

	mgr := &Manager{
		id:       id,
		config:   config,
		opts:     o,
		machine:  machine,
		mapper:   NewEventMapper(id, config.EventMapping, opts...),
		executor: NewActionExecutor(id, config.StateMachine.States, opts...),
	}

	machine.Subscribe(mgr.executor.ExecuteTransition)
	mgr.executor.OnTimeout(func(ctx context.Context, action string, data map[string]any) {
		mgr.Transition(ctx, action, data)
	})

	return mgr, nil
}

// ID returns the manager id.
func (m *Manager) ID() string {
	return m.id
}

// Config returns the configuration the manager was built from.
func (m *Manager) Config() *Config {
	return m.config
}

// HandleEvent maps a technical event to an action in the current state and
// applies it against that same state. It returns false when nothing maps, the
// transition is refused, or the state changed while the event was mapped.
func (m *Manager) HandleEvent(ctx context.Context, event string, data map[string]any) bool {
	state := m.machine.CurrentState()

	ctx, span := startEventSpan(ctx, m.config.Name, m.id, event, state)

	action, ok := m.mapper.MapEvent(ctx, event, state, data)
	if !ok {
		eventTotal.WithLabelValues(sanitizeMachine(m.config.Name), event, "unmapped").Inc()
		m.opts.logger.EventUnmapped(ctx, m.id, event, state)
		endSpan(span, nil)

		return false
	}

	applied := m.machine.TransitionFrom(ctx, state, action, data)

	outcome := "applied"
	if !applied {
		outcome = "rejected"
	}

	eventTotal.WithLabelValues(sanitizeMachine(m.config.Name), event, outcome).Inc()

	switch {
	case applied:
		endSpan(span, nil)
	case m.machine.CurrentState() != state:
		endSpan(span, WrapTransitionError(state, action, ErrStateChanged))
	default:
		endSpan(span, WrapTransitionError(state, action, ErrTransitionNotAllowed))
	}

	return applied
}

// Transition applies a logical action directly.
func (m *Manager) Transition(ctx context.Context, action string, data map[string]any) bool {
	return m.machine.Transition(ctx, action, data)
}

// TryTransition is Transition reporting why a refused action failed.
func (m *Manager) TryTransition(ctx context.Context, action string, data map[string]any) error {
	from := m.machine.CurrentState()

	if m.machine.Transition(ctx, action, data) {
		return nil
	}

	return WrapTransitionError(from, action, ErrTransitionNotAllowed)
}

// TryEvent is HandleEvent reporting why the event had no effect.
func (m *Manager) TryEvent(ctx context.Context, event string, data map[string]any) error {
	state := m.machine.CurrentState()

	action, ok := m.mapper.MapEvent(ctx, event, state, data)
	if !ok {
		return WrapTransitionError(state, "", fmt.Errorf("%w: %s", ErrNoEventMapping, event))
	}

	if m.HandleEvent(ctx, event, data) {
		return nil
	}

	return WrapTransitionError(state, action, ErrTransitionNotAllowed)
}

// ForceState moves to state bypassing the table; actions still run.
func (m *Manager) ForceState(ctx context.Context, state, reason string) bool {
	return m.machine.ForceState(ctx, state, reason)
}

// Reset forces the initial state.
func (m *Manager) Reset(ctx context.Context) bool {
	return m.machine.Reset(ctx)
}

// CurrentState returns the current state.
func (m *Manager) CurrentState() string {
	return m.machine.CurrentState()
}

// PreviousState returns the state before the last change.
func (m *Manager) PreviousState() string {
	return m.machine.PreviousState()
}

// IsActionAllowed reports whether the current state accepts action.
func (m *Manager) IsActionAllowed(action string) bool {
	return m.machine.IsActionAllowed(action)
}

// AvailableActions lists the actions accepted by the current state.
func (m *Manager) AvailableActions() []string {
	return m.machine.AvailableActions()
}

// PossibleActions lists the actions event may map to in the current state.
func (m *Manager) PossibleActions(event string) []string {
	return m.mapper.PossibleActions(event, m.machine.CurrentState())
}

// History returns the transition log.
func (m *Manager) History() []StateChange {
	return m.machine.History()
}

// Subscribe registers a listener notified after the executor has run.
func (m *Manager) Subscribe(listener Listener) func() {
	return m.machine.Subscribe(listener)
}

// RegisterHandler registers a named action handler.
func (m *Manager) RegisterHandler(name string, handler ActionHandler) {
	m.executor.RegisterHandler(name, handler)
}

// RegisterCallback registers a named callback.
func (m *Manager) RegisterCallback(name string, callback ActionHandler) {
	m.executor.RegisterCallback(name, callback)
}

// RegisterConditionEvaluator registers a named condition evaluator.
func (m *Manager) RegisterConditionEvaluator(name string, evaluator ConditionEvaluator) {
	m.mapper.RegisterConditionEvaluator(name, evaluator)
}

// HasPendingTimeout reports whether the executor has a scheduled timeout.
func (m *Manager) HasPendingTimeout() bool {
	return m.executor.HasPendingTimeout()
}

// Now returns the manager clock's current time.
func (m *Manager) Now() time.Time {
	return m.opts.clock.Now()
}

// DebugInfo returns a snapshot for diagnostics.
func (m *Manager) DebugInfo() DebugInfo {
	return DebugInfo{
		ID:               m.id,
		Machine:          m.config.Name,
		CurrentState:     m.machine.CurrentState(),
		PreviousState:    m.machine.PreviousState(),
		AvailableActions: m.machine.AvailableActions(),
		PendingTimeout:   m.executor.HasPendingTimeout(),
		History:          m.machine.History(),
	}
}

// Destroy releases the timer and all listeners and handlers.
func (m *Manager) Destroy() {
	m.executor.Destroy()
	m.machine.Destroy()
}
