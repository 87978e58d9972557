package statemachine

import (
	"context"
	"maps"
	"sync"
	"time"
)

// StateChange describes one executed transition. It is both the listener
// payload and the history entry.
type StateChange struct {
	MachineID string         `json:"machineId"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	Action    string         `json:"action"`
	Data      map[string]any `json:"data,omitempty"`
	Forced    bool           `json:"forced,omitempty"`
	At        time.Time      `json:"at"`
}

// Listener observes state changes. Listeners run synchronously, in
// subscription order, after the new state is visible.
type Listener func(ctx context.Context, change StateChange)

type subscription struct {
	id       uint64
	listener Listener
}

// Machine is a finite state machine driven by a transition table. State only
// changes through Transition, ForceState or Reset.
type Machine struct {
	id   string
	def  Definition
	opts options

	mu        sync.RWMutex
	current   string
	previous  string
	history   []StateChange
	subs      []subscription
	nextSub   uint64
	destroyed bool
}

// NewMachine validates def and returns a machine in its initial state.
func NewMachine(id string, def Definition, opts ...Option) (*Machine, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	return &Machine{
		id:      id,
		def:     def,
		opts:    newOptions(opts),
		current: def.InitialState,
	}, nil
}

// ID returns the machine id.
func (m *Machine) ID() string {
	return m.id
}

// CurrentState returns the current state.
func (m *Machine) CurrentState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.current
}

// PreviousState returns the state before the last change, empty initially.
func (m *Machine) PreviousState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.previous
}

// InitialState returns the definition's initial state.
func (m *Machine) InitialState() string {
	return m.def.InitialState
}

// Transition applies action to the current state. It returns false, leaving
// the state unchanged, when the current state does not accept action.
// Listeners are notified before Transition returns.
func (m *Machine) Transition(ctx context.Context, action string, data map[string]any) bool {
	return m.transition(ctx, "", action, data)
}

// TransitionFrom is Transition applied only while the machine is still in
// from. It returns false, leaving the state unchanged, once another
// transition has moved the machine elsewhere.
func (m *Machine) TransitionFrom(ctx context.Context, from, action string, data map[string]any) bool {
	return m.transition(ctx, from, action, data)
}

func (m *Machine) transition(ctx context.Context, expected, action string, data map[string]any) bool {
	m.mu.Lock()

	if m.destroyed {
		m.mu.Unlock()
		m.opts.logger.Warn(ctx, m.id, "Transition on destroyed machine", "action", action)

		return false
	}

	from := m.current

	if expected != "" && expected != from {
		m.mu.Unlock()
		m.opts.logger.Warn(ctx, m.id, "Stale transition skipped",
			"action", action, "expected", expected, "current", from)

		return false
	}

	to, ok := m.def.Transitions[from][action]
	if !ok || !m.def.HasState(to) {
		m.mu.Unlock()

		rejectedTransitionTotal.WithLabelValues(sanitizeMachine(m.opts.kind), from, sanitizeAction(action)).Inc()
		m.opts.logger.TransitionRejected(ctx, m.id, from, action)

		return false
	}

	change, subs := m.applyLocked(from, to, action, data, false)
	m.mu.Unlock()

	m.notify(ctx, change, subs)

	return true
}

// ForceState moves to state bypassing the transition table. The history
// entry is tagged FORCE_SET:<reason>. It returns false for unknown states.
func (m *Machine) ForceState(ctx context.Context, state, reason string) bool {
	m.mu.Lock()

	if m.destroyed || !m.def.HasState(state) {
		m.mu.Unlock()
		m.opts.logger.Warn(ctx, m.id, "Cannot force state", "state", state, "reason", reason)

		return false
	}

	change, subs := m.applyLocked(m.current, state, forcedActionPrefix+reason, nil, true)
	m.mu.Unlock()

	m.notify(ctx, change, subs)

	return true
}

// Reset forces the machine back to its initial state.
func (m *Machine) Reset(ctx context.Context) bool {
	return m.ForceState(ctx, m.def.InitialState, "reset")
}

func (m *Machine) applyLocked(
	from, to, action string, data map[string]any, forced bool,
) (StateChange, []subscription) {
	change := StateChange{
		MachineID: m.id,
		From:      from,
		To:        to,
		Action:    action,
		Data:      maps.Clone(data),
		Forced:    forced,
		At:        m.opts.clock.Now(),
	}

	m.previous = from
	m.current = to

	m.history = append(m.history, change)
	if overflow := len(m.history) - m.opts.historyLimit; overflow > 0 {
		m.history = append([]StateChange(nil), m.history[overflow:]...)
	}

	transitionTotal.WithLabelValues(sanitizeMachine(m.opts.kind), from, to, sanitizeAction(action)).Inc()

	return change, append([]subscription(nil), m.subs...)
}

func (m *Machine) notify(ctx context.Context, change StateChange, subs []subscription) {
	m.opts.logger.TransitionExecuted(ctx, change)

	for _, sub := range subs {
		m.safeNotify(ctx, sub.listener, change)
	}
}

func (m *Machine) safeNotify(ctx context.Context, listener Listener, change StateChange) {
	defer func() {
		if r := recover(); r != nil {
			m.opts.logger.Warn(ctx, m.id, "State change listener failed",
				"from", change.From, "to", change.To, "error", recoverError(r))
		}
	}()

	listener(ctx, change)
}

// Subscribe registers listener and returns a function removing it.
func (m *Machine) Subscribe(listener Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSub++
	id := m.nextSub
	m.subs = append(m.subs, subscription{id: id, listener: listener})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		for i, sub := range m.subs {
			if sub.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)

				return
			}
		}
	}
}

// IsActionAllowed reports whether the current state accepts action.
func (m *Machine) IsActionAllowed(action string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.def.Transitions[m.current][action]

	return ok
}

// AvailableActions lists the actions the current state accepts, sorted.
func (m *Machine) AvailableActions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.def.ActionsFrom(m.current)
}

// TargetState returns where action leads from the current state.
func (m *Machine) TargetState(action string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	to, ok := m.def.Transitions[m.current][action]

	return to, ok
}

// IsValidState reports whether state is declared.
func (m *Machine) IsValidState(state string) bool {
	return m.def.HasState(state)
}

// StateDescription returns the declared description of state.
func (m *Machine) StateDescription(state string) string {
	return m.def.States[state].Description
}

// History returns a copy of the transition log, oldest first.
func (m *Machine) History() []StateChange {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]StateChange(nil), m.history...)
}

// Destroy drops all listeners. Later transitions are refused.
func (m *Machine) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subs = nil
	m.destroyed = true
}
