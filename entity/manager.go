// Package entity runs one state machine per diagram node and publishes every
// node state change to subscribers.
package entity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"facette.io/natsort"
	"github.com/amp-labs/diagramfsm/clock"
	"github.com/amp-labs/diagramfsm/configs"
	"github.com/amp-labs/diagramfsm/diagram"
	"github.com/amp-labs/diagramfsm/logger"
	"github.com/amp-labs/diagramfsm/statemachine"
)

var (
	// ErrAlreadyRegistered is returned when a node id is registered twice.
	ErrAlreadyRegistered = errors.New("node already registered")
	// ErrNoTarget is returned by flag handlers running without a visual handle.
	ErrNoTarget = errors.New("no visual target")
	// ErrManagerDestroyed is returned after Destroy.
	ErrManagerDestroyed = errors.New("entity manager destroyed")
)

// Change is a node state change. Removed is set, with an empty To, when the
// node is unregistered.
type Change struct {
	Node    string    `json:"node"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Action  string    `json:"action"`
	Forced  bool      `json:"forced,omitempty"`
	Removed bool      `json:"removed,omitempty"`
	At      time.Time `json:"at"`
}

// ChangeListener observes node changes. It runs synchronously, outside any
// manager lock, so it may call back into the manager.
type ChangeListener func(ctx context.Context, change Change)

// Option configures a Manager.
type Option func(*options)

type options struct {
	config       *statemachine.Config
	clock        clock.Clock
	machineOpts  []statemachine.Option
	historyLimit int
}

// WithConfig replaces the embedded entity configuration.
func WithConfig(config *statemachine.Config) Option {
	return func(o *options) {
		o.config = config
	}
}

// WithClock sets the clock of every node machine.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithHistoryLimit bounds each node's transition log.
func WithHistoryLimit(limit int) Option {
	return func(o *options) {
		o.historyLimit = limit
	}
}

// WithMachineOptions passes extra options to every node machine.
func WithMachineOptions(opts ...statemachine.Option) Option {
	return func(o *options) {
		o.machineOpts = append(o.machineOpts, opts...)
	}
}

type node struct {
	machine *statemachine.Manager
}

type changeSub struct {
	id       uint64
	listener ChangeListener
}

// Manager owns the node machines of one diagram.
type Manager struct {
	config      *statemachine.Config
	highlighter diagram.Highlighter
	opts        options

	mu        sync.RWMutex
	nodes     map[string]*node
	subs      []changeSub
	nextSub   uint64
	destroyed bool
}

// NewManager validates the entity configuration (the embedded one unless
// WithConfig is given). Flag actions of node id are applied through
// highlighter as (id, flag); a nil highlighter drops them.
func NewManager(highlighter diagram.Highlighter, opts ...Option) (*Manager, error) {
	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.config == nil {
		config, err := configs.Load(configs.Entity)
		if err != nil {
			return nil, err
		}

		o.config = config
	}

	if err := o.config.Validate(); err != nil {
		return nil, err
	}

	return &Manager{
		config:      o.config,
		highlighter: highlighter,
		opts:        o,
		nodes:       make(map[string]*node),
	}, nil
}

// Register creates the machine of node id in the initial state.
func (m *Manager) Register(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return ErrManagerDestroyed
	}

	if _, ok := m.nodes[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}

	machineOpts := []statemachine.Option{
		statemachine.WithClock(m.opts.clock),
		statemachine.WithHistoryLimit(m.opts.historyLimit),
		statemachine.WithTarget(nodeTarget{highlighter: m.highlighter, id: id}),
	}
	machineOpts = append(machineOpts, m.opts.machineOpts...)

	machine, err := statemachine.NewManager(id, m.config, machineOpts...)
	if err != nil {
		return err
	}

	registerHandlers(machine)
	machine.Subscribe(func(ctx context.Context, sc statemachine.StateChange) {
		m.publish(ctx, Change{
			Node:   sc.MachineID,
			From:   sc.From,
			To:     sc.To,
			Action: sc.Action,
			Forced: sc.Forced,
			At:     sc.At,
		})
	})

	m.nodes[id] = &node{machine: machine}

	return nil
}

// Unregister destroys the machine of node id and publishes a removal.
func (m *Manager) Unregister(ctx context.Context, id string) bool {
	m.mu.Lock()
	n, ok := m.nodes[id]
	delete(m.nodes, id)
	m.mu.Unlock()

	if !ok {
		return false
	}

	from := n.machine.CurrentState()
	n.machine.Destroy()

	m.publish(ctx, Change{
		Node:    id,
		From:    from,
		Removed: true,
		At:      m.opts.clock.Now(),
	})

	return true
}

func (m *Manager) get(id string) (*statemachine.Manager, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.nodes[id]
	if !ok {
		return nil, false
	}

	return n.machine, true
}

// Machine returns the machine of node id.
func (m *Manager) Machine(id string) (*statemachine.Manager, bool) {
	return m.get(id)
}

// HandleEvent delivers a technical event to node id.
func (m *Manager) HandleEvent(ctx context.Context, id, event string, data map[string]any) bool {
	machine, ok := m.get(id)
	if !ok {
		logger.Get(ctx).Debug("Event for unknown node", "node", id, "event", event)

		return false
	}

	return machine.HandleEvent(ctx, event, data)
}

// Transition applies a logical action to node id.
func (m *Manager) Transition(ctx context.Context, id, action string, data map[string]any) bool {
	machine, ok := m.get(id)
	if !ok {
		return false
	}

	return machine.Transition(ctx, action, data)
}

// ForceState moves node id to state bypassing the table.
func (m *Manager) ForceState(ctx context.Context, id, state, reason string) bool {
	machine, ok := m.get(id)
	if !ok {
		return false
	}

	return machine.ForceState(ctx, state, reason)
}

// State returns the current state of node id.
func (m *Manager) State(id string) (string, bool) {
	machine, ok := m.get(id)
	if !ok {
		return "", false
	}

	return machine.CurrentState(), true
}

// CanTransition reports whether node id currently accepts action.
func (m *Manager) CanTransition(id, action string) bool {
	machine, ok := m.get(id)

	return ok && machine.IsActionAllowed(action)
}

// Has reports whether node id is registered.
func (m *Manager) Has(id string) bool {
	_, ok := m.get(id)

	return ok
}

// Nodes returns the registered ids in natural order.
func (m *Manager) Nodes() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.nodes))

	for id := range m.nodes {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	natsort.Sort(ids)

	return ids
}

// NodesIn returns, in natural order, the nodes currently in state.
func (m *Manager) NodesIn(state string) []string {
	var out []string

	for _, id := range m.Nodes() {
		if current, ok := m.State(id); ok && current == state {
			out = append(out, id)
		}
	}

	return out
}

// Broadcast delivers event to every node and returns how many applied it.
func (m *Manager) Broadcast(ctx context.Context, event string, data map[string]any) int {
	applied := 0

	for _, id := range m.Nodes() {
		if m.HandleEvent(ctx, id, event, data) {
			applied++
		}
	}

	return applied
}

// ResetAll forces every node that is not idle back to the initial state.
func (m *Manager) ResetAll(ctx context.Context) {
	initial := m.config.StateMachine.InitialState

	for _, id := range m.Nodes() {
		if machine, ok := m.get(id); ok && machine.CurrentState() != initial {
			machine.Reset(ctx)
		}
	}
}

// Subscribe registers listener and returns a function removing it.
func (m *Manager) Subscribe(listener ChangeListener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSub++
	id := m.nextSub
	m.subs = append(m.subs, changeSub{id: id, listener: listener})

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

func (m *Manager) publish(ctx context.Context, change Change) {
	m.mu.RLock()
	subs := append([]changeSub(nil), m.subs...)
	m.mu.RUnlock()

	for _, sub := range subs {
		m.notify(ctx, sub.listener, change)
	}
}

func (m *Manager) notify(ctx context.Context, listener ChangeListener, change Change) {
	defer func() {
		if r := recover(); r != nil {
			logger.Get(ctx).Error("Entity change listener panicked",
				"node", change.Node, "to", change.To, "panic", r)
		}
	}()

	listener(ctx, change)
}

// DebugInfo returns a snapshot of every node machine in natural id order.
func (m *Manager) DebugInfo() []statemachine.DebugInfo {
	ids := m.Nodes()
	out := make([]statemachine.DebugInfo, 0, len(ids))

	for _, id := range ids {
		if machine, ok := m.get(id); ok {
			out = append(out, machine.DebugInfo())
		}
	}

	return out
}

// Destroy tears down every node machine and drops all listeners.
func (m *Manager) Destroy() {
	m.mu.Lock()
	nodes := m.nodes
	m.nodes = make(map[string]*node)
	m.subs = nil
	m.destroyed = true
	m.mu.Unlock()

	for _, n := range nodes {
		n.machine.Destroy()
	}
}

type nodeTarget struct {
	highlighter diagram.Highlighter
	id          string
}

func (t nodeTarget) AddFlag(flag string) {
	if t.highlighter != nil {
		t.highlighter.AddFlag(t.id, flag)
	}
}

func (t nodeTarget) RemoveFlag(flag string) {
	if t.highlighter != nil {
		t.highlighter.RemoveFlag(t.id, flag)
	}
}
