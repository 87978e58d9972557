// Package orchestrator drives the diagram-wide edge creation gesture. It
// owns one state machine (idle, edgeCreation) and steps the node machines of
// an entity.Manager through edgeSource, edgeTarget and cooldown.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/amp-labs/diagramfsm/clock"
	"github.com/amp-labs/diagramfsm/configs"
	"github.com/amp-labs/diagramfsm/diagram"
	"github.com/amp-labs/diagramfsm/entity"
	"github.com/amp-labs/diagramfsm/logger"
	"github.com/amp-labs/diagramfsm/statemachine"
	"go.uber.org/atomic"
)

// States of the orchestrator configuration.
const (
	StateIdle         = "idle"
	StateEdgeCreation = "edgeCreation"
)

// Technical events understood by the orchestrator configuration.
const (
	EventNodeSelectedForEdge = "nodeSelectedForEdge"
	EventEdgeTargetClicked   = "edgeTargetClicked"
	EventCancelEdgeCreation  = "cancelEdgeCreation"
	EventEscapeKey           = "escapeKey"
	EventShiftKeyReleased    = "shiftKeyReleased"
	EventBackgroundClicked   = "backgroundClicked"
	EventPointerOverSource   = "pointerOverSource"
	EventNodeStartedDragging = "nodeStartedDragging"
)

// Logical actions of the orchestrator configuration.
const (
	ActionStartEdgeCreation = "startEdgeCreation"
	ActionCompleteEdge      = "completeEdge"
	ActionCancelEdge        = "cancelEdge"
)

// Event data keys.
const (
	DataSource       = "source"
	DataTarget       = "target"
	DataReason       = "reason"
	DataSourceReady  = "sourceReady"
	DataInCooldown   = "inCooldown"
	DataValidTarget  = "validTarget"
	DataIsSourceNode = "isSourceNode"
)

// FlagEdgeCandidate marks every node that may receive the edge being drawn.
const FlagEdgeCandidate = "edge-candidate"

// DefaultCooldownWindow is how long new gestures are refused after a cancel.
const DefaultCooldownWindow = 100 * time.Millisecond

// SourcePolicy decides where the source node goes after a commit.
type SourcePolicy string

const (
	SourceCooldown SourcePolicy = "cooldown"
	SourceSelected SourcePolicy = "selected"
)

// Option configures an Orchestrator.
type Option func(*options)

type options struct {
	config         *statemachine.Config
	clock          clock.Clock
	cooldownWindow time.Duration
	policy         SourcePolicy
	machineOpts    []statemachine.Option
}

// WithConfig replaces the embedded orchestrator configuration.
func WithConfig(config *statemachine.Config) Option {
	return func(o *options) {
		o.config = config
	}
}

// WithClock sets the clock used for the cooldown window and timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithCooldownWindow sets the window after a cancel during which new
// gestures are refused. Zero disables it.
func WithCooldownWindow(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.cooldownWindow = d
		}
	}
}

// WithSourceAfterCommit sets the source policy. Unknown values keep cooldown.
func WithSourceAfterCommit(policy SourcePolicy) Option {
	return func(o *options) {
		if policy == SourceCooldown || policy == SourceSelected {
			o.policy = policy
		}
	}
}

// WithMachineOptions passes extra options to the orchestrator machine.
func WithMachineOptions(opts ...statemachine.Option) Option {
	return func(o *options) {
		o.machineOpts = append(o.machineOpts, opts...)
	}
}

// gesture is the state of the edge being drawn.
type gesture struct {
	source     string
	hover      string
	target     string
	preview    diagram.PreviewEdge
	startedAt  time.Time
	leftSource bool
}

// Orchestrator is the edge creation protocol of one diagram.
type Orchestrator struct {
	id       string
	entities *entity.Manager
	scene    diagram.Scene
	machine  *statemachine.Manager
	opts     options

	cooldownUntil *atomic.Time

	mu          sync.Mutex
	current     gesture
	lastEdge    *diagram.Edge
	unsubscribe func()
}

// DebugInfo is a snapshot of an Orchestrator.
type DebugInfo struct {
	State          string                 `json:"state"`
	Source         string                 `json:"source,omitempty"`
	Hover          string                 `json:"hover,omitempty"`
	InCooldown     bool                   `json:"inCooldown"`
	PreviewActive  bool                   `json:"previewActive"`
	SourcePolicy   SourcePolicy           `json:"sourcePolicy"`
	CooldownWindow time.Duration          `json:"cooldownWindow"`
	LastEdge       *diagram.Edge          `json:"lastEdge,omitempty"`
	Machine        statemachine.DebugInfo `json:"machine"`
}

// New builds the orchestrator of one diagram. It follows entities to notice
// removed nodes; Destroy stops that.
func New(id string, entities *entity.Manager, scene diagram.Scene, opts ...Option) (*Orchestrator, error) {
	o := options{
		clock:          clock.New(),
		cooldownWindow: DefaultCooldownWindow,
		policy:         SourceCooldown,
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.config == nil {
		config, err := configs.Load(configs.Orchestrator)
		if err != nil {
			return nil, err
		}

		o.config = config
	}

	machineOpts := append([]statemachine.Option{statemachine.WithClock(o.clock)}, o.machineOpts...)

	machine, err := statemachine.NewManager(id, o.config, machineOpts...)
	if err != nil {
		return nil, err
	}

	orch := &Orchestrator{
		id:            id,
		entities:      entities,
		scene:         scene,
		machine:       machine,
		opts:          o,
		cooldownUntil: atomic.NewTime(time.Time{}),
	}

	orch.registerHandlers()
	orch.unsubscribe = entities.Subscribe(orch.onEntityChange)

	return orch, nil
}

// StartEdgeCreation begins drawing an edge from source. It is refused while
// a gesture is active, during the cooldown window, or when source cannot
// become an edge source (it must be selected).
func (o *Orchestrator) StartEdgeCreation(ctx context.Context, source, reason string) bool {
	if o.machine.CurrentState() != StateIdle {
		return false
	}

	inCooldown := o.InCooldown()

	started := o.machine.HandleEvent(ctx, EventNodeSelectedForEdge, map[string]any{
		DataSource:      source,
		DataReason:      reason,
		DataSourceReady: o.scene.Has(source) && o.entities.CanTransition(source, entity.ActionStartEdge),
		DataInCooldown:  inCooldown,
	})

	if !started && inCooldown {
		edgeOutcomeTotal.WithLabelValues(outcomeSuppressed).Inc()
		logger.Get(ctx).Debug("Edge creation suppressed by cooldown", "source", source, "reason", reason)
	}

	return started
}

// HoverNode makes id the candidate target, releasing the previous one.
func (o *Orchestrator) HoverNode(ctx context.Context, id string) bool {
	if o.machine.CurrentState() != StateEdgeCreation {
		return false
	}

	o.mu.Lock()
	source, prev := o.current.source, o.current.hover
	o.mu.Unlock()

	if id == "" || id == source || !o.entities.Has(id) {
		return false
	}

	if id == prev {
		return true
	}

	if prev != "" {
		o.entities.HandleEvent(ctx, prev, entity.EventEdgeTargetLeave, nil)
	}

	ok := o.entities.HandleEvent(ctx, id, entity.EventEdgeTargetHover, nil)

	o.mu.Lock()
	if ok {
		o.current.hover = id
	} else if o.current.hover == prev {
		o.current.hover = ""
	}
	o.mu.Unlock()

	return ok
}

// LeaveNode releases id if it is the candidate target.
func (o *Orchestrator) LeaveNode(ctx context.Context, id string) bool {
	o.mu.Lock()
	if id == "" || o.current.hover != id {
		o.mu.Unlock()

		return false
	}

	o.current.hover = ""
	o.mu.Unlock()

	return o.entities.HandleEvent(ctx, id, entity.EventEdgeTargetLeave, nil)
}

// Commit ends the gesture on target. A missing, unknown or self target is
// handled as a cancellation and reports false; so does calling it while idle.
func (o *Orchestrator) Commit(ctx context.Context, target string) bool {
	if o.machine.CurrentState() != StateEdgeCreation {
		return false
	}

	o.mu.Lock()
	source := o.current.source
	valid := target != "" && target != source && o.entities.Has(target) && o.scene.Has(target)

	if valid {
		o.current.target = target
	}
	o.mu.Unlock()

	applied := o.machine.HandleEvent(ctx, EventEdgeTargetClicked, map[string]any{
		DataSource:      source,
		DataTarget:      target,
		DataValidTarget: valid,
	})

	return applied && valid
}

// Cancel ends the gesture without an edge. It reports false while idle, so
// repeated cancels are harmless.
func (o *Orchestrator) Cancel(ctx context.Context, reason string) bool {
	return o.machine.HandleEvent(ctx, EventCancelEdgeCreation, map[string]any{DataReason: reason})
}

// HandleEvent delivers a technical event to the orchestrator machine. Use it
// for escapeKey, shiftKeyReleased and backgroundClicked.
func (o *Orchestrator) HandleEvent(ctx context.Context, event string, data map[string]any) bool {
	return o.machine.HandleEvent(ctx, event, data)
}

// NodeStartedDragging cancels the gesture when a node other than the source
// starts moving.
func (o *Orchestrator) NodeStartedDragging(ctx context.Context, id string) bool {
	o.mu.Lock()
	isSource := id == o.current.source
	o.mu.Unlock()

	return o.machine.HandleEvent(ctx, EventNodeStartedDragging, map[string]any{
		DataSource:       id,
		DataIsSourceNode: isSource,
	})
}

// PointerMoved follows the pointer during a gesture and reports whether the
// move cancelled it. Moving back over the source after having left it
// cancels; otherwise the preview edge follows the pointer.
func (o *Orchestrator) PointerMoved(ctx context.Context, p diagram.Point) bool {
	if o.machine.CurrentState() != StateEdgeCreation {
		return false
	}

	o.mu.Lock()
	source := o.current.source
	preview := o.current.preview
	left := o.current.leftSource
	o.mu.Unlock()

	if source == "" {
		return false
	}

	if o.scene.Contains(source, p) {
		if left {
			return o.machine.HandleEvent(ctx, EventPointerOverSource, map[string]any{DataSource: source})
		}
	} else if !left {
		o.mu.Lock()
		o.current.leftSource = true
		o.mu.Unlock()
	}

	if preview != nil {
		if center, radius, ok := o.scene.Center(source); ok {
			preview.Update(diagram.PreviewPath(center, radius, p))
		}
	}

	return false
}

// State returns the orchestrator state.
func (o *Orchestrator) State() string {
	return o.machine.CurrentState()
}

// Source returns the source node of the active gesture.
func (o *Orchestrator) Source() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.current.source, o.current.source != ""
}

// Hover returns the candidate target of the active gesture.
func (o *Orchestrator) Hover() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.current.hover, o.current.hover != ""
}

// InCooldown reports whether the window after the last cancel is still open.
func (o *Orchestrator) InCooldown() bool {
	return o.opts.clock.Now().Before(o.cooldownUntil.Load())
}

// LastEdge returns the most recently committed edge.
func (o *Orchestrator) LastEdge() (diagram.Edge, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.lastEdge == nil {
		return diagram.Edge{}, false
	}

	return *o.lastEdge, true
}

// Subscribe observes orchestrator state changes.
func (o *Orchestrator) Subscribe(listener statemachine.Listener) func() {
	return o.machine.Subscribe(listener)
}

// DebugInfo returns a snapshot for diagnostics.
func (o *Orchestrator) DebugInfo() DebugInfo {
	o.mu.Lock()
	info := DebugInfo{
		Source:         o.current.source,
		Hover:          o.current.hover,
		PreviewActive:  o.current.preview != nil,
		SourcePolicy:   o.opts.policy,
		CooldownWindow: o.opts.cooldownWindow,
	}

	if o.lastEdge != nil {
		edge := *o.lastEdge
		info.LastEdge = &edge
	}
	o.mu.Unlock()

	info.State = o.machine.CurrentState()
	info.InCooldown = o.InCooldown()
	info.Machine = o.machine.DebugInfo()

	return info
}

// Destroy cancels any active gesture and stops following the entities.
func (o *Orchestrator) Destroy(ctx context.Context) {
	o.Cancel(ctx, "destroy")

	if o.unsubscribe != nil {
		o.unsubscribe()
	}

	o.machine.Destroy()
}

func (o *Orchestrator) onEntityChange(ctx context.Context, change entity.Change) {
	if !change.Removed {
		return
	}

	o.mu.Lock()
	isSource := change.Node == o.current.source
	if change.Node == o.current.hover {
		o.current.hover = ""
	}
	o.mu.Unlock()

	if isSource {
		o.Cancel(ctx, "sourceRemoved")
	}
}
