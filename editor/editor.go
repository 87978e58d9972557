// Package editor is the interaction context of one diagram. It owns the node
// machines, the edge orchestrator and the selection, and turns raw pointer
// and keyboard input into their events.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/amp-labs/diagramfsm/clock"
	"github.com/amp-labs/diagramfsm/diagram"
	"github.com/amp-labs/diagramfsm/entity"
	"github.com/amp-labs/diagramfsm/logger"
	"github.com/amp-labs/diagramfsm/orchestrator"
	"github.com/amp-labs/diagramfsm/settings"
	"github.com/amp-labs/diagramfsm/statemachine"
	"github.com/google/uuid"
)

// ErrDestroyed is returned by AddNode after Destroy.
var ErrDestroyed = errors.New("editor destroyed")

// Surface is the scene an editor works on: every collaborator of the
// interaction core plus hit testing and node layout.
type Surface interface {
	diagram.Scene
	NodeAt(p diagram.Point) (string, bool)
	AddNode(id string, center diagram.Point, radius float64) error
	RemoveNode(id string) bool
	MoveNode(id string, center diagram.Point) error
}

// Option configures an Editor.
type Option func(*options)

type options struct {
	clock       clock.Clock
	settings    settings.Editor
	session     string
	machineOpts []statemachine.Option
}

// WithClock sets the clock of every machine and of click classification.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithSettings replaces settings.DefaultEditor.
func WithSettings(s settings.Editor) Option {
	return func(o *options) {
		o.settings = s
	}
}

// WithSessionID fixes the session id instead of generating one.
func WithSessionID(id string) Option {
	return func(o *options) {
		if id != "" {
			o.session = id
		}
	}
}

// WithMachineOptions passes options to every machine the editor builds.
func WithMachineOptions(opts ...statemachine.Option) Option {
	return func(o *options) {
		o.machineOpts = append(o.machineOpts, opts...)
	}
}

type press struct {
	node     string
	press    entity.Press
	origin   diagram.Point
	scale    bool
	dragging bool
}

// Editor routes input for one diagram. Input methods are serialized.
type Editor struct {
	session    string
	surface    Surface
	clock      clock.Clock
	thresholds entity.Thresholds

	entities  *entity.Manager
	orch      *orchestrator.Orchestrator
	selection *entity.SelectionTracker

	mu        sync.Mutex
	shift     bool
	pointer   diagram.Point
	pressed   *press
	destroyed bool
}

// New builds an editor over surface. Nodes already on the surface are not
// registered; add them through AddNode.
func New(surface Surface, opts ...Option) (*Editor, error) {
	o := options{
		clock:    clock.New(),
		settings: settings.DefaultEditor(),
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.session == "" {
		o.session = uuid.NewString()
	}

	entities, err := entity.NewManager(surface,
		entity.WithClock(o.clock),
		entity.WithHistoryLimit(o.settings.HistoryLimit),
		entity.WithMachineOptions(o.machineOpts...),
	)
	if err != nil {
		return nil, fmt.Errorf("entity manager: %w", err)
	}

	orch, err := orchestrator.New(o.session, entities, surface,
		orchestrator.WithClock(o.clock),
		orchestrator.WithCooldownWindow(o.settings.CooldownWindow),
		orchestrator.WithSourceAfterCommit(orchestrator.SourcePolicy(o.settings.SourceAfterCommit)),
		orchestrator.WithMachineOptions(o.machineOpts...),
	)
	if err != nil {
		entities.Destroy()

		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	return &Editor{
		session: o.session,
		surface: surface,
		clock:   o.clock,
		thresholds: entity.Thresholds{
			ClickMaxDistance: o.settings.ClickMaxDistance,
			ClickMaxDuration: o.settings.ClickMaxDuration,
		},
		entities:  entities,
		orch:      orch,
		selection: entity.NewSelectionTracker(entities),
	}, nil
}

// Session returns the editor's session id.
func (e *Editor) Session() string {
	return e.session
}

// Entities returns the node machines.
func (e *Editor) Entities() *entity.Manager {
	return e.entities
}

// Orchestrator returns the edge creation protocol.
func (e *Editor) Orchestrator() *orchestrator.Orchestrator {
	return e.orch
}

// Selected returns the selected node.
func (e *Editor) Selected() (string, bool) {
	return e.selection.Selected()
}

func (e *Editor) ctx(ctx context.Context) context.Context {
	return logger.WithSession(ctx, e.session)
}

// AddNode places a node on the surface and registers its machine.
func (e *Editor) AddNode(ctx context.Context, id string, center diagram.Point, radius float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return ErrDestroyed
	}

	if err := e.surface.AddNode(id, center, radius); err != nil {
		return err
	}

	if err := e.entities.Register(id); err != nil {
		e.surface.RemoveNode(id)

		return err
	}

	logger.Get(e.ctx(ctx)).Debug("Node added", "node", id)

	return nil
}

// RemoveNode unregisters the node and takes it off the surface. Removing the
// source of an edge being drawn cancels it; removing the candidate target
// releases it.
func (e *Editor) RemoveNode(ctx context.Context, id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx = e.ctx(ctx)

	removed := e.entities.Unregister(ctx, id)
	if e.surface.RemoveNode(id) {
		removed = true
	}

	if e.pressed != nil && e.pressed.node == id {
		e.pressed = nil
	}

	if removed {
		logger.Get(ctx).Debug("Node removed", "node", id)
	}

	return removed
}

// ShiftDown starts an edge from the selected node unless the pointer is
// still over it or a node is being dragged.
func (e *Editor) ShiftDown(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.shift = true
	e.maybeStartEdgeLocked(e.ctx(ctx), "shiftKey")
}

// ShiftUp releases the modifier, cancelling any edge being drawn.
func (e *Editor) ShiftUp(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.shift = false
	e.orch.HandleEvent(e.ctx(ctx), orchestrator.EventShiftKeyReleased, nil)
}

// Escape cancels an edge being drawn. With no edge in progress it clears the
// selection and ends node cooldowns.
func (e *Editor) Escape(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx = e.ctx(ctx)

	if e.orch.HandleEvent(ctx, orchestrator.EventEscapeKey, nil) {
		return
	}

	e.entities.Broadcast(ctx, entity.EventEscapeKey, nil)
}

// BackgroundClick cancels an edge being drawn and clears the selection.
func (e *Editor) BackgroundClick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx = e.ctx(ctx)

	e.orch.HandleEvent(ctx, orchestrator.EventBackgroundClicked, nil)
	e.entities.Broadcast(ctx, entity.EventBackgroundClicked, nil)
}

// PointerMove tracks the pointer: it drags or scales a pressed node once the
// move stops being a click, starts an edge when the pointer leaves the
// selected node with shift held, and feeds the edge being drawn.
func (e *Editor) PointerMove(ctx context.Context, p diagram.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx = e.ctx(ctx)
	e.pointer = p

	if e.pressed != nil {
		e.dragLocked(ctx, p)
	}

	if e.orch.State() == orchestrator.StateIdle {
		e.maybeStartEdgeLocked(ctx, "pointerLeftSource")
	}

	if e.orch.State() != orchestrator.StateEdgeCreation {
		return
	}

	if e.orch.PointerMoved(ctx, p) {
		return
	}

	source, _ := e.orch.Source()

	if id, ok := e.surface.NodeAt(p); ok && id != source {
		e.orch.HoverNode(ctx, id)

		return
	}

	if hover, ok := e.orch.Hover(); ok {
		e.orch.LeaveNode(ctx, hover)
	}
}

// NodePress records a pointer press on node id at p. While an edge is being
// drawn a press on the source never starts a drag.
func (e *Editor) NodePress(ctx context.Context, id string, p diagram.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pointer = p

	if !e.entities.Has(id) {
		return
	}

	state, _ := e.entities.State(id)

	e.pressed = &press{
		node:  id,
		press: entity.Press{At: e.clock.Now(), Pos: p},
		scale: e.shift && state == entity.StateSelected,
	}

	if center, _, ok := e.surface.Center(id); ok {
		e.pressed.origin = center
	}

	logger.Get(e.ctx(ctx)).Debug("Node pressed", "node", id, "scale", e.pressed.scale)
}

// Release ends the current press at p. A click on a node during edge
// creation commits the edge there; otherwise the node machine classifies it.
func (e *Editor) Release(ctx context.Context, p diagram.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx = e.ctx(ctx)
	e.pointer = p

	pr := e.pressed
	e.pressed = nil

	if pr == nil {
		return
	}

	release := entity.ClassifyRelease(pr.press, e.clock.Now(), p, e.thresholds)

	if e.orch.State() == orchestrator.StateEdgeCreation {
		if release.IsClick() {
			e.orch.Commit(ctx, pr.node)
		}

		return
	}

	if pr.dragging {
		e.entities.HandleEvent(ctx, pr.node, entity.EventMouseUp, release.EventData())

		return
	}

	previous, hadSelection := e.selection.Selected()

	data := release.EventData()
	data[entity.DataInEdgeCreationMode] = false

	if !e.entities.HandleEvent(ctx, pr.node, entity.EventMouseUp, data) {
		return
	}

	state, _ := e.entities.State(pr.node)
	if state != entity.StateSelected {
		return
	}

	if hadSelection && previous != pr.node {
		e.entities.HandleEvent(ctx, previous, entity.EventDeselect, nil)
	}

	if e.shift {
		e.orch.StartEdgeCreation(ctx, pr.node, "shiftSelect")
	}
}

// dragLocked turns the press into a drag (or a scale with shift on a
// selected node) once the pointer has moved past the click distance.
// Dragging any node but the source cancels an edge being drawn first; the
// source itself never drags during edge creation.
func (e *Editor) dragLocked(ctx context.Context, p diagram.Point) {
	pr := e.pressed

	if !pr.dragging {
		if pr.press.Pos.Distance(p) < e.thresholds.ClickMaxDistance {
			return
		}

		if source, ok := e.orch.Source(); ok && source == pr.node {
			return
		}

		e.orch.NodeStartedDragging(ctx, pr.node)

		data := map[string]any{entity.DataScaleHandle: pr.scale}
		if !e.entities.HandleEvent(ctx, pr.node, entity.EventDragStart, data) {
			return
		}

		pr.dragging = true
	}

	if pr.scale {
		return
	}

	center := diagram.Point{
		X: pr.origin.X + p.X - pr.press.Pos.X,
		Y: pr.origin.Y + p.Y - pr.press.Pos.Y,
	}

	if err := e.surface.MoveNode(pr.node, center); err != nil {
		logger.Get(ctx).Warn("Failed to move node", "node", pr.node, "error", err)
	}
}

func (e *Editor) maybeStartEdgeLocked(ctx context.Context, reason string) {
	if !e.shift || e.destroyed || (e.pressed != nil && e.pressed.dragging) {
		return
	}

	selected, ok := e.selection.Selected()
	if !ok || e.surface.Contains(selected, e.pointer) {
		return
	}

	if e.orch.StartEdgeCreation(ctx, selected, reason) {
		e.orch.PointerMoved(ctx, e.pointer)
	}
}

// Snapshot is the observable interaction state of an editor.
type Snapshot struct {
	Session      string            `json:"session"`
	Orchestrator string            `json:"orchestrator"`
	Source       string            `json:"source,omitempty"`
	Hover        string            `json:"hover,omitempty"`
	Selected     string            `json:"selected,omitempty"`
	InCooldown   bool              `json:"inCooldown"`
	Shift        bool              `json:"shift"`
	Nodes        map[string]string `json:"nodes"`
}

// Snapshot returns the current state of every machine.
func (e *Editor) Snapshot() Snapshot {
	e.mu.Lock()
	shift := e.shift
	e.mu.Unlock()

	snap := Snapshot{
		Session:      e.session,
		Orchestrator: e.orch.State(),
		InCooldown:   e.orch.InCooldown(),
		Shift:        shift,
		Nodes:        make(map[string]string),
	}

	snap.Source, _ = e.orch.Source()
	snap.Hover, _ = e.orch.Hover()
	snap.Selected, _ = e.selection.Selected()

	for _, id := range e.entities.Nodes() {
		if state, ok := e.entities.State(id); ok {
			snap.Nodes[id] = state
		}
	}

	return snap
}

// Destroy cancels any gesture and releases every machine.
func (e *Editor) Destroy(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return
	}

	e.destroyed = true

	ctx = e.ctx(ctx)

	e.orch.Destroy(ctx)
	e.selection.Close()
	e.entities.Destroy()

	logger.Get(ctx).Debug("Editor destroyed")
}
