package entity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/amp-labs/diagramfsm/clock"
	"github.com/amp-labs/diagramfsm/configs"
	"github.com/amp-labs/diagramfsm/diagram"
	"github.com/amp-labs/diagramfsm/statemachine"
	"github.com/amp-labs/diagramfsm/statemachine/validator"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changeLog struct {
	mu      sync.Mutex
	changes []Change
}

func (l *changeLog) record(_ context.Context, change Change) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.changes = append(l.changes, change)
}

func (l *changeLog) all() []Change {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]Change(nil), l.changes...)
}

type fixture struct {
	mgr   *Manager
	scene *diagram.MemoryScene
	clock *clock.Fake
	log   *changeLog
}

func newFixture(t *testing.T, nodes ...string) *fixture {
	t.Helper()

	f := &fixture{
		scene: diagram.NewMemoryScene(),
		clock: clock.NewFake(time.Time{}),
		log:   &changeLog{},
	}

	mgr, err := NewManager(f.scene,
		WithClock(f.clock),
		WithMachineOptions(statemachine.WithLogger(statemachine.NewSlogLogger(slogt.New(t)))),
	)
	require.NoError(t, err)
	t.Cleanup(mgr.Destroy)

	f.mgr = mgr
	mgr.Subscribe(f.log.record)

	for _, id := range nodes {
		require.NoError(t, mgr.Register(id))
	}

	return f
}

func (f *fixture) state(t *testing.T, id string) string {
	t.Helper()

	state, ok := f.mgr.State(id)
	require.True(t, ok, "node %s is not registered", id)

	return state
}

func click() map[string]any {
	return map[string]any{DataIsClick: true}
}

func TestEntityConfigIsClean(t *testing.T) {
	t.Parallel()

	rules := append(validator.DefaultRules(), validator.KnownHandlers(HandlerNames()...))
	result := validator.ValidateWithRulesStrict(configs.MustLoad(configs.Entity), rules)
	assert.True(t, result.Valid, result.String())
}

func TestSelectDragAndDeselect(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "n1")
	ctx := context.Background()

	require.True(t, f.mgr.HandleEvent(ctx, "n1", EventMouseUp, click()))
	assert.Equal(t, StateSelected, f.state(t, "n1"))
	assert.Equal(t, []string{FlagSelected}, f.scene.Flags("n1"))

	require.True(t, f.mgr.HandleEvent(ctx, "n1", EventDragStart, nil))
	assert.Equal(t, StateDragging, f.state(t, "n1"))
	assert.Equal(t, []string{FlagDragging}, f.scene.Flags("n1"))

	require.True(t, f.mgr.HandleEvent(ctx, "n1", EventMouseUp, map[string]any{DataIsClick: false}))
	assert.Equal(t, StateSelected, f.state(t, "n1"))

	require.True(t, f.mgr.HandleEvent(ctx, "n1", EventMouseUp, click()))
	assert.Equal(t, StateIdle, f.state(t, "n1"))
	assert.Empty(t, f.scene.Flags("n1"))

	var path []string
	for _, change := range f.log.all() {
		path = append(path, change.To)
	}

	assert.Equal(t, []string{StateSelected, StateDragging, StateSelected, StateIdle}, path)
}

func TestScaleHandleDrag(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "n1")
	ctx := context.Background()

	require.True(t, f.mgr.HandleEvent(ctx, "n1", EventMouseUp, click()))
	require.True(t, f.mgr.HandleEvent(ctx, "n1", EventDragStart, map[string]any{DataScaleHandle: true}))
	assert.Equal(t, StateScaling, f.state(t, "n1"))
	assert.True(t, f.scene.HasFlag("n1", FlagScaling))

	require.True(t, f.mgr.HandleEvent(ctx, "n1", EventMouseUp, nil))
	assert.Equal(t, StateSelected, f.state(t, "n1"))
	assert.False(t, f.scene.HasFlag("n1", FlagScaling))
}

func TestIllegalTransitionLeavesStateAndNotifiesNobody(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "n1")
	ctx := context.Background()

	assert.False(t, f.mgr.Transition(ctx, "n1", "endDrag", nil))
	assert.False(t, f.mgr.HandleEvent(ctx, "n1", EventEdgeCancelled, nil))
	assert.False(t, f.mgr.HandleEvent(ctx, "ghost", EventMouseUp, click()))
	assert.False(t, f.mgr.CanTransition("n1", "endDrag"))
	assert.True(t, f.mgr.CanTransition("n1", "select"))

	assert.Equal(t, StateIdle, f.state(t, "n1"))
	assert.Empty(t, f.log.all())
}

func TestSelectSuppressedDuringEdgeCreation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "n1")

	assert.False(t, f.mgr.HandleEvent(context.Background(), "n1", EventMouseUp, map[string]any{
		DataIsClick:            true,
		DataInEdgeCreationMode: true,
	}))
	assert.Equal(t, StateIdle, f.state(t, "n1"))
}

func TestEdgeSourceCancelAndComplete(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "n1")
	ctx := context.Background()

	require.True(t, f.mgr.HandleEvent(ctx, "n1", EventMouseUp, click()))
	require.True(t, f.mgr.HandleEvent(ctx, "n1", EventEdgeCreationStarted, nil))
	assert.Equal(t, StateEdgeSource, f.state(t, "n1"))
	assert.Equal(t, []string{FlagEdgeSource}, f.scene.Flags("n1"))

	require.True(t, f.mgr.HandleEvent(ctx, "n1", EventEdgeCancelled, nil))
	assert.Equal(t, StateSelected, f.state(t, "n1"))
	assert.Equal(t, []string{FlagSelected}, f.scene.Flags("n1"))

	require.True(t, f.mgr.HandleEvent(ctx, "n1", EventEdgeCreationStarted, nil))
	require.True(t, f.mgr.HandleEvent(ctx, "n1", EventEdgeCompleted, nil))
	assert.Equal(t, StateCooldown, f.state(t, "n1"))
	assert.Equal(t, []string{FlagCooldown}, f.scene.Flags("n1"))

	machine, ok := f.mgr.Machine("n1")
	require.True(t, ok)
	assert.True(t, machine.HasPendingTimeout())

	f.clock.Advance(299 * time.Millisecond)
	assert.Equal(t, StateCooldown, f.state(t, "n1"))

	f.clock.Advance(time.Millisecond)
	assert.Equal(t, StateIdle, f.state(t, "n1"))
	assert.Empty(t, f.scene.Flags("n1"))
	assert.False(t, machine.HasPendingTimeout())
}

func TestEdgeSourceKeepsSelectionByPolicy(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "n1")
	ctx := context.Background()

	require.True(t, f.mgr.HandleEvent(ctx, "n1", EventMouseUp, click()))
	require.True(t, f.mgr.HandleEvent(ctx, "n1", EventEdgeCreationStarted, nil))
	require.True(t, f.mgr.HandleEvent(ctx, "n1", EventEdgeCompleted, map[string]any{DataSourcePolicy: "selected"}))

	assert.Equal(t, StateSelected, f.state(t, "n1"))
	assert.Equal(t, 0, f.clock.Pending())
}

func TestEdgeTargetHoverAndLeave(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "n2")
	ctx := context.Background()

	require.True(t, f.mgr.HandleEvent(ctx, "n2", EventEdgeTargetHover, nil))
	assert.Equal(t, StateEdgeTarget, f.state(t, "n2"))
	assert.True(t, f.scene.HasFlag("n2", FlagEdgeTarget))

	require.True(t, f.mgr.HandleEvent(ctx, "n2", EventEdgeTargetLeave, nil))
	assert.Equal(t, StateIdle, f.state(t, "n2"))
	assert.False(t, f.scene.HasFlag("n2", FlagEdgeTarget))

	require.True(t, f.mgr.HandleEvent(ctx, "n2", EventEdgeTargetHover, nil))
	require.True(t, f.mgr.HandleEvent(ctx, "n2", EventEdgeCompleted, nil))
	assert.Equal(t, StateCooldown, f.state(t, "n2"))

	require.True(t, f.mgr.HandleEvent(ctx, "n2", EventEscapeKey, nil))
	assert.Equal(t, StateIdle, f.state(t, "n2"))
	assert.Equal(t, 0, f.clock.Pending())
}

func TestUnregisterPublishesRemoval(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "n1")
	ctx := context.Background()

	require.ErrorIs(t, f.mgr.Register("n1"), ErrAlreadyRegistered)
	require.True(t, f.mgr.HandleEvent(ctx, "n1", EventMouseUp, click()))

	require.True(t, f.mgr.Unregister(ctx, "n1"))
	assert.False(t, f.mgr.Unregister(ctx, "n1"))
	assert.False(t, f.mgr.Has("n1"))

	changes := f.log.all()
	require.Len(t, changes, 2)
	assert.Equal(t, Change{Node: "n1", From: StateSelected, Removed: true, At: f.clock.Now()}, changes[1])
}

func TestBroadcastResetAndOrdering(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "n10", "n2", "n1")
	ctx := context.Background()

	assert.Equal(t, []string{"n1", "n2", "n10"}, f.mgr.Nodes())

	require.True(t, f.mgr.HandleEvent(ctx, "n10", EventMouseUp, click()))
	require.True(t, f.mgr.HandleEvent(ctx, "n2", EventEdgeTargetHover, nil))

	assert.Equal(t, []string{"n10"}, f.mgr.NodesIn(StateSelected))
	assert.Equal(t, 1, f.mgr.Broadcast(ctx, EventEscapeKey, nil))
	assert.Equal(t, []string{"n1", "n10"}, f.mgr.NodesIn(StateIdle))

	f.mgr.ResetAll(ctx)
	assert.Equal(t, []string{"n1", "n2", "n10"}, f.mgr.NodesIn(StateIdle))

	last := f.log.all()[len(f.log.all())-1]
	assert.Equal(t, "n2", last.Node)
	assert.True(t, last.Forced)

	info := f.mgr.DebugInfo()
	require.Len(t, info, 3)
	assert.Equal(t, "n10", info[2].ID)
	assert.Equal(t, "entity", info[2].Machine)
}

func TestListenersMayReenterAndPanic(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "n1", "n2")
	ctx := context.Background()

	f.mgr.Subscribe(func(ctx context.Context, change Change) {
		if change.Node == "n1" && change.To == StateSelected {
			f.mgr.HandleEvent(ctx, "n2", EventEdgeTargetHover, nil)
		}
	})
	f.mgr.Subscribe(func(context.Context, Change) {
		panic("listener bug")
	})

	require.True(t, f.mgr.HandleEvent(ctx, "n1", EventMouseUp, click()))
	assert.Equal(t, StateSelected, f.state(t, "n1"))
	assert.Equal(t, StateEdgeTarget, f.state(t, "n2"))
}

func TestDestroy(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "n1")
	f.mgr.Destroy()

	assert.Empty(t, f.mgr.Nodes())
	require.ErrorIs(t, f.mgr.Register("n2"), ErrManagerDestroyed)
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewManager(nil, WithConfig(&statemachine.Config{Name: "broken"}))

	var cfgErr *statemachine.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
