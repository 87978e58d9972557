package statemachine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/amp-labs/diagramfsm/clock"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMachine(t *testing.T, opts ...Option) *Machine {
	t.Helper()

	opts = append([]Option{WithLogger(NewSlogLogger(slogt.New(t)))}, opts...)

	m, err := NewMachine("m-1", loadToggleConfig(t).StateMachine, opts...)
	require.NoError(t, err)

	return m
}

func TestMachineTransition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTestMachine(t)

	var changes []StateChange

	m.Subscribe(func(_ context.Context, change StateChange) {
		// The new state is already visible to listeners.
		assert.Equal(t, change.To, m.CurrentState())
		changes = append(changes, change)
	})

	assert.Equal(t, "off", m.CurrentState())
	assert.Empty(t, m.PreviousState())

	require.True(t, m.Transition(ctx, "switchOn", map[string]any{"by": "test"}))
	assert.Equal(t, "on", m.CurrentState())
	assert.Equal(t, "off", m.PreviousState())

	require.Len(t, changes, 1)
	assert.Equal(t, "m-1", changes[0].MachineID)
	assert.Equal(t, "switchOn", changes[0].Action)
	assert.Equal(t, map[string]any{"by": "test"}, changes[0].Data)
	assert.False(t, changes[0].Forced)
}

func TestMachineIllegalTransition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTestMachine(t)

	notified := 0

	m.Subscribe(func(context.Context, StateChange) { notified++ })

	assert.False(t, m.Transition(ctx, "switchOff", nil))
	assert.False(t, m.Transition(ctx, "doesNotExist", nil))
	assert.Equal(t, "off", m.CurrentState())
	assert.Empty(t, m.PreviousState())
	assert.Empty(t, m.History())
	assert.Zero(t, notified)
}

func TestMachineTransitionFrom(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTestMachine(t)

	assert.False(t, m.TransitionFrom(ctx, "on", "switchOn", nil), "machine is off")
	assert.Equal(t, "off", m.CurrentState())
	assert.Empty(t, m.History())

	require.True(t, m.TransitionFrom(ctx, "off", "switchOn", nil))
	assert.Equal(t, "on", m.CurrentState())

	assert.False(t, m.TransitionFrom(ctx, "on", "switchOn", nil), "not in the table")
}

func TestMachineListenerPanicDoesNotRollBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTestMachine(t)

	second := false

	m.Subscribe(func(context.Context, StateChange) { panic("boom") })
	m.Subscribe(func(context.Context, StateChange) { second = true })

	require.True(t, m.Transition(ctx, "switchOn", nil))
	assert.Equal(t, "on", m.CurrentState())
	assert.True(t, second)
}

func TestMachineForceStateAndReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTestMachine(t)

	var forced []StateChange

	m.Subscribe(func(_ context.Context, change StateChange) { forced = append(forced, change) })

	assert.False(t, m.ForceState(ctx, "nowhere", "bad"))

	require.True(t, m.ForceState(ctx, "broken", "test"))
	assert.Equal(t, "broken", m.CurrentState())
	assert.Empty(t, m.AvailableActions())

	require.True(t, m.Reset(ctx))
	assert.Equal(t, "off", m.CurrentState())
	assert.Equal(t, "broken", m.PreviousState())

	require.Len(t, forced, 2)
	assert.True(t, forced[0].Forced)
	assert.Equal(t, "FORCE_SET:test", forced[0].Action)
	assert.Equal(t, "FORCE_SET:reset", forced[1].Action)

	history := m.History()
	require.Len(t, history, 2)
	assert.Equal(t, "FORCE_SET:test", history[0].Action)
}

func TestMachineQueries(t *testing.T) {
	t.Parallel()

	m := newTestMachine(t)

	assert.True(t, m.IsActionAllowed("switchOn"))
	assert.False(t, m.IsActionAllowed("switchOff"))
	assert.Equal(t, []string{"smash", "switchOn"}, m.AvailableActions())

	to, ok := m.TargetState("smash")
	require.True(t, ok)
	assert.Equal(t, "broken", to)

	_, ok = m.TargetState("switchOff")
	assert.False(t, ok)

	assert.True(t, m.IsValidState("on"))
	assert.False(t, m.IsValidState("dimmed"))
	assert.Equal(t, "lamp is lit", m.StateDescription("on"))
	assert.Equal(t, "off", m.InitialState())
}

func TestMachineHistoryBounded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := clock.NewFake(time.Time{})
	m := newTestMachine(t, WithHistoryLimit(3), WithClock(fake))

	for i := range 5 {
		fake.Advance(time.Second)
		require.True(t, m.Transition(ctx, "switchOn", map[string]any{"i": i}))
		require.True(t, m.Transition(ctx, "switchOff", nil))
	}

	history := m.History()
	require.Len(t, history, 3)
	assert.Equal(t, "switchOff", history[0].Action)
	assert.Equal(t, map[string]any{"i": 4}, history[1].Data)
	assert.Equal(t, fake.Now(), history[2].At)
}

func TestMachineDefaultHistoryLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTestMachine(t)

	for range 40 {
		m.Transition(ctx, "switchOn", nil)
		m.Transition(ctx, "switchOff", nil)
	}

	assert.Len(t, m.History(), DefaultHistoryLimit)
}

func TestMachineUnsubscribeAndDestroy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTestMachine(t)

	var calls []string

	unsubscribe := m.Subscribe(func(context.Context, StateChange) { calls = append(calls, "a") })
	m.Subscribe(func(context.Context, StateChange) { calls = append(calls, "b") })

	m.Transition(ctx, "switchOn", nil)
	unsubscribe()
	unsubscribe()
	m.Transition(ctx, "switchOff", nil)

	assert.Equal(t, []string{"a", "b", "b"}, calls)

	m.Destroy()
	assert.False(t, m.Transition(ctx, "switchOn", nil))
	assert.Equal(t, []string{"a", "b", "b"}, calls)
}

func TestNewMachineRejectsInvalidDefinition(t *testing.T) {
	t.Parallel()

	_, err := NewMachine("bad", Definition{
		InitialState: "a",
		States:       map[string]StateConfig{"a": {}},
		Transitions:  map[string]map[string]string{"a": {"go": "b"}},
	})
	require.ErrorIs(t, err, ErrTransitionToNotFound)
}

func ExampleMachine() {
	def := Definition{
		InitialState: "idle",
		States:       map[string]StateConfig{"idle": {}, "busy": {}},
		Transitions: map[string]map[string]string{
			"idle": {"start": "busy"},
			"busy": {"stop": "idle"},
		},
	}

	m, _ := NewMachine("worker", def, WithLogger(NopLogger{}))

	fmt.Println(m.Transition(context.Background(), "stop", nil))
	fmt.Println(m.Transition(context.Background(), "start", nil), m.CurrentState())
	// Output:
	// false
	// true busy
}
