package statemachine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amp-labs/diagramfsm/clock"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, states map[string]StateConfig) (*ActionExecutor, *clock.Fake, *flagTarget) {
	t.Helper()

	fake := clock.NewFake(time.Time{})
	target := newFlagTarget()
	exec := NewActionExecutor("exec-1", states,
		WithClock(fake),
		WithTarget(target),
		WithLogger(NewSlogLogger(slogt.New(t))),
	)
	t.Cleanup(exec.Destroy)

	return exec, fake, target
}

func TestExecuteTransitionOrder(t *testing.T) {
	t.Parallel()

	var order []string

	record := func(label string) ActionHandler {
		return func(_ context.Context, run ActionRun) error {
			order = append(order, label+":"+string(run.Phase)+":"+run.State)

			return nil
		}
	}

	exec, _, target := newTestExecutor(t, map[string]StateConfig{
		"a": {OnExit: Actions(Handler("exitA1"), Handler("exitA2"), RemoveFlag("in-a"))},
		"b": {OnEnter: Actions(Handler("enterB"), AddFlag("in-b"))},
	})
	exec.RegisterHandler("exitA1", record("exitA1"))
	exec.RegisterHandler("exitA2", record("exitA2"))
	exec.RegisterHandler("enterB", record("enterB"))

	exec.ExecuteTransition(context.Background(), StateChange{From: "a", To: "b", Action: "go"})

	assert.Equal(t, []string{"exitA1:exit:a", "exitA2:exit:a", "enterB:enter:b"}, order)
	assert.Equal(t, []string{"-in-a", "+in-b"}, target.log)
}

func TestExecuteTransitionFaultIsolation(t *testing.T) {
	t.Parallel()

	ran := false

	exec, _, target := newTestExecutor(t, map[string]StateConfig{
		"b": {OnEnter: Actions(
			Handler("fails"),
			Handler("panics"),
			Handler("notRegistered"),
			ActionSpec{Kind: ActionKindCallback, Name: "noSuchCallback"},
			Handler("highlight"),
			Handler("last"),
		)},
	})
	exec.RegisterHandler("fails", func(context.Context, ActionRun) error {
		return errors.New("handler failed") //nolint:err113 // test error
	})
	exec.RegisterHandler("panics", func(context.Context, ActionRun) error { panic("boom") })
	exec.RegisterHandler("last", func(context.Context, ActionRun) error {
		ran = true

		return nil
	})

	exec.ExecuteTransition(context.Background(), StateChange{From: "a", To: "b"})

	assert.True(t, ran)
	assert.Equal(t, []string{HighlightFlag}, target.active())
}

func TestMalformedListIsSkipped(t *testing.T) {
	t.Parallel()

	exec, _, target := newTestExecutor(t, map[string]StateConfig{
		"b": {OnEnter: ActionList{Malformed: true}},
	})

	exec.ExecuteTransition(context.Background(), StateChange{From: "a", To: "b"})
	assert.Empty(t, target.log)
}

func TestTimeoutFiresLogicalAction(t *testing.T) {
	t.Parallel()

	exec, fake, _ := newTestExecutor(t, map[string]StateConfig{
		"cooldown": {OnEnter: Actions(Timeout(300*time.Millisecond, "cooldownExpired"))},
	})

	var fired []string

	exec.OnTimeout(func(_ context.Context, action string, data map[string]any) {
		fired = append(fired, action)
		assert.Equal(t, map[string]any{"id": "n1"}, data)
	})

	exec.ExecuteTransition(context.Background(), StateChange{
		From: "edgeSource", To: "cooldown", Data: map[string]any{"id": "n1"},
	})
	require.True(t, exec.HasPendingTimeout())

	fake.Advance(299 * time.Millisecond)
	assert.Empty(t, fired)

	fake.Advance(time.Millisecond)
	assert.Equal(t, []string{"cooldownExpired"}, fired)
	assert.False(t, exec.HasPendingTimeout())
}

func TestTimeoutWithoutActionInvokesCallback(t *testing.T) {
	t.Parallel()

	exec, fake, _ := newTestExecutor(t, map[string]StateConfig{
		"waiting": {OnEnter: Actions(ActionSpec{Kind: ActionKindTimeout, DelayMs: 100})},
	})

	calls := 0

	exec.RegisterCallback(DefaultTimeoutCallback, func(context.Context, ActionRun) error {
		calls++

		return nil
	})

	exec.ExecuteTransition(context.Background(), StateChange{To: "waiting"})
	fake.Advance(time.Second)
	assert.Equal(t, 1, calls)
}

func TestSingleOutstandingTimeout(t *testing.T) {
	t.Parallel()

	exec, fake, _ := newTestExecutor(t, map[string]StateConfig{
		"a": {OnEnter: Actions(Timeout(100*time.Millisecond, "first"))},
		"b": {OnEnter: Actions(Timeout(100*time.Millisecond, "second"))},
		"c": {OnEnter: Actions(
			Timeout(50*time.Millisecond, "replaced"),
			Timeout(80*time.Millisecond, "kept"),
		)},
	})

	var fired []string

	exec.OnTimeout(func(_ context.Context, action string, _ map[string]any) {
		fired = append(fired, action)
	})

	ctx := context.Background()

	exec.ExecuteTransition(ctx, StateChange{To: "a"})
	// Leaving a clears its timer before b schedules its own.
	exec.ExecuteTransition(ctx, StateChange{From: "a", To: "b"})
	fake.Advance(time.Second)
	assert.Equal(t, []string{"second"}, fired)

	fired = nil

	exec.ExecuteTransition(ctx, StateChange{From: "b", To: "c"})
	assert.Equal(t, 1, fake.Pending())
	fake.Advance(time.Second)
	assert.Equal(t, []string{"kept"}, fired)
}

func TestClearTimeoutAndDestroy(t *testing.T) {
	t.Parallel()

	exec, fake, _ := newTestExecutor(t, map[string]StateConfig{
		"a": {OnEnter: Actions(Timeout(100*time.Millisecond, "tick")), OnExit: Actions(ClearTimeout())},
	})

	fired := 0

	exec.OnTimeout(func(context.Context, string, map[string]any) { fired++ })

	exec.ExecuteTransition(context.Background(), StateChange{To: "a"})
	exec.ClearTimeout()
	fake.Advance(time.Second)
	assert.Zero(t, fired)

	exec.ExecuteTransition(context.Background(), StateChange{To: "a"})
	exec.Destroy()
	fake.Advance(time.Second)
	assert.Zero(t, fired)
	assert.False(t, exec.HasHandler("highlight"))
}

func TestCallbackAndLogActions(t *testing.T) {
	t.Parallel()

	exec, _, _ := newTestExecutor(t, map[string]StateConfig{
		"b": {OnEnter: Actions(
			ActionSpec{Kind: ActionKindCallback, Name: "notify"},
			ActionSpec{Kind: ActionKindLog, Message: "entered b", Level: "debug"},
		)},
	})

	var got ActionRun

	exec.RegisterCallback("notify", func(_ context.Context, run ActionRun) error {
		got = run

		return nil
	})

	exec.ExecuteTransition(context.Background(), StateChange{
		MachineID: "exec-1", From: "a", To: "b", Action: "go", Data: map[string]any{"k": "v"},
	})

	assert.Equal(t, "exec-1", got.MachineID)
	assert.Equal(t, "go", got.Trigger)
	assert.Equal(t, PhaseEnter, got.Phase)
	assert.Equal(t, "v", got.Data["k"])
	assert.NotNil(t, got.Target)
}
