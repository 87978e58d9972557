// Package testing provides testing utilities for state machine managers.
//
//nolint:varnamelen // Short names idiomatic
package testing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/amp-labs/diagramfsm/clock"
	"github.com/amp-labs/diagramfsm/statemachine"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
)

var (
	// ErrStateNotVisited indicates a state never appeared in the recorded trace.
	ErrStateNotVisited = errors.New("state was not visited")
	// ErrTransitionNotTaken indicates a transition never appeared in the recorded trace.
	ErrTransitionNotTaken = errors.New("transition was not taken")
)

// Recorder captures the StateChange stream of one or more machines.
type Recorder struct {
	mu      sync.Mutex
	changes []statemachine.StateChange
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Listener returns a listener appending to the recorder.
func (r *Recorder) Listener() statemachine.Listener {
	return func(_ context.Context, change statemachine.StateChange) {
		r.mu.Lock()
		defer r.mu.Unlock()

		r.changes = append(r.changes, change)
	}
}

// Changes returns a copy of the recorded changes.
func (r *Recorder) Changes() []statemachine.StateChange {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]statemachine.StateChange(nil), r.changes...)
}

// ChangesFor returns the recorded changes of one machine.
func (r *Recorder) ChangesFor(machineID string) []statemachine.StateChange {
	var out []statemachine.StateChange

	for _, change := range r.Changes() {
		if change.MachineID == machineID {
			out = append(out, change)
		}
	}

	return out
}

// Path returns the visited states of machineID, starting with the first
// recorded From.
func (r *Recorder) Path(machineID string) []string {
	changes := r.ChangesFor(machineID)
	if len(changes) == 0 {
		return nil
	}

	path := []string{changes[0].From}
	for _, change := range changes {
		path = append(path, change.To)
	}

	return path
}

// Actions returns the actions of machineID in order.
func (r *Recorder) Actions(machineID string) []string {
	var out []string

	for _, change := range r.ChangesFor(machineID) {
		out = append(out, change.Action)
	}

	return out
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.changes = nil
}

// TestManager wraps a Manager built for tests: fake clock, recording target,
// recorder subscription and a logger writing to t.
type TestManager struct {
	*statemachine.Manager

	t        *testing.T
	Clock    *clock.Fake
	Target   *RecordingTarget
	Recorder *Recorder
}

// NewTestManager builds a manager for config. Extra options are applied
// after the test defaults.
func NewTestManager(t *testing.T, id string, config *statemachine.Config, opts ...statemachine.Option) *TestManager {
	t.Helper()

	fake := clock.NewFake(time.Time{})
	target := NewRecordingTarget()
	recorder := NewRecorder()

	defaults := []statemachine.Option{
		statemachine.WithClock(fake),
		statemachine.WithTarget(target),
		statemachine.WithLogger(statemachine.NewSlogLogger(slogt.New(t))),
	}

	mgr, err := statemachine.NewManager(id, config, append(defaults, opts...)...)
	require.NoError(t, err, "failed to create manager")
	t.Cleanup(mgr.Destroy)

	mgr.Subscribe(recorder.Listener())

	return &TestManager{
		Manager:  mgr,
		t:        t,
		Clock:    fake,
		Target:   target,
		Recorder: recorder,
	}
}

// AssertState checks the current state.
func (tm *TestManager) AssertState(expected string) {
	tm.t.Helper()

	require.Equal(tm.t, expected, tm.CurrentState(), "current state of %s", tm.ID())
}

// AssertStateVisited checks that a transition entered state.
func (tm *TestManager) AssertStateVisited(state string) {
	tm.t.Helper()

	ok, err := StateWasVisited(state).Match(tm.Recorder, tm.ID())
	require.NoError(tm.t, err)
	require.True(tm.t, ok, "state '%s' should have been visited", state)
}

// AssertTransitionTaken checks that from -> to occurred.
func (tm *TestManager) AssertTransitionTaken(from, to string) {
	tm.t.Helper()

	ok, err := TransitionWasTaken(from, to).Match(tm.Recorder, tm.ID())
	require.NoError(tm.t, err)
	require.True(tm.t, ok, "transition from '%s' to '%s' should have been taken", from, to)
}

// AssertFlags checks the target's active flags.
func (tm *TestManager) AssertFlags(expected ...string) {
	tm.t.Helper()

	if len(expected) == 0 {
		require.Empty(tm.t, tm.Target.Flags(), "flags of %s", tm.ID())

		return
	}

	require.Equal(tm.t, expected, tm.Target.Flags(), "flags of %s", tm.ID())
}

// Fire sends event and requires the outcome.
func (tm *TestManager) Fire(event string, data map[string]any, wantApplied bool) {
	tm.t.Helper()

	applied := tm.HandleEvent(context.Background(), event, data)
	require.Equal(tm.t, wantApplied, applied,
		fmt.Sprintf("event %s in state %s", event, tm.CurrentState()))
}
