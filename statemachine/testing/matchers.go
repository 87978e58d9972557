package testing

import (
	"fmt"
	"strings"
)

// Matcher checks a recorded trace of one machine.
type Matcher interface {
	Match(recorder *Recorder, machineID string) (bool, error)
	Description() string
}

// StateWasVisited matches when some transition entered name.
func StateWasVisited(name string) Matcher {
	return &stateVisitedMatcher{name: name}
}

type stateVisitedMatcher struct {
	name string
}

func (m *stateVisitedMatcher) Match(recorder *Recorder, machineID string) (bool, error) {
	for _, change := range recorder.ChangesFor(machineID) {
		if change.To == m.name {
			return true, nil
		}
	}

	return false, nil
}

func (m *stateVisitedMatcher) Description() string {
	return fmt.Sprintf("state '%s' was visited", m.name)
}

// TransitionWasTaken matches when a change went from -> to.
func TransitionWasTaken(from, to string) Matcher {
	return &transitionTakenMatcher{from: from, to: to}
}

type transitionTakenMatcher struct {
	from string
	to   string
}

func (m *transitionTakenMatcher) Match(recorder *Recorder, machineID string) (bool, error) {
	for _, change := range recorder.ChangesFor(machineID) {
		if change.From == m.from && change.To == m.to {
			return true, nil
		}
	}

	return false, nil
}

func (m *transitionTakenMatcher) Description() string {
	return fmt.Sprintf("transition from '%s' to '%s' was taken", m.from, m.to)
}

// PathEquals matches when the visited states are exactly path.
func PathEquals(path ...string) Matcher {
	return &pathMatcher{path: path}
}

type pathMatcher struct {
	path []string
}

func (m *pathMatcher) Match(recorder *Recorder, machineID string) (bool, error) {
	got := recorder.Path(machineID)
	if len(got) != len(m.path) {
		return false, fmt.Errorf("%w: got path %v", ErrTransitionNotTaken, got)
	}

	for i := range got {
		if got[i] != m.path[i] {
			return false, fmt.Errorf("%w: got path %v", ErrTransitionNotTaken, got)
		}
	}

	return true, nil
}

func (m *pathMatcher) Description() string {
	return "path is " + strings.Join(m.path, " -> ")
}

// NoForcedTransitions matches when every change went through the table.
func NoForcedTransitions() Matcher {
	return &noForcedMatcher{}
}

type noForcedMatcher struct{}

func (m *noForcedMatcher) Match(recorder *Recorder, machineID string) (bool, error) {
	for _, change := range recorder.ChangesFor(machineID) {
		if change.Forced {
			return false, nil
		}
	}

	return true, nil
}

func (m *noForcedMatcher) Description() string {
	return "no forced transitions"
}

// All matches when every matcher matches.
func All(matchers ...Matcher) Matcher {
	return &allMatcher{matchers: matchers}
}

type allMatcher struct {
	matchers []Matcher
}

func (m *allMatcher) Match(recorder *Recorder, machineID string) (bool, error) {
	for _, matcher := range m.matchers {
		ok, err := matcher.Match(recorder, machineID)
		if err != nil || !ok {
			return false, err
		}
	}

	return true, nil
}

func (m *allMatcher) Description() string {
	descs := make([]string, len(m.matchers))
	for i, matcher := range m.matchers {
		descs[i] = matcher.Description()
	}

	return "all of: " + strings.Join(descs, ", ")
}

// Any matches when at least one matcher matches.
func Any(matchers ...Matcher) Matcher {
	return &anyMatcher{matchers: matchers}
}

type anyMatcher struct {
	matchers []Matcher
}

func (m *anyMatcher) Match(recorder *Recorder, machineID string) (bool, error) {
	for _, matcher := range m.matchers {
		ok, err := matcher.Match(recorder, machineID)
		if err == nil && ok {
			return true, nil
		}
	}

	return false, nil
}

func (m *anyMatcher) Description() string {
	descs := make([]string, len(m.matchers))
	for i, matcher := range m.matchers {
		descs[i] = matcher.Description()
	}

	return "any of: " + strings.Join(descs, ", ")
}
