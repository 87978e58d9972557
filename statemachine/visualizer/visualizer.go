// Package visualizer generates Mermaid state diagrams from state machine configurations.
//
//nolint:varnamelen // short names idiomatic
package visualizer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/amp-labs/diagramfsm/statemachine"
)

// Visualizer errors.
var (
	ErrConfigNil      = errors.New("config cannot be nil")
	ErrNoInitialState = errors.New("config must have an initial state")
)

// GenerateMermaid converts a Config to a Mermaid state diagram.
func GenerateMermaid(config *statemachine.Config) (string, error) {
	return GenerateMermaidWithOptions(config, DefaultOptions())
}

// GenerateMermaidFromFile loads a config by path or registered name and
// generates a Mermaid diagram.
func GenerateMermaidFromFile(pathOrName string, opts Options) (string, error) {
	config, err := statemachine.LoadConfig(pathOrName)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	return GenerateMermaidWithOptions(config, opts)
}

// GenerateMermaidWithOptions generates a Mermaid diagram with custom options.
// Output is deterministic: states and actions are emitted in name order.
func GenerateMermaidWithOptions(config *statemachine.Config, opts Options) (string, error) {
	if config == nil {
		return "", ErrConfigNil
	}

	def := config.StateMachine
	if def.InitialState == "" {
		return "", ErrNoInitialState
	}

	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}

	var sb strings.Builder

	sb.WriteString("```mermaid\n")

	if opts.Theme != "" && opts.Theme != "default" {
		sb.WriteString(fmt.Sprintf("%%%%{init: {'theme': '%s'}}%%%%\n", opts.Theme))
	}

	sb.WriteString("stateDiagram-v2\n")
	sb.WriteString(fmt.Sprintf("    direction %s\n", direction))
	sb.WriteString(fmt.Sprintf("    [*] --> %s\n", def.InitialState))

	highlightMap := make(map[string]bool)
	for _, state := range opts.HighlightPath {
		highlightMap[state] = true
	}

	events := eventsByTransition(config)

	for _, name := range def.StateNames() {
		state := def.States[name]

		if opts.ShowActions && state.OnEnter.Len() > 0 {
			labels := make([]string, state.OnEnter.Len())
			for i, spec := range state.OnEnter.Specs {
				labels[i] = spec.Label()
			}

			sb.WriteString(fmt.Sprintf("    %s: %s\\n[%s]\n", name, name, strings.Join(labels, ", ")))
		} else if state.Description != "" {
			sb.WriteString(fmt.Sprintf("    %s: %s\n", name, state.Description))
		}

		switch {
		case name == opts.CurrentState:
			sb.WriteString(fmt.Sprintf("    class %s current\n", name))
		case highlightMap[name]:
			sb.WriteString(fmt.Sprintf("    class %s highlighted\n", name))
		case len(def.Transitions[name]) == 0:
			sb.WriteString(fmt.Sprintf("    class %s deadEnd\n", name))
		}

		for _, action := range def.ActionsFrom(name) {
			label := action

			if opts.ShowEvents {
				if evs := events[transitionKey(name, action)]; len(evs) > 0 {
					label = strings.Join(evs, ", ") + " / " + action
				}
			}

			sb.WriteString(fmt.Sprintf("    %s --> %s: %s\n", name, def.Transitions[name][action], label))
		}
	}

	sb.WriteString("\n")
	sb.WriteString("    classDef current fill:#bbdefb,stroke:#0d47a1,stroke-width:3px\n")
	sb.WriteString("    classDef deadEnd fill:#ffcdd2,stroke:#b71c1c,stroke-width:2px\n")
	sb.WriteString("    classDef highlighted fill:#fff9c4,stroke:#f57f17,stroke-width:3px\n")

	sb.WriteString("```\n")

	return sb.String(), nil
}

func transitionKey(state, action string) string {
	return state + "\x00" + action
}

// eventsByTransition inverts the event mapping: for each (state, action) the
// sorted, de-duplicated events that can produce it.
func eventsByTransition(config *statemachine.Config) map[string][]string {
	seen := make(map[string]map[string]bool)

	for _, rule := range config.EventMapping.Rules {
		for _, cond := range rule.Conditions {
			key := transitionKey(cond.State, cond.Action)
			if seen[key] == nil {
				seen[key] = make(map[string]bool)
			}

			seen[key][rule.Event] = true
		}
	}

	out := make(map[string][]string, len(seen))

	for key, set := range seen {
		evs := make([]string, 0, len(set))
		for ev := range set {
			evs = append(evs, ev)
		}

		sort.Strings(evs)
		out[key] = evs
	}

	return out
}
