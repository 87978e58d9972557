// Package validator provides validation and auto-fixing for state machine configurations.
package validator

import (
	"errors"
	"fmt"
	"maps"

	"github.com/amp-labs/diagramfsm/statemachine"
)

var (
	// ErrTransitionExists is returned when attempting to add a transition that already exists.
	ErrTransitionExists = errors.New("transition already exists")
	// ErrStateNotFound is returned when attempting to remove a state that doesn't exist.
	ErrStateNotFound = errors.New("state not found")
	// ErrStateAlreadyExists is returned when attempting to rename to an existing state name.
	ErrStateAlreadyExists = errors.New("state already exists")
)

// Fix represents an automatic fix for a validation error.
type Fix struct {
	Description string
	Apply       func(config *statemachine.Config) error
}

// AddMissingTransition creates a fix that lets from accept action, moving to to.
func AddMissingTransition(from, action, to string) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Add transition '%s' --%s--> '%s'", from, action, to),
		Apply: func(config *statemachine.Config) error {
			def := &config.StateMachine

			if _, ok := def.Transitions[from][action]; ok {
				return fmt.Errorf("%w: %s --%s-->", ErrTransitionExists, from, action)
			}

			if def.Transitions == nil {
				def.Transitions = make(map[string]map[string]string)
			}

			if def.Transitions[from] == nil {
				def.Transitions[from] = make(map[string]string)
			}

			def.Transitions[from][action] = to

			return nil
		},
	}
}

// RemoveUnreachableState creates a fix that removes a state together with
// every transition and event rule entry touching it.
func RemoveUnreachableState(stateName string) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Remove unreachable state '%s'", stateName),
		Apply: func(config *statemachine.Config) error {
			def := &config.StateMachine

			if !def.HasState(stateName) {
				return fmt.Errorf("%w: '%s'", ErrStateNotFound, stateName)
			}

			delete(def.States, stateName)
			delete(def.Transitions, stateName)

			for _, actions := range def.Transitions {
				maps.DeleteFunc(actions, func(_, to string) bool { return to == stateName })
			}

			for i, rule := range config.EventMapping.Rules {
				kept := make([]statemachine.ConditionRule, 0, len(rule.Conditions))

				for _, cond := range rule.Conditions {
					if cond.State != stateName {
						kept = append(kept, cond)
					}
				}

				config.EventMapping.Rules[i].Conditions = kept
			}

			return nil
		},
	}
}

// RenameState creates a fix that renames a state everywhere it is referenced.
func RenameState(oldName, newName string) *Fix {
	return &Fix{
		Description: fmt.Sprintf("Rename state from '%s' to '%s'", oldName, newName),
		Apply: func(config *statemachine.Config) error {
			def := &config.StateMachine

			if def.HasState(newName) {
				return fmt.Errorf("%w: '%s'", ErrStateAlreadyExists, newName)
			}

			state, ok := def.States[oldName]
			if !ok {
				return fmt.Errorf("%w: '%s'", ErrStateNotFound, oldName)
			}

			delete(def.States, oldName)
			def.States[newName] = state

			if def.InitialState == oldName {
				def.InitialState = newName
			}

			if actions, ok := def.Transitions[oldName]; ok {
				delete(def.Transitions, oldName)
				def.Transitions[newName] = actions
			}

			for _, actions := range def.Transitions {
				for action, to := range actions {
					if to == oldName {
						actions[action] = newName
					}
				}
			}

			for i := range config.EventMapping.Rules {
				conds := config.EventMapping.Rules[i].Conditions
				for j := range conds {
					if conds[j].State == oldName {
						conds[j].State = newName
					}
				}
			}

			return nil
		},
	}
}

// ApplyFixes applies a list of fixes to a config.
func ApplyFixes(config *statemachine.Config, fixes []*Fix) error {
	for _, fix := range fixes {
		if fix != nil && fix.Apply != nil {
			err := fix.Apply(config)
			if err != nil {
				return fmt.Errorf("failed to apply fix '%s': %w", fix.Description, err)
			}
		}
	}

	return nil
}

// Fixes collects the fixes attached to a result's errors.
func (r ValidationResult) Fixes() []*Fix {
	var fixes []*Fix

	for _, err := range r.Errors {
		if err.Fix != nil {
			fixes = append(fixes, err.Fix)
		}
	}

	return fixes
}
