//nolint:lll // Long validation messages
package validator

import (
	"fmt"
	"slices"
	"sort"
	"unicode"

	"github.com/amp-labs/diagramfsm/statemachine"
)

// Severity defines the severity level of a validation issue.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

// RuleResult contains both errors and warnings from a rule check.
type RuleResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// Rule defines a validation rule that can check a config for specific issues.
type Rule interface {
	Name() string
	Severity() Severity
	Check(config *statemachine.Config) RuleResult
}

// DefaultRules returns the standard set of validation rules.
func DefaultRules() []Rule {
	return []Rule{
		&unreachableStateRule{},
		&deadEndStateRule{},
		&invalidConditionRule{},
		&rejectedRuleActionRule{},
		&shadowedConditionRule{},
		&unmappedActionRule{},
		&timeoutTargetRule{},
		&namingConventionRule{},
	}
}

// KnownHandlers returns a rule warning about handler actions whose names are
// not in names. Built-in handlers are always known.
func KnownHandlers(names ...string) Rule {
	known := map[string]bool{"highlight": true, "unhighlight": true}
	for _, name := range names {
		known[name] = true
	}

	return &unknownHandlerRule{known: known}
}

type unreachableStateRule struct{}

func (r *unreachableStateRule) Name() string {
	return "UnreachableState"
}

func (r *unreachableStateRule) Severity() Severity {
	return SeverityError
}

func (r *unreachableStateRule) Check(config *statemachine.Config) RuleResult {
	var errors []ValidationError

	def := config.StateMachine
	if !def.HasState(def.InitialState) {
		return RuleResult{}
	}

	reachable := map[string]bool{def.InitialState: true}

	queue := []string{def.InitialState}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, action := range def.ActionsFrom(current) {
			to := def.Transitions[current][action]
			if !reachable[to] {
				reachable[to] = true
				queue = append(queue, to)
			}
		}
	}

	for _, name := range def.StateNames() {
		if !reachable[name] {
			errors = append(errors, ValidationError{
				Code:     "UNREACHABLE_STATE",
				Message:  fmt.Sprintf("State '%s' cannot be reached from initial state '%s'", name, def.InitialState),
				Location: Location{State: name},
				Fix:      RemoveUnreachableState(name),
			})
		}
	}

	return RuleResult{Errors: errors}
}

// deadEndStateRule warns about states with no outgoing transitions. A
// machine that enters one can only leave through ForceState or Reset.
type deadEndStateRule struct{}

func (r *deadEndStateRule) Name() string {
	return "DeadEndState"
}

func (r *deadEndStateRule) Severity() Severity {
	return SeverityWarning
}

func (r *deadEndStateRule) Check(config *statemachine.Config) RuleResult {
	var warnings []ValidationWarning

	def := config.StateMachine

	for _, name := range def.StateNames() {
		if len(def.Transitions[name]) == 0 {
			warnings = append(warnings, ValidationWarning{
				Code:     "DEAD_END_STATE",
				Message:  fmt.Sprintf("State '%s' has no outgoing transitions", name),
				Location: Location{State: name},
			})
		}
	}

	return RuleResult{Warnings: warnings}
}

type invalidConditionRule struct{}

func (r *invalidConditionRule) Name() string {
	return "InvalidCondition"
}

func (r *invalidConditionRule) Severity() Severity {
	return SeverityError
}

func (r *invalidConditionRule) Check(config *statemachine.Config) RuleResult {
	var errors []ValidationError

	conditions := config.EventMapping.Conditions()

	exprs := make([]string, 0, len(conditions))
	for expr := range conditions {
		exprs = append(exprs, expr)
	}

	sort.Strings(exprs)

	for _, expr := range exprs {
		if err := conditions[expr]; err != nil {
			errors = append(errors, ValidationError{
				Code:    "INVALID_CONDITION",
				Message: fmt.Sprintf("Condition '%s' does not compile and always evaluates false: %v", expr, err),
			})
		}
	}

	return RuleResult{Errors: errors}
}

// rejectedRuleActionRule flags rules mapping to an action the state does not
// accept. Such a rule matches but the transition is always refused.
type rejectedRuleActionRule struct{}

func (r *rejectedRuleActionRule) Name() string {
	return "RejectedRuleAction"
}

func (r *rejectedRuleActionRule) Severity() Severity {
	return SeverityWarning
}

func (r *rejectedRuleActionRule) Check(config *statemachine.Config) RuleResult {
	var warnings []ValidationWarning

	def := config.StateMachine

	for _, rule := range config.EventMapping.Rules {
		for _, cond := range rule.Conditions {
			if !def.HasState(cond.State) || cond.Action == "" {
				continue
			}

			if _, ok := def.Transitions[cond.State][cond.Action]; !ok {
				warnings = append(warnings, ValidationWarning{
					Code:     "REJECTED_RULE_ACTION",
					Message:  fmt.Sprintf("Event '%s' maps to action '%s' which state '%s' does not accept", rule.Event, cond.Action, cond.State),
					Location: Location{State: cond.State, Event: rule.Event},
				})
			}
		}
	}

	return RuleResult{Warnings: warnings}
}

// shadowedConditionRule flags conditions that can never be chosen because an
// earlier unconditional entry for the same state always wins.
type shadowedConditionRule struct{}

func (r *shadowedConditionRule) Name() string {
	return "ShadowedCondition"
}

func (r *shadowedConditionRule) Severity() Severity {
	return SeverityWarning
}

func (r *shadowedConditionRule) Check(config *statemachine.Config) RuleResult {
	var warnings []ValidationWarning

	for _, rule := range config.EventMapping.Rules {
		catchAll := make(map[string]bool)

		for _, cond := range rule.Conditions {
			if catchAll[cond.State] {
				warnings = append(warnings, ValidationWarning{
					Code:     "SHADOWED_CONDITION",
					Message:  fmt.Sprintf("Event '%s' entry for state '%s' (action '%s') follows an unconditional entry and is never chosen", rule.Event, cond.State, cond.Action),
					Location: Location{State: cond.State, Event: rule.Event},
				})

				continue
			}

			if cond.Condition == "" && cond.Evaluator == "" {
				catchAll[cond.State] = true
			}
		}
	}

	return RuleResult{Warnings: warnings}
}

// unmappedActionRule flags transition actions that no event rule produces and
// no timeout fires. They are still reachable through a direct Transition.
type unmappedActionRule struct{}

func (r *unmappedActionRule) Name() string {
	return "UnmappedAction"
}

func (r *unmappedActionRule) Severity() Severity {
	return SeverityInfo
}

func (r *unmappedActionRule) Check(config *statemachine.Config) RuleResult {
	var warnings []ValidationWarning

	produced := make(map[string]bool)

	for _, rule := range config.EventMapping.Rules {
		for _, cond := range rule.Conditions {
			produced[cond.Action] = true
		}
	}

	for _, state := range config.StateMachine.States {
		for _, spec := range slices.Concat(state.OnEnter.Specs, state.OnExit.Specs) {
			if spec.Kind == statemachine.ActionKindTimeout && spec.OnFire != "" {
				produced[spec.OnFire] = true
			}
		}
	}

	def := config.StateMachine
	reported := make(map[string]bool)

	for _, from := range sortedStates(def.Transitions) {
		for _, action := range def.ActionsFrom(from) {
			if produced[action] || reported[action] {
				continue
			}

			reported[action] = true

			warnings = append(warnings, ValidationWarning{
				Code:     "UNMAPPED_ACTION",
				Message:  fmt.Sprintf("Action '%s' is not produced by any event rule or timeout and needs a direct Transition call", action),
				Location: Location{State: from},
			})
		}
	}

	return RuleResult{Warnings: warnings}
}

// timeoutTargetRule checks that a timeout entered with a state fires an
// action that state accepts.
type timeoutTargetRule struct{}

func (r *timeoutTargetRule) Name() string {
	return "TimeoutTarget"
}

func (r *timeoutTargetRule) Severity() Severity {
	return SeverityError
}

func (r *timeoutTargetRule) Check(config *statemachine.Config) RuleResult {
	var errors []ValidationError

	def := config.StateMachine

	for _, name := range def.StateNames() {
		for _, spec := range def.States[name].OnEnter.Specs {
			if spec.Kind != statemachine.ActionKindTimeout || spec.OnFire == "" {
				continue
			}

			if _, ok := def.Transitions[name][spec.OnFire]; !ok {
				errors = append(errors, ValidationError{
					Code:     "TIMEOUT_ACTION_REJECTED",
					Message:  fmt.Sprintf("Timeout in state '%s' fires '%s' which the state does not accept", name, spec.OnFire),
					Location: Location{State: name},
				})
			}
		}
	}

	return RuleResult{Errors: errors}
}

type unknownHandlerRule struct {
	known map[string]bool
}

func (r *unknownHandlerRule) Name() string {
	return "UnknownHandler"
}

func (r *unknownHandlerRule) Severity() Severity {
	return SeverityWarning
}

func (r *unknownHandlerRule) Check(config *statemachine.Config) RuleResult {
	var warnings []ValidationWarning

	def := config.StateMachine

	for _, name := range def.StateNames() {
		state := def.States[name]

		for _, spec := range slices.Concat(state.OnEnter.Specs, state.OnExit.Specs) {
			if spec.Kind == statemachine.ActionKindHandler && !r.known[spec.Name] {
				warnings = append(warnings, ValidationWarning{
					Code:     "UNKNOWN_HANDLER",
					Message:  fmt.Sprintf("Handler '%s' used by state '%s' is not registered", spec.Name, name),
					Location: Location{State: name},
				})
			}
		}
	}

	return RuleResult{Warnings: warnings}
}

// namingConventionRule warns about state names that are not lowerCamelCase.
type namingConventionRule struct{}

func (r *namingConventionRule) Name() string {
	return "NamingConvention"
}

func (r *namingConventionRule) Severity() Severity {
	return SeverityWarning
}

func (r *namingConventionRule) Check(config *statemachine.Config) RuleResult {
	var warnings []ValidationWarning

	for _, name := range config.StateMachine.StateNames() {
		if !isLowerCamel(name) {
			warnings = append(warnings, ValidationWarning{
				Code:     "NAMING_CONVENTION",
				Message:  fmt.Sprintf("State '%s' should use lowerCamelCase naming (suggested: '%s')", name, toLowerCamel(name)),
				Location: Location{State: name},
			})
		}
	}

	return RuleResult{Warnings: warnings}
}

func isLowerCamel(s string) bool {
	for i, r := range s {
		if i == 0 && !unicode.IsLower(r) {
			return false
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}

	return true
}

func toLowerCamel(s string) string {
	var result []rune

	upperNext := false

	for _, r := range s {
		switch {
		case r == '_' || r == '-' || r == ' ':
			upperNext = len(result) > 0
		case len(result) == 0:
			result = append(result, unicode.ToLower(r))
		case upperNext:
			result = append(result, unicode.ToUpper(r))
			upperNext = false
		default:
			result = append(result, r)
		}
	}

	return string(result)
}

func sortedStates(m map[string]map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
