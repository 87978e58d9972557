package statemachine

import (
	"context"
	"fmt"
	"sync"

	"github.com/amp-labs/diagramfsm/statemachine/condition"
)

// DefaultEvaluator names the built-in expression evaluator.
const DefaultEvaluator = "default"

// ConditionEvaluator decides whether a rule's condition holds for the event
// data. Errors count as "not met".
type ConditionEvaluator func(condition string, data map[string]any) (bool, error)

type compiledCondition struct {
	ConditionRule

	expr       condition.Expr
	compileErr error
}

type compiledRule struct {
	event      string
	conditions []compiledCondition
}

// EventMapper translates technical events into logical actions. Rules are
// scanned in declaration order and the first matching condition wins.
type EventMapper struct {
	machineID string
	logger    Logger
	rules     []compiledRule

	mu         sync.RWMutex
	evaluators map[string]ConditionEvaluator
}

// NewEventMapper compiles the mapping's conditions once. Conditions that do
// not compile never match.
func NewEventMapper(machineID string, mapping EventMapping, opts ...Option) *EventMapper {
	o := newOptions(opts)

	mapper := &EventMapper{
		machineID:  machineID,
		logger:     o.logger,
		rules:      make([]compiledRule, 0, len(mapping.Rules)),
		evaluators: make(map[string]ConditionEvaluator),
	}

	for _, rule := range mapping.Rules {
		compiled := compiledRule{event: rule.Event}

		for _, cond := range rule.Conditions {
			cc := compiledCondition{ConditionRule: cond}
			if cond.Condition != "" {
				cc.expr, cc.compileErr = condition.Compile(cond.Condition)
			}

			compiled.conditions = append(compiled.conditions, cc)
		}

		mapper.rules = append(mapper.rules, compiled)
	}

	return mapper
}

// RegisterConditionEvaluator registers a named evaluator selectable through
// a rule's evaluator field. Registering DefaultEvaluator replaces the
// built-in expression language.
func (m *EventMapper) RegisterConditionEvaluator(name string, evaluator ConditionEvaluator) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evaluators[name] = evaluator
}

// MapEvent returns the action for event in state, or false when no rule
// matches.
func (m *EventMapper) MapEvent(ctx context.Context, event, state string, data map[string]any) (string, bool) {
	for _, rule := range m.rules {
		if rule.event != event {
			continue
		}

		for _, cond := range rule.conditions {
			if cond.State != state {
				continue
			}

			if m.holds(ctx, cond, data) {
				return cond.Action, true
			}
		}
	}

	return "", false
}

// PossibleActions lists every action event could map to in state,
// regardless of conditions, in rule order without duplicates.
func (m *EventMapper) PossibleActions(event, state string) []string {
	var (
		out  []string
		seen = make(map[string]bool)
	)

	for _, rule := range m.rules {
		if rule.event != event {
			continue
		}

		for _, cond := range rule.conditions {
			if cond.State == state && !seen[cond.Action] {
				seen[cond.Action] = true
				out = append(out, cond.Action)
			}
		}
	}

	return out
}

// Events lists the distinct events named by the rules, in rule order.
func (m *EventMapper) Events() []string {
	var (
		out  []string
		seen = make(map[string]bool)
	)

	for _, rule := range m.rules {
		if !seen[rule.event] {
			seen[rule.event] = true
			out = append(out, rule.event)
		}
	}

	return out
}

func (m *EventMapper) holds(ctx context.Context, cond compiledCondition, data map[string]any) bool {
	if cond.Condition == "" {
		return true
	}

	name := cond.Evaluator
	if name == "" {
		name = DefaultEvaluator
	}

	m.mu.RLock()
	custom, ok := m.evaluators[name]
	m.mu.RUnlock()

	if !ok {
		if name != DefaultEvaluator {
			m.logger.Warn(ctx, m.machineID, "Condition evaluation failed",
				"condition", cond.Condition, "error", fmt.Errorf("%w: %s", ErrUnknownEvaluator, name))

			return false
		}

		if cond.compileErr != nil {
			m.logger.Warn(ctx, m.machineID, "Condition evaluation failed",
				"condition", cond.Condition, "error", cond.compileErr)

			return false
		}

		return cond.expr.Eval(data)
	}

	result, err := m.safeEvaluate(custom, cond.Condition, data)
	if err != nil {
		m.logger.Warn(ctx, m.machineID, "Condition evaluation failed",
			"condition", cond.Condition, "evaluator", name, "error", err)

		return false
	}

	return result
}

func (m *EventMapper) safeEvaluate(
	evaluator ConditionEvaluator, expr string, data map[string]any,
) (result bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = false, recoverError(r)
		}
	}()

	if data == nil {
		data = map[string]any{}
	}

	return evaluator(expr, data)
}
