package statemachine

import (
	"errors"
	"fmt"
	"strings"
)

// Predefined error types.
var (
	// ErrInvalidConfig is matched by every *ConfigError.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNoConfigLoader indicates that no config loader is registered.
	ErrNoConfigLoader = errors.New("no config loader registered; use SetConfigLoader() or provide a file path")

	// ErrInitialStateRequired indicates that an initial state is required.
	ErrInitialStateRequired = errors.New("initial state is required")
	// ErrStatesRequired indicates that at least one state is required.
	ErrStatesRequired = errors.New("at least one state is required")
	// ErrTransitionsRequired indicates that the transition table is missing.
	ErrTransitionsRequired = errors.New("transitions table is required")
	// ErrEventRulesRequired indicates that the event mapping rules are missing.
	ErrEventRulesRequired = errors.New("event mapping rules are required")
	// ErrInitialStateNotFound indicates that the initial state does not exist.
	ErrInitialStateNotFound = errors.New("initial state does not exist")
	// ErrTransitionFromNotFound indicates that a transition source state does not exist.
	ErrTransitionFromNotFound = errors.New("transition from state does not exist")
	// ErrTransitionToNotFound indicates that a transition target state does not exist.
	ErrTransitionToNotFound = errors.New("transition to state does not exist")
	// ErrTransitionActionRequired indicates an empty action name in the transition table.
	ErrTransitionActionRequired = errors.New("transition action name is required")
	// ErrRuleEventRequired indicates an event mapping rule without an event name.
	ErrRuleEventRequired = errors.New("event mapping rule requires an event")
	// ErrRuleStateRequired indicates a rule condition without a state.
	ErrRuleStateRequired = errors.New("event mapping condition requires a state")
	// ErrRuleActionRequired indicates a rule condition without an action.
	ErrRuleActionRequired = errors.New("event mapping condition requires an action")
	// ErrRuleStateNotFound indicates a rule condition referencing an unknown state.
	ErrRuleStateNotFound = errors.New("event mapping condition references an unknown state")

	// ErrInvalidActionSpec indicates a malformed action entry.
	ErrInvalidActionSpec = errors.New("invalid action spec")
	// ErrUnknownActionKind indicates an action entry with an unsupported kind.
	ErrUnknownActionKind = errors.New("unknown action kind")

	// ErrTransitionNotAllowed indicates that the current state has no transition for the action.
	ErrTransitionNotAllowed = errors.New("transition not allowed")
	// ErrUnknownState indicates a request for a state the definition does not declare.
	ErrUnknownState = errors.New("unknown state")
	// ErrMachineDestroyed indicates use of a destroyed machine.
	ErrMachineDestroyed = errors.New("state machine destroyed")
	// ErrNoEventMapping indicates that no rule maps the event in the current state.
	ErrNoEventMapping = errors.New("no event mapping")
	// ErrStateChanged indicates that the state moved on between mapping an event and applying it.
	ErrStateChanged = errors.New("state changed before the mapped action applied")

	// ErrUnknownHandler indicates an action naming a handler that is not registered.
	ErrUnknownHandler = errors.New("unknown action handler")
	// ErrUnknownCallback indicates a callback action naming an unregistered callback.
	ErrUnknownCallback = errors.New("unknown callback")
	// ErrHandlerPanic wraps a recovered panic raised by a handler or listener.
	ErrHandlerPanic = errors.New("handler panicked")
	// ErrUnknownEvaluator indicates a condition naming an unregistered evaluator.
	ErrUnknownEvaluator = errors.New("unknown condition evaluator")
)

// ConfigError lists every problem found while validating a configuration.
type ConfigError struct {
	Name     string
	Problems []error
}

func (e *ConfigError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}

	name := e.Name
	if name == "" {
		name = "<unnamed>"
	}

	return fmt.Sprintf("%s: config %s: %s", ErrInvalidConfig, name, strings.Join(msgs, "; "))
}

func (e *ConfigError) Unwrap() []error {
	return e.Problems
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig //nolint:errorlint // sentinel identity
}

// problems accumulates validation failures, in the manner of errors.Join.
type problems struct {
	errs []error
}

func (p *problems) add(err error) {
	if err != nil {
		p.errs = append(p.errs, err)
	}
}

func (p *problems) addf(sentinel error, format string, args ...any) {
	p.errs = append(p.errs, fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...))
}

func (p *problems) err(name string) error {
	if len(p.errs) == 0 {
		return nil
	}

	return &ConfigError{Name: name, Problems: p.errs}
}

// TransitionError wraps an error with transition context.
type TransitionError struct {
	From   string
	Action string
	Err    error
}

func (e *TransitionError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("transition from %s: %v", e.From, e.Err)
	}

	return fmt.Sprintf("transition %s --%s-->: %v", e.From, e.Action, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// WrapTransitionError wraps an error with transition context.
func WrapTransitionError(from, action string, err error) error {
	if err == nil {
		return nil
	}

	return &TransitionError{
		From:   from,
		Action: action,
		Err:    err,
	}
}

// recoverError converts a recovered panic value into an error.
func recoverError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: %w", ErrHandlerPanic, err)
	}

	return fmt.Errorf("%w: %v", ErrHandlerPanic, r)
}
