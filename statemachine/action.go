package statemachine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// ActionKind selects how an ActionSpec is executed.
type ActionKind string

const (
	// ActionKindHandler runs a handler registered by name.
	ActionKindHandler ActionKind = "handler"
	// ActionKindAddFlag sets a visual flag on the machine's target.
	ActionKindAddFlag ActionKind = "addFlag"
	// ActionKindRemoveFlag clears a visual flag on the machine's target.
	ActionKindRemoveFlag ActionKind = "removeFlag"
	// ActionKindTimeout schedules the executor's single delayed callback.
	ActionKindTimeout ActionKind = "timeout"
	// ActionKindClearTimeout cancels the pending delayed callback.
	ActionKindClearTimeout ActionKind = "clearTimeout"
	// ActionKindCallback invokes an externally registered callback.
	ActionKindCallback ActionKind = "callback"
	// ActionKindLog writes a log line.
	ActionKindLog ActionKind = "log"
)

// DefaultTimeoutCallback is the callback invoked by a timeout action that
// does not name a logical action to fire.
const DefaultTimeoutCallback = "timeout"

// ActionSpec is a decoded entry of an onEnter or onExit list.
type ActionSpec struct {
	Kind    ActionKind `json:"kind"              mapstructure:"kind"    yaml:"kind"`
	Name    string     `json:"name,omitempty"    mapstructure:"name"    yaml:"name,omitempty"`
	Flag    string     `json:"flag,omitempty"    mapstructure:"flag"    yaml:"flag,omitempty"`
	DelayMs int        `json:"delayMs,omitempty" mapstructure:"delayMs" yaml:"delayMs,omitempty"`
	OnFire  string     `json:"onFire,omitempty"  mapstructure:"onFire"  yaml:"onFire,omitempty"`
	Message string     `json:"message,omitempty" mapstructure:"message" yaml:"message,omitempty"`
	Level   string     `json:"level,omitempty"   mapstructure:"level"   yaml:"level,omitempty"`
}

// Handler returns a spec running the named handler.
func Handler(name string) ActionSpec {
	return ActionSpec{Kind: ActionKindHandler, Name: name}
}

// AddFlag returns a spec setting flag on the target.
func AddFlag(flag string) ActionSpec {
	return ActionSpec{Kind: ActionKindAddFlag, Flag: flag}
}

// RemoveFlag returns a spec clearing flag on the target.
func RemoveFlag(flag string) ActionSpec {
	return ActionSpec{Kind: ActionKindRemoveFlag, Flag: flag}
}

// Timeout returns a spec that fires onFire after delay.
func Timeout(delay time.Duration, onFire string) ActionSpec {
	return ActionSpec{Kind: ActionKindTimeout, DelayMs: int(delay / time.Millisecond), OnFire: onFire}
}

// ClearTimeout returns a spec cancelling the pending timeout.
func ClearTimeout() ActionSpec {
	return ActionSpec{Kind: ActionKindClearTimeout}
}

// Delay is the timeout delay of a timeout spec.
func (a ActionSpec) Delay() time.Duration {
	return time.Duration(a.DelayMs) * time.Millisecond
}

// Label names the spec in logs, spans and metrics.
func (a ActionSpec) Label() string {
	switch a.Kind {
	case ActionKindHandler, ActionKindCallback:
		return a.Name
	case ActionKindAddFlag, ActionKindRemoveFlag:
		return string(a.Kind) + ":" + a.Flag
	default:
		return string(a.Kind)
	}
}

func (a ActionSpec) String() string {
	return a.Label()
}

// Validate checks that the spec carries the fields its kind needs.
func (a ActionSpec) Validate() error {
	switch a.Kind {
	case ActionKindHandler, ActionKindCallback:
		if a.Name == "" {
			return fmt.Errorf("%w: %s action requires a name", ErrInvalidActionSpec, a.Kind)
		}
	case ActionKindAddFlag, ActionKindRemoveFlag:
		if a.Flag == "" {
			return fmt.Errorf("%w: %s action requires a flag", ErrInvalidActionSpec, a.Kind)
		}
	case ActionKindTimeout:
		if a.DelayMs < 0 {
			return fmt.Errorf("%w: negative timeout delay %d", ErrInvalidActionSpec, a.DelayMs)
		}
	case ActionKindLog:
		if a.Message == "" {
			return fmt.Errorf("%w: log action requires a message", ErrInvalidActionSpec)
		}
	case ActionKindClearTimeout:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownActionKind, a.Kind)
	}

	return nil
}

// ParseAction decodes the "kind:arg" shorthand. A bare word that is not a
// kind names a handler.
//
//	highlight            -> handler "highlight"
//	addFlag:selected     -> addFlag, flag "selected"
//	timeout:300          -> timeout after 300ms, timeout callback
//	timeout:300:expired  -> timeout after 300ms, fires action "expired"
//	callback:notify      -> callback "notify"
//	log:entered cooldown -> log message
func ParseAction(s string) (ActionSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ActionSpec{}, fmt.Errorf("%w: empty action", ErrInvalidActionSpec)
	}

	kind, arg, hasArg := strings.Cut(s, ":")

	var spec ActionSpec

	switch ActionKind(kind) {
	case ActionKindHandler, ActionKindCallback:
		spec = ActionSpec{Kind: ActionKind(kind), Name: arg}
	case ActionKindAddFlag, ActionKindRemoveFlag:
		spec = ActionSpec{Kind: ActionKind(kind), Flag: arg}
	case ActionKindClearTimeout:
		spec = ClearTimeout()
	case ActionKindLog:
		spec = ActionSpec{Kind: ActionKindLog, Message: arg}
	case ActionKindTimeout, "setTimeout":
		delay, onFire, _ := strings.Cut(arg, ":")

		ms, err := strconv.Atoi(delay)
		if err != nil {
			return ActionSpec{}, fmt.Errorf("%w: timeout delay %q: %w", ErrInvalidActionSpec, delay, err)
		}

		spec = ActionSpec{Kind: ActionKindTimeout, DelayMs: ms, OnFire: onFire}
	default:
		if hasArg {
			return ActionSpec{}, fmt.Errorf("%w: %q", ErrUnknownActionKind, kind)
		}

		spec = Handler(s)
	}

	if err := spec.Validate(); err != nil {
		return ActionSpec{}, err
	}

	return spec, nil
}

// DecodeAction decodes a raw list entry: either shorthand text or a mapping
// with a kind field. A mapping without a kind but with a name is a handler.
func DecodeAction(raw any) (ActionSpec, error) {
	switch typed := raw.(type) {
	case string:
		return ParseAction(typed)
	case ActionSpec:
		return typed, typed.Validate()
	case map[string]any:
		var spec ActionSpec

		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &spec,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		})
		if err != nil {
			return ActionSpec{}, fmt.Errorf("%w: %w", ErrInvalidActionSpec, err)
		}

		if err := decoder.Decode(typed); err != nil {
			return ActionSpec{}, fmt.Errorf("%w: %w", ErrInvalidActionSpec, err)
		}

		if spec.Kind == "" && spec.Name != "" {
			spec.Kind = ActionKindHandler
		}

		if spec.Kind == "setTimeout" {
			spec.Kind = ActionKindTimeout
		}

		return spec, spec.Validate()
	default:
		return ActionSpec{}, fmt.Errorf("%w: unsupported entry type %T", ErrInvalidActionSpec, raw)
	}
}

// ActionList is an onEnter or onExit list. Entries are decoded when the
// configuration is parsed. A list that is present but not a sequence is kept
// as Malformed so execution can warn and skip it.
type ActionList struct {
	Specs     []ActionSpec
	Malformed bool

	decodeErrs []error
}

// Actions builds an ActionList from specs.
func Actions(specs ...ActionSpec) ActionList {
	return ActionList{Specs: specs}
}

// Len is the number of decoded specs.
func (l ActionList) Len() int {
	return len(l.Specs)
}

func (l *ActionList) UnmarshalYAML(node *yaml.Node) error {
	*l = ActionList{}

	if node.Kind != yaml.SequenceNode {
		l.Malformed = true

		return nil
	}

	for i, item := range node.Content {
		var raw any
		if err := item.Decode(&raw); err != nil {
			l.decodeErrs = append(l.decodeErrs, fmt.Errorf("entry %d: %w", i, err))

			continue
		}

		spec, err := DecodeAction(raw)
		if err != nil {
			l.decodeErrs = append(l.decodeErrs, fmt.Errorf("entry %d: %w", i, err))

			continue
		}

		l.Specs = append(l.Specs, spec)
	}

	return nil
}

func (l ActionList) MarshalYAML() (any, error) {
	return l.Specs, nil
}

func (l ActionList) validate() []error {
	errs := append([]error(nil), l.decodeErrs...)

	for i, spec := range l.Specs {
		if err := spec.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
		}
	}

	return errs
}
