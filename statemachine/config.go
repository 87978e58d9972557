package statemachine

import (
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/amp-labs/diagramfsm/statemachine/condition"
	"gopkg.in/yaml.v3"
)

// ConfigLoader is an interface for loading configurations by name.
// Applications can implement this to provide embedded or custom config loading.
type ConfigLoader interface {
	LoadByName(name string) ([]byte, error)
	ListAvailable() []string
}

var (
	// defaultConfigLoader is the global config loader used by LoadConfig.
	defaultConfigLoader   ConfigLoader //nolint:gochecknoglobals
	defaultConfigLoaderMu sync.RWMutex //nolint:gochecknoglobals
)

// SetConfigLoader sets the default config loader for name-based loading.
func SetConfigLoader(loader ConfigLoader) {
	defaultConfigLoaderMu.Lock()
	defer defaultConfigLoaderMu.Unlock()

	defaultConfigLoader = loader
}

func configLoader() ConfigLoader {
	defaultConfigLoaderMu.RLock()
	defer defaultConfigLoaderMu.RUnlock()

	return defaultConfigLoader
}

// Config is a complete machine description: the state machine definition
// plus the rules translating technical events into logical actions.
type Config struct {
	Name         string       `json:"name"         yaml:"name"`
	Description  string       `json:"description"  yaml:"description,omitempty"`
	StateMachine Definition   `json:"stateMachine" yaml:"stateMachine"`
	EventMapping EventMapping `json:"eventMapping" yaml:"eventMapping"`
}

// Definition is the declarative state machine.
type Definition struct {
	InitialState string                       `json:"initialState" yaml:"initialState"`
	States       map[string]StateConfig       `json:"states"       yaml:"states"`
	Transitions  map[string]map[string]string `json:"transitions"  yaml:"transitions"`
}

// StateConfig holds the actions run when a state is entered or left.
type StateConfig struct {
	Description string     `json:"description" yaml:"description,omitempty"`
	OnEnter     ActionList `json:"onEnter"     yaml:"onEnter,omitempty"`
	OnExit      ActionList `json:"onExit"      yaml:"onExit,omitempty"`
}

// EventMapping is the ordered rule list consulted by the EventMapper.
type EventMapping struct {
	Rules []EventRule `json:"rules" yaml:"rules"`
}

// EventRule maps one technical event to logical actions per state.
type EventRule struct {
	Event      string          `json:"event"      yaml:"event"`
	Conditions []ConditionRule `json:"conditions" yaml:"conditions"`
}

// ConditionRule is one candidate mapping inside an EventRule. An empty
// Condition always matches; Evaluator selects a registered evaluator and
// defaults to the built-in expression language.
type ConditionRule struct {
	State     string `json:"state"               yaml:"state"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Evaluator string `json:"evaluator,omitempty" yaml:"evaluator,omitempty"`
	Action    string `json:"action"              yaml:"action"`
}

// LoadConfig loads a configuration by path or name.
// Supports two modes:
//   - Path mode: a value containing '/', '\' or ending in .yaml, .yml or .json is read from disk
//   - Name mode: a bare name is resolved via the registered ConfigLoader
func LoadConfig(pathOrName string) (*Config, error) {
	lower := strings.ToLower(pathOrName)
	isPath := strings.Contains(pathOrName, "/") ||
		strings.Contains(pathOrName, `\`) ||
		strings.HasSuffix(lower, ".yaml") ||
		strings.HasSuffix(lower, ".yml") ||
		strings.HasSuffix(lower, ".json")

	if isPath {
		data, err := os.ReadFile(pathOrName) //nolint:gosec // Intentional path-based loading
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", pathOrName, err)
		}

		return LoadConfigFromBytes(data)
	}

	loader := configLoader()
	if loader == nil {
		return nil, ErrNoConfigLoader
	}

	data, err := loader.LoadByName(pathOrName)
	if err != nil {
		available := loader.ListAvailable()

		return nil, fmt.Errorf("failed to load config %q (available: %v): %w", pathOrName, available, err)
	}

	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes parses YAML (or JSON) and validates the result.
func LoadConfigFromBytes(data []byte) (*Config, error) {
	config, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// ParseConfig parses without validating. Lint tooling uses this to report
// on configurations that would be rejected at construction.
func ParseConfig(data []byte) (*Config, error) {
	var config Config

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// LoadConfigFromFS loads a configuration from an embedded filesystem.
func LoadConfigFromFS(fsys fs.FS, path string) (*Config, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config from FS: %w", err)
	}

	return LoadConfigFromBytes(data)
}

// Validate checks the whole configuration and reports every problem at once
// as a *ConfigError.
func (c *Config) Validate() error {
	var p problems

	c.StateMachine.collectProblems(&p)

	if c.EventMapping.Rules == nil {
		p.add(ErrEventRulesRequired)
	}

	for i, rule := range c.EventMapping.Rules {
		if rule.Event == "" {
			p.addf(ErrRuleEventRequired, "rule %d", i)
		}

		for j, cond := range rule.Conditions {
			switch {
			case cond.State == "":
				p.addf(ErrRuleStateRequired, "rule %d (%s) condition %d", i, rule.Event, j)
			case c.StateMachine.States != nil && !c.StateMachine.HasState(cond.State):
				p.addf(ErrRuleStateNotFound, "rule %d (%s) condition %d: %s", i, rule.Event, j, cond.State)
			}

			if cond.Action == "" {
				p.addf(ErrRuleActionRequired, "rule %d (%s) condition %d", i, rule.Event, j)
			}
		}
	}

	return p.err(c.Name)
}

// Validate checks the definition alone.
func (d *Definition) Validate() error {
	var p problems

	d.collectProblems(&p)

	return p.err("")
}

func (d *Definition) collectProblems(p *problems) {
	if d.InitialState == "" {
		p.add(ErrInitialStateRequired)
	}

	if len(d.States) == 0 {
		p.add(ErrStatesRequired)
	} else if d.InitialState != "" && !d.HasState(d.InitialState) {
		p.addf(ErrInitialStateNotFound, "%s", d.InitialState)
	}

	if d.Transitions == nil {
		p.add(ErrTransitionsRequired)
	}

	for _, from := range sortedKeys(d.Transitions) {
		if len(d.States) > 0 && !d.HasState(from) {
			p.addf(ErrTransitionFromNotFound, "%s", from)
		}

		actions := d.Transitions[from]
		for _, action := range sortedKeys(actions) {
			to := actions[action]

			if action == "" {
				p.addf(ErrTransitionActionRequired, "from %s", from)
			}

			if len(d.States) > 0 && !d.HasState(to) {
				p.addf(ErrTransitionToNotFound, "%s --%s--> %s", from, action, to)
			}
		}
	}

	for _, name := range sortedKeys(d.States) {
		state := d.States[name]

		for _, err := range state.OnEnter.validate() {
			p.addf(ErrInvalidActionSpec, "state %s onEnter: %v", name, err)
		}

		for _, err := range state.OnExit.validate() {
			p.addf(ErrInvalidActionSpec, "state %s onExit: %v", name, err)
		}
	}
}

// HasState reports whether name is a declared state.
func (d *Definition) HasState(name string) bool {
	_, ok := d.States[name]

	return ok
}

// StateNames returns the declared states sorted by name.
func (d *Definition) StateNames() []string {
	return sortedKeys(d.States)
}

// ActionsFrom returns the actions accepted in state, sorted by name.
func (d *Definition) ActionsFrom(state string) []string {
	return sortedKeys(d.Transitions[state])
}

// Conditions maps each distinct non-empty condition expression used by the
// rules to its compile error, nil when it compiles.
func (m *EventMapping) Conditions() map[string]error {
	out := make(map[string]error)

	for _, rule := range m.Rules {
		for _, cond := range rule.Conditions {
			if cond.Condition == "" {
				continue
			}

			if _, seen := out[cond.Condition]; seen {
				continue
			}

			_, err := condition.Compile(cond.Condition)
			out[cond.Condition] = err
		}
	}

	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
