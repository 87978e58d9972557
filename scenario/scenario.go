// Package scenario replays scripted input against a fresh editor over an
// in-memory scene and checks the resulting machine states.
//
// A scenario file looks like:
//
//	name: commit an edge
//	settings:
//	  sourceAfterCommit: cooldown
//	nodes:
//	  - {id: n1, x: 0, y: 0}
//	  - {id: n2, x: 100, y: 0}
//	steps:
//	  - do: click
//	    node: n1
//	  - do: shiftDown
//	  - do: move
//	    x: 50
//	    y: 50
//	  - do: expect
//	    orchestrator: edgeCreation
//	    nodes: {n1: edgeSource}
package scenario

import (
	"errors"
	"fmt"
	"os"

	"github.com/amp-labs/diagramfsm/settings"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidScenario is returned for malformed scenario documents.
	ErrInvalidScenario = errors.New("invalid scenario")
	ErrUnknownStep     = errors.New("unknown step")
)

// DefaultRadius is the radius of nodes that do not give one.
const DefaultRadius = 20

// Step kinds.
const (
	StepAdd        = "add"
	StepRemove     = "remove"
	StepClick      = "click"
	StepPress      = "press"
	StepRelease    = "release"
	StepMove       = "move"
	StepShiftDown  = "shiftDown"
	StepShiftUp    = "shiftUp"
	StepEscape     = "escape"
	StepBackground = "background"
	StepWait       = "wait"
	StepExpect     = "expect"
)

var stepKinds = map[string]bool{ //nolint:gochecknoglobals
	StepAdd: true, StepRemove: true, StepClick: true, StepPress: true, StepRelease: true,
	StepMove: true, StepShiftDown: true, StepShiftUp: true, StepEscape: true,
	StepBackground: true, StepWait: true, StepExpect: true,
}

// Node is a node placed before the first step.
type Node struct {
	ID     string  `yaml:"id"`
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Radius float64 `yaml:"radius"`
}

// Expect lists the checks of an expect step. Unset fields are not checked.
type Expect struct {
	Orchestrator   string            `mapstructure:"orchestrator"`
	Nodes          map[string]string `mapstructure:"nodes"`
	Edges          []string          `mapstructure:"edges"`
	Selected       *string           `mapstructure:"selected"`
	PreviewRemoved *int              `mapstructure:"previewRemoved"`
	Cursor         string            `mapstructure:"cursor"`
	InCooldown     *bool             `mapstructure:"inCooldown"`
}

// Step is one scripted input or check. X and Y default to the center of
// Node when Node is set.
type Step struct {
	Do     string   `mapstructure:"do"`
	Node   string   `mapstructure:"node"`
	X      *float64 `mapstructure:"x"`
	Y      *float64 `mapstructure:"y"`
	Radius float64  `mapstructure:"radius"`
	Ms     int      `mapstructure:"ms"`

	Expect `mapstructure:",squash"`
}

// Scenario is a parsed scenario file.
type Scenario struct {
	Name     string
	Path     string
	Settings settings.Editor
	Nodes    []Node
	Steps    []Step
}

type rawScenario struct {
	Name     string           `yaml:"name"`
	Settings map[string]any   `yaml:"settings"`
	Nodes    []Node           `yaml:"nodes"`
	Steps    []map[string]any `yaml:"steps"`
}

// Load reads and parses the scenario file at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	sc.Path = path
	if sc.Name == "" {
		sc.Name = path
	}

	return sc, nil
}

// Parse decodes a scenario document. Settings start from
// settings.DefaultEditor; unknown keys are errors.
func Parse(data []byte) (*Scenario, error) {
	sc, err := ParseSetup(data)
	if err != nil {
		return nil, err
	}

	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("%w: no steps", ErrInvalidScenario)
	}

	return sc, nil
}

// ParseSetup is Parse for documents that may omit steps, such as the
// initial layout of an interactive session.
func ParseSetup(data []byte) (*Scenario, error) {
	var raw rawScenario
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}

	sc := &Scenario{
		Name:     raw.Name,
		Settings: settings.DefaultEditor(),
	}

	if raw.Settings != nil {
		if err := decode(raw.Settings, &sc.Settings); err != nil {
			return nil, fmt.Errorf("%w: settings: %w", ErrInvalidScenario, err)
		}
	}

	seen := make(map[string]bool, len(raw.Nodes))

	for i, node := range raw.Nodes {
		if node.ID == "" {
			return nil, fmt.Errorf("%w: node %d has no id", ErrInvalidScenario, i)
		}

		if seen[node.ID] {
			return nil, fmt.Errorf("%w: node %q declared twice", ErrInvalidScenario, node.ID)
		}

		seen[node.ID] = true

		if node.Radius <= 0 {
			node.Radius = DefaultRadius
		}

		sc.Nodes = append(sc.Nodes, node)
	}

	for i, rawStep := range raw.Steps {
		step, err := DecodeStep(rawStep)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}

		sc.Steps = append(sc.Steps, step)
	}

	return sc, nil
}

// DecodeStep decodes one step from its generic form, as found in a
// scenario file or a JSON request body.
func DecodeStep(raw map[string]any) (Step, error) {
	var step Step
	if err := decode(raw, &step); err != nil {
		return Step{}, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}

	if !stepKinds[step.Do] {
		return Step{}, fmt.Errorf("%w: %q", ErrUnknownStep, step.Do)
	}

	return step, nil
}

func decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}

	return dec.Decode(input)
}
