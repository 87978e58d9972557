// Package configs embeds the built-in machine configurations and exposes
// them to statemachine.LoadConfig by name.
package configs

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/amp-labs/diagramfsm/statemachine"
)

// Names of the embedded configurations.
const (
	Entity       = "entity"
	Orchestrator = "orchestrator"
)

//go:embed *.yaml
var files embed.FS

// ErrNotFound is returned for a name with no embedded configuration.
var ErrNotFound = errors.New("configuration not found")

// Loader serves the embedded configurations. The zero value is ready to use.
type Loader struct{}

var _ statemachine.ConfigLoader = Loader{}

// LoadByName returns the raw YAML of name. A .yaml suffix is optional.
func (Loader) LoadByName(name string) ([]byte, error) {
	data, err := fs.ReadFile(files, strings.TrimSuffix(name, ".yaml")+".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return data, nil
}

// ListAvailable returns the embedded names, sorted.
func (Loader) ListAvailable() []string {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, strings.TrimSuffix(entry.Name(), path.Ext(entry.Name())))
	}

	sort.Strings(names)

	return names
}

// Register installs Loader as the statemachine package's name resolver.
func Register() {
	statemachine.SetConfigLoader(Loader{})
}

// Load parses and validates the embedded configuration name. Each call
// returns a fresh Config.
func Load(name string) (*statemachine.Config, error) {
	return statemachine.LoadConfigFromFS(files, strings.TrimSuffix(name, ".yaml")+".yaml")
}

// MustLoad is Load for the built-in names, which are known to be valid.
func MustLoad(name string) *statemachine.Config {
	config, err := Load(name)
	if err != nil {
		panic(err)
	}

	return config
}
