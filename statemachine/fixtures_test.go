package statemachine

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/amp-labs/diagramfsm/clock"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
)

const toggleConfigYAML = `
name: toggle
description: light switch with an auto-off timer
stateMachine:
  initialState: "off"
  states:
    "off":
      description: lamp is dark
      onEnter:
        - removeFlag:lit
    "on":
      description: lamp is lit
      onEnter:
        - addFlag:lit
        - kind: timeout
          delayMs: 500
          onFire: autoOff
      onExit:
        - clearTimeout
    broken:
      onEnter: not-a-list
  transitions:
    "off":
      switchOn: "on"
      smash: broken
    "on":
      switchOff: "off"
      autoOff: "off"
    broken: {}
eventMapping:
  rules:
    - event: click
      conditions:
        - state: "off"
          condition: "!disabled"
          action: switchOn
        - state: "on"
          action: switchOff
    - event: hammer
      conditions:
        - state: "off"
          condition: "force >= 10"
          action: smash
        - state: "off"
          action: switchOn
`

func loadToggleConfig(t *testing.T) *Config {
	t.Helper()

	config, err := LoadConfigFromBytes([]byte(toggleConfigYAML))
	require.NoError(t, err)

	return config
}

type flagTarget struct {
	mu    sync.Mutex
	flags map[string]bool
	log   []string
}

func newFlagTarget() *flagTarget {
	return &flagTarget{flags: make(map[string]bool)}
}

func (f *flagTarget) AddFlag(flag string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.flags[flag] = true
	f.log = append(f.log, "+"+flag)
}

func (f *flagTarget) RemoveFlag(flag string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.flags, flag)
	f.log = append(f.log, "-"+flag)
}

func (f *flagTarget) active() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.flags))
	for flag := range f.flags {
		out = append(out, flag)
	}

	sort.Strings(out)

	return out
}

func newTestManager(t *testing.T) (*Manager, *clock.Fake, *flagTarget) {
	t.Helper()

	fake := clock.NewFake(time.Time{})
	target := newFlagTarget()

	mgr, err := NewManager("lamp-1", loadToggleConfig(t),
		WithClock(fake),
		WithTarget(target),
		WithLogger(NewSlogLogger(slogt.New(t))),
	)
	require.NoError(t, err)
	t.Cleanup(mgr.Destroy)

	return mgr, fake, target
}
