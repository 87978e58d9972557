package statemachine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  ActionSpec
	}{
		{"highlight", Handler("highlight")},
		{"selectHighlight", Handler("selectHighlight")},
		{"handler:custom", Handler("custom")},
		{"addFlag:selected", AddFlag("selected")},
		{"removeFlag:edge-source", RemoveFlag("edge-source")},
		{"timeout:300", ActionSpec{Kind: ActionKindTimeout, DelayMs: 300}},
		{"timeout:300:cooldownExpired", Timeout(300*time.Millisecond, "cooldownExpired")},
		{"setTimeout:50", ActionSpec{Kind: ActionKindTimeout, DelayMs: 50}},
		{"clearTimeout", ClearTimeout()},
		{"callback:notify", ActionSpec{Kind: ActionKindCallback, Name: "notify"}},
		{"log:entered cooldown", ActionSpec{Kind: ActionKindLog, Message: "entered cooldown"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParseAction(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseActionErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  error
	}{
		{"", ErrInvalidActionSpec},
		{"addFlag:", ErrInvalidActionSpec},
		{"timeout:soon", ErrInvalidActionSpec},
		{"timeout:-5", ErrInvalidActionSpec},
		{"callback:", ErrInvalidActionSpec},
		{"teleport:home", ErrUnknownActionKind},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			_, err := ParseAction(tt.input)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeActionMapping(t *testing.T) {
	t.Parallel()

	spec, err := DecodeAction(map[string]any{"kind": "timeout", "delayMs": "250", "onFire": "expire"})
	require.NoError(t, err)
	assert.Equal(t, Timeout(250*time.Millisecond, "expire"), spec)

	spec, err = DecodeAction(map[string]any{"name": "selectHighlight"})
	require.NoError(t, err)
	assert.Equal(t, Handler("selectHighlight"), spec)

	_, err = DecodeAction(map[string]any{"kind": "addFlag", "flag": "x", "colour": "red"})
	require.ErrorIs(t, err, ErrInvalidActionSpec)

	_, err = DecodeAction(42)
	require.ErrorIs(t, err, ErrInvalidActionSpec)
}

func TestActionListYAML(t *testing.T) {
	t.Parallel()

	var holder struct {
		OnEnter ActionList `yaml:"onEnter"`
		OnExit  ActionList `yaml:"onExit"`
	}

	require.NoError(t, yaml.Unmarshal([]byte(`
onEnter:
  - addFlag:selected
  - {kind: log, message: hello, level: debug}
onExit: removeFlag:selected
`), &holder))

	assert.Equal(t, 2, holder.OnEnter.Len())
	assert.False(t, holder.OnEnter.Malformed)
	assert.True(t, holder.OnExit.Malformed)
	assert.Empty(t, holder.OnEnter.validate())

	out, err := yaml.Marshal(holder.OnEnter)
	require.NoError(t, err)
	assert.Contains(t, string(out), "kind: addFlag")
}

func TestActionSpecLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "selectHighlight", Handler("selectHighlight").Label())
	assert.Equal(t, "addFlag:selected", AddFlag("selected").Label())
	assert.Equal(t, "timeout", Timeout(time.Second, "x").Label())
	assert.Equal(t, time.Second, Timeout(time.Second, "x").Delay())
}
