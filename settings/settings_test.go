package settings

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaders(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctx = WithOverride(ctx, "TEST_SETTINGS_BOOL", "yes")
	ctx = WithOverride(ctx, "TEST_SETTINGS_INT", "42")
	ctx = WithOverride(ctx, "TEST_SETTINGS_MS", "250")
	ctx = WithOverride(ctx, "TEST_SETTINGS_DUR", "1.5s")
	ctx = WithOverride(ctx, "TEST_SETTINGS_LEVEL", "warn")
	ctx = WithOverride(ctx, "TEST_SETTINGS_BAD", "maybe")

	assert.True(t, Bool(ctx, "TEST_SETTINGS_BOOL").ValueOrElse(false))
	assert.Equal(t, 42, Int(ctx, "TEST_SETTINGS_INT").ValueOrElse(0))
	assert.Equal(t, 250*time.Millisecond, Duration(ctx, "TEST_SETTINGS_MS").ValueOrElse(0))
	assert.Equal(t, 1500*time.Millisecond, Duration(ctx, "TEST_SETTINGS_DUR").ValueOrElse(0))
	assert.Equal(t, slog.LevelWarn, SlogLevel(ctx, "TEST_SETTINGS_LEVEL").ValueOrElse(slog.LevelInfo))

	_, err := Bool(ctx, "TEST_SETTINGS_BAD", Default(true)).Value()
	require.ErrorIs(t, err, ErrBadEnvVar, "a default never hides a malformed value")

	_, err = String(ctx, "TEST_SETTINGS_ABSENT").Value()
	require.ErrorIs(t, err, ErrEnvVarMissing)

	value, err := String(ctx, "TEST_SETTINGS_ABSENT", Default("fallback")).Value()
	require.NoError(t, err)
	assert.Equal(t, "fallback", value)
}

func TestOneOf(t *testing.T) {
	t.Parallel()

	ctx := WithOverride(context.Background(), "TEST_SETTINGS_POLICY", "sideways")

	_, err := String(ctx, "TEST_SETTINGS_POLICY", OneOf("up", "down")).Value()
	require.ErrorIs(t, err, ErrBadEnvVar)

	ctx = WithOverride(ctx, "TEST_SETTINGS_POLICY", "down")
	value, err := String(ctx, "TEST_SETTINGS_POLICY", OneOf("up", "down")).Value()
	require.NoError(t, err)
	assert.Equal(t, "down", value)
}

func TestLoadEditor(t *testing.T) {
	t.Parallel()

	editor, err := LoadEditor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultEditor(), editor)

	ctx := context.Background()
	ctx = WithOverride(ctx, "EDITOR_COOLDOWN_WINDOW", "0")
	ctx = WithOverride(ctx, "EDITOR_CLICK_MAX_DISTANCE", "8.5")
	ctx = WithOverride(ctx, "EDITOR_SOURCE_AFTER_COMMIT", "selected")

	editor, err = LoadEditor(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), editor.CooldownWindow)
	assert.InDelta(t, 8.5, editor.ClickMaxDistance, 0)
	assert.Equal(t, SourceAfterCommitSelected, editor.SourceAfterCommit)
	assert.Equal(t, 50, editor.HistoryLimit)
}

func TestLoadEditorReportsEveryProblem(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctx = WithOverride(ctx, "EDITOR_HISTORY_LIMIT", "-1")
	ctx = WithOverride(ctx, "EDITOR_SOURCE_AFTER_COMMIT", "vanish")

	editor, err := LoadEditor(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EDITOR_HISTORY_LIMIT")
	assert.Contains(t, err.Error(), "EDITOR_SOURCE_AFTER_COMMIT")
	assert.Equal(t, DefaultEditor(), editor)
}
