package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/amp-labs/diagramfsm/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}

		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))

		out = append(out, rec)
	}

	return out
}

func TestGet(t *testing.T) { //nolint:paralleltest
	var buf bytes.Buffer

	ConfigureLoggingWithOptions(Options{Subsystem: "editor", JSON: true, Output: &buf})

	Get().Info("plain")

	ctx := WithSession(WithSubsystem(t.Context(), "orchestrator"), "s-1")
	ctx = With(ctx, "node", "n1")
	ctx = With(ctx, "edge", "e1")
	Get(ctx).Info("enriched")

	Get(WithMuted(ctx, true)).Error("never printed")

	records := decodeLines(t, &buf)
	require.Len(t, records, 2)

	assert.Equal(t, "editor", records[0]["subsystem"])
	assert.NotContains(t, records[0], "session")

	assert.Equal(t, "orchestrator", records[1]["subsystem"])
	assert.Equal(t, "s-1", records[1]["session"])
	assert.Equal(t, "n1", records[1]["node"])
	assert.Equal(t, "e1", records[1]["edge"])
}

func TestConfigureLogging(t *testing.T) { //nolint:paralleltest
	var buf bytes.Buffer

	ctx := settings.WithOverride(t.Context(), "LOG_JSON", "true")
	ctx = settings.WithOverride(ctx, "LOG_LEVEL", "warn")

	logger, err := ConfigureLogging(ctx, "fsmctl", WithOutput(&buf))
	require.NoError(t, err)

	logger.Info("filtered")
	logger.Warn("kept")

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "kept", records[0]["msg"])
	assert.Equal(t, "fsmctl", GetSubsystem(context.Background()))

	_, err = ConfigureLogging(settings.WithOverride(t.Context(), "LOG_OUTPUT", "syslog"), "fsmctl")
	require.ErrorIs(t, err, ErrInvalidLogOutput)

	ConfigureLoggingWithOptions(Options{Subsystem: "test", MinLevel: slog.LevelInfo, Output: &buf})
}

func TestNilContext(t *testing.T) {
	t.Parallel()

	//nolint:staticcheck // nil contexts are tolerated on purpose
	ctx := WithSession(nil, "s")
	session, ok := GetSession(ctx)
	assert.True(t, ok)
	assert.Equal(t, "s", session)

	_, ok = GetSession(nil) //nolint:staticcheck
	assert.False(t, ok)

	assert.NotNil(t, Get(nil)) //nolint:staticcheck
}
