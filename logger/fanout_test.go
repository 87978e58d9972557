package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanoutHandler(t *testing.T) {
	t.Parallel()

	var debug, warn bytes.Buffer

	h := NewFanoutHandler(
		slog.NewJSONHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		nil,
		slog.NewJSONHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)

	log := slog.New(h).With("session", "s-1").WithGroup("edge")

	assert.True(t, h.Enabled(t.Context(), slog.LevelDebug))

	log.Debug("moved", "id", "e1")
	log.Warn("rejected", "id", "e2")

	all := decodeLines(t, &debug)
	require.Len(t, all, 2)
	assert.Equal(t, "s-1", all[0]["session"])
	assert.Equal(t, map[string]any{"id": "e1"}, all[0]["edge"])

	warnings := decodeLines(t, &warn)
	require.Len(t, warnings, 1)
	assert.Equal(t, "rejected", warnings[0]["msg"])
}

func TestFanoutHandlerDisabled(t *testing.T) {
	t.Parallel()

	h := NewFanoutHandler(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))

	assert.False(t, h.Enabled(t.Context(), slog.LevelInfo))
	assert.False(t, NewFanoutHandler().Enabled(t.Context(), slog.LevelError))
}

type failingHandler struct{ slog.Handler }

var errHandlerDown = errors.New("handler down")

func (failingHandler) Handle(_ context.Context, _ slog.Record) error { return errHandlerDown }

func TestFanoutHandlerJoinsErrors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	h := NewFanoutHandler(
		failingHandler{slog.NewTextHandler(&bytes.Buffer{}, nil)},
		slog.NewTextHandler(&buf, nil),
	)

	err := h.Handle(t.Context(), slog.NewRecord(time.Now(), slog.LevelInfo, "hello", 0))
	require.ErrorIs(t, err, errHandlerDown)
	assert.Contains(t, buf.String(), "hello")
}
