package statemachine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer creates a test tracer with an in-memory exporter.
func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
	)

	oldProvider := otel.GetTracerProvider()

	otel.SetTracerProvider(tp)

	t.Cleanup(func() {
		otel.SetTracerProvider(oldProvider)
	})

	return exporter
}

func spanAttributes(span tracetest.SpanStub) map[string]any {
	out := make(map[string]any)
	for _, attr := range span.Attributes {
		out[string(attr.Key)] = attr.Value.AsInterface()
	}

	return out
}

// Cannot use t.Parallel() because setupTestTracer modifies the global OTEL tracer provider.
//
//nolint:paralleltest // Test modifies global OTEL tracer provider
func TestHandleEventSpans(t *testing.T) {
	exporter := setupTestTracer(t)

	mgr, _, _ := newTestManager(t)
	require.True(t, mgr.HandleEvent(context.Background(), "click", nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)

	byName := make(map[string]tracetest.SpanStub)
	for _, span := range spans {
		byName[span.Name] = span
	}

	event, ok := byName["statemachine.handle_event"]
	require.True(t, ok)

	attrs := spanAttributes(event)
	assert.Equal(t, "toggle", attrs["machine"])
	assert.Equal(t, "lamp-1", attrs["machine_id"])
	assert.Equal(t, "click", attrs["event"])
	assert.Equal(t, "off", attrs["state"])
	assert.Equal(t, codes.Ok, event.Status.Code)

	flag, ok := byName["action.addFlag:lit"]
	require.True(t, ok)
	assert.Equal(t, event.SpanContext.SpanID(), flag.Parent.SpanID())
	assert.Equal(t, "enter", spanAttributes(flag)["phase"])

	_, ok = byName["action.timeout"]
	assert.True(t, ok)
}

//nolint:paralleltest // Test modifies global OTEL tracer provider
func TestFailedActionSpanRecordsError(t *testing.T) {
	exporter := setupTestTracer(t)

	exec, _, _ := newTestExecutor(t, map[string]StateConfig{
		"b": {OnEnter: Actions(Handler("missing"))},
	})
	exec.ExecuteTransition(context.Background(), StateChange{To: "b"})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "action.missing", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.NotEmpty(t, spans[0].Events)
}

//nolint:paralleltest // Test modifies global OTEL tracer provider
func TestRejectedEventSpan(t *testing.T) {
	exporter := setupTestTracer(t)

	config := loadToggleConfig(t)
	config.EventMapping.Rules = append(config.EventMapping.Rules, EventRule{
		Event:      "kick",
		Conditions: []ConditionRule{{State: "off", Action: "switchOff"}},
	})

	mgr, err := NewManager("lamp-3", config, WithLogger(NopLogger{}))
	require.NoError(t, err)
	t.Cleanup(mgr.Destroy)

	assert.False(t, mgr.HandleEvent(context.Background(), "kick", nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}
