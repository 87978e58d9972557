package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"isClick":          true,
		"shiftKey":         false,
		"distance":         4,
		"elapsedMs":        150.0,
		"mode":             "edge",
		"empty":            "",
		"count":            "10",
		"node":             map[string]any{"id": "n1", "selected": true, "meta": map[string]any{"depth": 2}},
		"inEdgeCreation":   false,
		"flags.with.dots": true,
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"bare true", "isClick", true},
		{"bare false", "shiftKey", false},
		{"missing identifier", "nope", false},
		{"negation", "!shiftKey", true},
		{"double negation", "!!isClick", true},
		{"negated missing", "!nope", true},
		{"dotted path", "node.selected", true},
		{"nested dotted path", "node.meta.depth", true},
		{"missing dotted path", "node.missing", false},
		{"exact key with dots", "flags.with.dots", true},
		{"empty string is falsy", "empty", false},
		{"strict number", "distance === 4", true},
		{"strict number mismatch type", "count === 10", false},
		{"loose number and string", "count == 10", true},
		{"strict string double quotes", `mode === "edge"`, true},
		{"strict string single quotes", `mode === 'edge'`, true},
		{"strict not equal", `mode !== "select"`, true},
		{"loose not equal", "distance != 4", false},
		{"greater", "distance > 3", true},
		{"less equal", "elapsedMs <= 150", true},
		{"greater equal false", "elapsedMs >= 200", false},
		{"dotted comparison", `node.id === "n1"`, true},
		{"dotted comparison depth", "node.meta.depth > 1", true},
		{"bool literal", "isClick === true", true},
		{"null equals undefined loosely", "null == undefined", true},
		{"null not strictly undefined", "null === undefined", false},
		{"missing dotted is undefined", "node.nothing === undefined", true},
		{"raw token fallback", "mode == edge", true},
		{"and", "isClick && !shiftKey", true},
		{"and short", "isClick && shiftKey", false},
		{"or", "shiftKey || isClick", true},
		{"or binds loosest", "shiftKey && nope || isClick", true},
		{"and binds tighter", "isClick || shiftKey && nope", true},
		{"all false", "shiftKey || nope && isClick", false},
		{"comparisons in logic", "distance < 5 && elapsedMs < 200", true},
		{"negation in logic", "!inEdgeCreation && isClick", true},
		{"nan comparison", "mode > 3", false},
		{"string ordering", `mode > "a"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, Evaluate(tt.expr, data), tt.expr)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	t.Parallel()

	for _, src := range []string{"", "   ", "a &&", "|| b", "!", "a && || b"} {
		_, err := Compile(src)
		require.Error(t, err, src)
		assert.False(t, Evaluate(src, map[string]any{"a": true, "b": true}), src)
	}
}

func TestNumberNamesAreLookups(t *testing.T) {
	t.Parallel()

	data := map[string]any{"nan": "x", "inf": "y", "Infinity": 3, "limit": "inf"}

	assert.True(t, Evaluate("nan === 'x'", data))
	assert.True(t, Evaluate("inf == 'y'", data))
	assert.True(t, Evaluate("-inf == -inf", data), "unknown names fall back to the raw token")
	assert.True(t, Evaluate("Infinity === 3", data))
	assert.False(t, Evaluate("limit > 1", data), "inf is not a number")

	assert.True(t, Evaluate("x === -1.5", map[string]any{"x": -1.5}))
	assert.True(t, Evaluate("x === .5", map[string]any{"x": 0.5}))
	assert.True(t, Evaluate("x == '2e3'", map[string]any{"x": 2000}))
}

func TestQuotedOperatorsSplitTheExpression(t *testing.T) {
	t.Parallel()

	assert.False(t, Evaluate("label === 'a||b'", map[string]any{"label": "a||b"}))
	assert.False(t, Evaluate(`label === "a&&b"`, map[string]any{"label": "a&&b"}))
	assert.True(t, Evaluate("label === 'a b'", map[string]any{"label": "a b"}))
}

func TestCompiledExprIsReusable(t *testing.T) {
	t.Parallel()

	expr := MustCompile("isClick && !inEdgeCreationMode")
	assert.Equal(t, "isClick && !inEdgeCreationMode", expr.String())

	assert.True(t, expr.Eval(map[string]any{"isClick": true}))
	assert.False(t, expr.Eval(map[string]any{"isClick": true, "inEdgeCreationMode": true}))
	assert.False(t, expr.Eval(nil))
}

func TestLookup(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"a":     map[string]string{"b": "c"},
		"flags": map[string]bool{"on": true},
	}

	v, ok := Lookup(data, "a.b")
	require.True(t, ok)
	assert.Equal(t, "c", v)

	v, ok = Lookup(data, "flags.on")
	require.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = Lookup(data, "a.b.c")
	assert.False(t, ok)
}
