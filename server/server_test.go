package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amp-labs/diagramfsm/configs"
	"github.com/amp-labs/diagramfsm/editor"
	"github.com/amp-labs/diagramfsm/statemachine"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const layout = `{
  "name": "http",
  "nodes": [
    {"id": "n1", "x": 0, "y": 0},
    {"id": "n2", "x": 100, "y": 0}
  ]
}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	s := New(editor.WithMachineOptions(statemachine.WithLogger(statemachine.NewSlogLogger(slogt.New(t)))))
	ts := httptest.NewServer(s.Handler())

	t.Cleanup(func() {
		ts.Close()
		s.Close(context.Background())
	})

	return ts
}

func do(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, url, strings.NewReader(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func createSession(t *testing.T, ts *httptest.Server, body string) StepsResponse {
	t.Helper()

	status, data := do(t, http.MethodPost, ts.URL+"/sessions", body)
	require.Equal(t, http.StatusCreated, status, string(data))

	var resp StepsResponse
	require.NoError(t, json.Unmarshal(data, &resp))

	return resp
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	status, data := do(t, http.MethodGet, ts.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))

	status, _ = do(t, http.MethodGet, ts.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestConfigs(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	status, data := do(t, http.MethodGet, ts.URL+"/configs", "")
	require.Equal(t, http.StatusOK, status)

	var names []string
	require.NoError(t, json.Unmarshal(data, &names))
	assert.Contains(t, names, configs.Entity)
	assert.Contains(t, names, configs.Orchestrator)

	status, data = do(t, http.MethodGet, ts.URL+"/configs/orchestrator/graph", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(data), "edgeCreation")

	status, _ = do(t, http.MethodGet, ts.URL+"/configs/nope/graph", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	created := createSession(t, ts, layout)
	id := created.Session.Session
	require.NotEmpty(t, id)
	assert.Equal(t, "idle", created.Session.Orchestrator)
	assert.Equal(t, map[string]string{"n1": "idle", "n2": "idle"}, created.Session.Nodes)
	assert.Empty(t, created.Session.Edges)

	status, data := do(t, http.MethodGet, ts.URL+"/sessions", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `["`+id+`"]`, string(data))

	steps := `[
	  {"do": "click", "node": "n1"},
	  {"do": "shiftDown"},
	  {"do": "move", "x": 50, "y": 50},
	  {"do": "move", "node": "n2"},
	  {"do": "click", "node": "n2"},
	  {"do": "wait", "ms": 300},
	  {"do": "expect", "orchestrator": "idle", "edges": ["n1->n2"]}
	]`

	status, data = do(t, http.MethodPost, ts.URL+"/sessions/"+id+"/steps", steps)
	require.Equal(t, http.StatusOK, status, string(data))

	var resp StepsResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.Equal(t, 7, resp.Applied)
	assert.Empty(t, resp.Failures)
	require.Len(t, resp.Session.Edges, 1)
	assert.Equal(t, "n1", resp.Session.Edges[0].Source)
	assert.Equal(t, "n2", resp.Session.Edges[0].Target)

	status, data = do(t, http.MethodGet, ts.URL+"/sessions/"+id, "")
	require.Equal(t, http.StatusOK, status)

	var got SessionView
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, id, got.Session)
	assert.Len(t, got.Edges, 1)

	status, _ = do(t, http.MethodDelete, ts.URL+"/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = do(t, http.MethodGet, ts.URL+"/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, http.MethodDelete, ts.URL+"/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreateSessionRunsSteps(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	created := createSession(t, ts, `
nodes:
  - {id: n1, x: 0, y: 0}
steps:
  - do: click
    node: n1
  - do: expect
    selected: n2
`)

	assert.Equal(t, 2, created.Applied)
	require.Len(t, created.Failures, 1)
	assert.Contains(t, created.Failures[0], "selected")
	assert.Equal(t, "selected", created.Session.Nodes["n1"])
}

func TestSingleStepAndStepErrors(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	id := createSession(t, ts, layout).Session.Session
	url := ts.URL + "/sessions/" + id + "/steps"

	status, data := do(t, http.MethodPost, url, `{"do": "click", "node": "n2"}`)
	require.Equal(t, http.StatusOK, status, string(data))

	var resp StepsResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.Equal(t, 1, resp.Applied)
	assert.Equal(t, "selected", resp.Session.Nodes["n2"])

	status, data = do(t, http.MethodPost, url, `[{"do": "shiftDown"}, {"do": "move", "x": 50, "y": 50}, {"do": "click", "node": "ghost"}, {"do": "escape"}]`)
	require.Equal(t, http.StatusUnprocessableEntity, status, string(data))

	resp = StepsResponse{}
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.Equal(t, 2, resp.Applied)
	assert.Contains(t, resp.Error, "ghost")
	assert.Equal(t, "edgeCreation", resp.Session.Orchestrator)

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{`},
		{name: "scalar", body: `42`},
		{name: "array of scalars", body: `[1]`},
		{name: "unknown kind", body: `{"do": "jump"}`},
		{name: "unknown field", body: `{"do": "click", "bogus": true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, _ := do(t, http.MethodPost, url, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}

	status, _ = do(t, http.MethodPost, ts.URL+"/sessions/ghost/steps", `{"do": "escape"}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreateSessionRejectsBadLayouts(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	for _, body := range []string{
		`nodes: [{x: 1}]`,
		`nodes: [{id: a}, {id: a}]`,
		`settings: {bogus: 1}`,
		`nodes: [unclosed`,
	} {
		status, _ := do(t, http.MethodPost, ts.URL+"/sessions", body)
		assert.Equal(t, http.StatusBadRequest, status, body)
	}

	status, data := do(t, http.MethodGet, ts.URL+"/sessions", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(data))
}
