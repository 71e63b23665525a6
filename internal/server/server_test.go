package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alignsim/alignsim/internal/sim"
)

type alignedRunner struct{}

func (alignedRunner) RunTurn(ctx context.Context, state *sim.RunState) (sim.Turn, error) {
	turn := sim.Turn{
		Index:     len(state.Turns) + 1,
		User:      sim.UserTurn{Message: "user message"},
		Assistant: sim.AssistantTurn{Reply: "assistant reply"},
		Judge:     &sim.Verdict{Alignment: sim.Aligned, Explanation: "fine"},
		Goal:      "goal",
	}
	if err := state.AppendTurn(turn); err != nil {
		return sim.Turn{}, err
	}
	return turn, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *sim.Registry) {
	t.Helper()
	registry := sim.NewRegistry(alignedRunner{})
	srv := httptest.NewServer(NewServer(registry, sim.RunConfig{MaxTurns: 2}).Routes())
	t.Cleanup(srv.Close)
	return srv, registry
}

func decodeRun(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var payload struct {
		Run map[string]any `json:"run"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload.Run
}

func TestServer_StartRun(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/simulation/run", "application/json",
		strings.NewReader(`{"max_turns": 2, "auto_advance": false}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	run := decodeRun(t, resp)
	assert.Equal(t, "pending", run["status"])
	assert.EqualValues(t, 2, run["remaining_turns"])
	assert.NotEmpty(t, run["run_id"])
}

func TestServer_StartRunEmptyBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/simulation/run", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	run := decodeRun(t, resp)
	assert.Equal(t, "pending", run["status"])
}

func TestServer_GetRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/simulation/run/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_AdvanceAndExport(t *testing.T) {
	srv, registry := newTestServer(t)
	created, err := registry.CreateRun(sim.RunConfig{MaxTurns: 1})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/simulation/run/"+created.RunID+"/advance", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	run := decodeRun(t, resp)
	assert.Equal(t, "finished", run["status"])

	resp, err = http.Post(srv.URL+"/simulation/run/"+created.RunID+"/advance", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	run = decodeRun(t, resp)
	assert.Equal(t, "finished", run["status"], "terminal advance is a no-op")

	resp, err = http.Get(srv.URL + "/simulation/run/" + created.RunID + "/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}

func TestServer_AdvanceUnknownRun(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/simulation/run/missing/advance", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Cancel(t *testing.T) {
	srv, registry := newTestServer(t)
	created, err := registry.CreateRun(sim.RunConfig{MaxTurns: 2})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/simulation/run/"+created.RunID+"/cancel", "application/json", nil)
	require.NoError(t, err)
	run := decodeRun(t, resp)
	assert.Equal(t, "cancelled", run["status"])

	resp, err = http.Post(srv.URL+"/simulation/run/missing/cancel", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ListRuns(t *testing.T) {
	srv, registry := newTestServer(t)
	_, err := registry.CreateRun(sim.RunConfig{MaxTurns: 1})
	require.NoError(t, err)
	_, err = registry.CreateRun(sim.RunConfig{MaxTurns: 1})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/simulation/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Runs []map[string]any `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Len(t, payload.Runs, 2)
}
