package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilchouksey/exam-harvester/services"
)

type fakeRuns struct {
	stats   *services.HarvestStats
	running bool
}

func (f fakeRuns) Current() *services.HarvestStats { return f.stats }
func (f fakeRuns) Running() bool                    { return f.running }

type fakeStore struct{ err error }

func (f fakeStore) HealthCheck() error { return f.err }

func get(t *testing.T, s *StatusServer, path string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := s.GetEngine().Test(httptest.NewRequest("GET", path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	code, body := get(t, NewStatusServer(":0", fakeRuns{}, fakeStore{}), "/health")
	assert.Equal(t, 200, code)
	assert.Equal(t, true, body["success"])

	code, body = get(t, NewStatusServer(":0", fakeRuns{}, fakeStore{err: errors.New("refused")}), "/health")
	assert.Equal(t, 503, code)
	assert.Equal(t, false, body["success"])
}

func TestStatusBeforeFirstRun(t *testing.T) {
	code, body := get(t, NewStatusServer(":0", fakeRuns{}, nil), "/status")
	assert.Equal(t, 200, code)
	assert.Equal(t, "no run started yet", body["message"])
}

func TestStatusReportsCounters(t *testing.T) {
	stats := services.NewHarvestStats("run-42")
	stats.SetPhase(services.PhaseAnalyzing)
	stats.RecordOutcome(services.Outcome{Reason: services.ReasonNoBookletUpload})

	code, body := get(t, NewStatusServer(":0", fakeRuns{stats: stats, running: true}, nil), "/status")
	require.Equal(t, 200, code)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, true, data["running"])

	run := data["run"].(map[string]interface{})
	assert.Equal(t, "run-42", run["run_id"])
	assert.Equal(t, services.PhaseAnalyzing, run["phase"])
	assert.EqualValues(t, 1, run["documents_processed"])
	assert.EqualValues(t, 1, run["failures"].(map[string]interface{})[services.ReasonNoBookletUpload])
}
