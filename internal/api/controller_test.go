package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/mcmigrate/internal/datastore"
	"github.com/tphakala/mcmigrate/internal/errors"
	"github.com/tphakala/mcmigrate/internal/migration"
	"github.com/tphakala/mcmigrate/internal/testutil"
)

type fakeRunner struct {
	mu      sync.Mutex
	running bool
	paused  bool
}

func (f *fakeRunner) Status() migration.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return migration.Status{Running: f.running, Paused: f.paused, CurrentStage: "mailchimp_list_group", Processed: 7}
}

func (f *fakeRunner) Pause() {
	f.mu.Lock()
	f.paused = true
	f.mu.Unlock()
}

func (f *fakeRunner) Resume() {
	f.mu.Lock()
	f.paused = false
	f.mu.Unlock()
}

func setupServer(t *testing.T, runner *fakeRunner) (*Server, *datastore.StateManager) {
	t.Helper()

	state := datastore.NewStateManager(testutil.OpenSQLite(t, "api.db").DB(), "api-run", nil)
	srv, err := NewServer(Config{
		Listen: "127.0.0.1:0",
		Runner: runner,
		Stages: state,
		Logger: testutil.QuietLogger(),
	})
	require.NoError(t, err)
	return srv, state
}

func doRequest(t *testing.T, e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGetStatus(t *testing.T) {
	srv, state := setupServer(t, &fakeRunner{running: true})
	ctx := t.Context()
	_, err := state.EnsureStage(ctx, "mailchimp_list_group")
	require.NoError(t, err)
	require.NoError(t, state.StartStage(ctx, "mailchimp_list_group", 4))
	require.NoError(t, state.IncrementProgress(ctx, "mailchimp_list_group", 2, 1))

	rec := doRequest(t, srv.Echo(), http.MethodGet, "/api/v1/migration/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Runner.Running)
	assert.Equal(t, int64(7), resp.Runner.Processed)
	require.Len(t, resp.Stages, 1)
	assert.Equal(t, "running", resp.Stages[0].Status)
	assert.Equal(t, "api-run", resp.Stages[0].RunID)
	assert.InDelta(t, 25.0, resp.Stages[0].ProgressPercent, 0.001)
}

func TestGetErrors(t *testing.T) {
	srv, state := setupServer(t, &fakeRunner{})
	ctx := t.Context()
	_, err := state.EnsureStage(ctx, "mailchimp_list_group")
	require.NoError(t, err)
	row := uint(3)
	cause := errors.Newf("could not migrate line 3").Category(errors.CategoryMapping).Build()
	require.NoError(t, state.RecordError(ctx, "mailchimp_list_group", &row, cause))
	require.NoError(t, state.RecordError(ctx, "mailchimp_list_group", nil, errors.NewStd("second")))

	rec := doRequest(t, srv.Echo(), http.MethodGet, "/api/v1/migration/errors?stage=mailchimp_list_group")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []ErrorEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "could not migrate line 3", entries[0].Message)
	assert.Equal(t, "mapping", entries[0].Category)
	require.NotNil(t, entries[0].RowID)
	assert.Equal(t, uint(3), *entries[0].RowID)
	assert.Nil(t, entries[1].RowID)

	rec = doRequest(t, srv.Echo(), http.MethodGet, "/api/v1/migration/errors?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)

	rec = doRequest(t, srv.Echo(), http.MethodGet, "/api/v1/migration/errors?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Len(t, errResp.CorrelationID, 8)
}

func TestPauseResume(t *testing.T) {
	runner := &fakeRunner{running: true}
	srv, _ := setupServer(t, runner)

	rec := doRequest(t, srv.Echo(), http.MethodPost, "/api/v1/migration/pause")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, runner.Status().Paused)

	rec = doRequest(t, srv.Echo(), http.MethodPost, "/api/v1/migration/resume")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ActionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.False(t, runner.Status().Paused)
}

func TestPause_NotRunning(t *testing.T) {
	srv, _ := setupServer(t, &fakeRunner{})

	rec := doRequest(t, srv.Echo(), http.MethodPost, "/api/v1/migration/pause")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealth(t *testing.T) {
	srv, _ := setupServer(t, &fakeRunner{})
	rec := doRequest(t, srv.Echo(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Config{Listen: "127.0.0.1:0"})
	require.Error(t, err)

	_, state := setupServer(t, &fakeRunner{})
	_, err = NewServer(Config{Listen: "8087", Runner: &fakeRunner{}, Stages: state})
	require.Error(t, err)
}
