package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/graph-sparsification-service/pkg/datasets"
	"github.com/gilchrisn/graph-sparsification-service/pkg/experiment"
	"github.com/gilchrisn/graph-sparsification-service/pkg/optimize"
	"github.com/gilchrisn/graph-sparsification-service/pkg/sparsify"
)

// stubRunner fakes training: time scales with the keep ratio, accuracy is constant
type stubRunner struct {
	mu    sync.Mutex
	calls []experiment.Settings
	err   error
	block chan struct{}
}

func (s *stubRunner) Run(ctx context.Context, settings experiment.Settings) (*experiment.Metrics, error) {
	s.mu.Lock()
	s.calls = append(s.calls, settings)
	s.mu.Unlock()

	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &experiment.Metrics{
		RunID:          "run",
		Dataset:        settings.Dataset.Name,
		Sparsifier:     settings.Sparsifier.Name,
		SparsityConfig: settings.Sparsifier.Sparsity,
		Seed:           settings.Seed,
		Epochs:         settings.Training.Epochs,
		Accuracy:       0.8,
		TrainTimeSec:   2 * settings.Sparsifier.Sparsity,
	}, nil
}

func (s *stubRunner) lastCall() experiment.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

type stubCatalog []datasets.Info

func (c stubCatalog) Catalog(string) []datasets.Info { return c }

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestServer(t *testing.T, runner *stubRunner) (http.Handler, *JobService) {
	t.Helper()
	jobs := NewJobService(JobConfig{MaxWorkers: 1})
	t.Cleanup(jobs.Close)
	catalog := stubCatalog{{Name: "synthetic", Source: "builtin", Available: true}}
	return NewRouter(NewHandlers(runner, catalog, jobs, "testdata")), jobs
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealthAndListings(t *testing.T) {
	h, _ := newTestServer(t, &stubRunner{})

	rec, env := do(t, h, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, env = do(t, h, http.MethodGet, "/api/v1/sparsifiers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []sparsify.Entry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 4)
	assert.Equal(t, sparsify.KindRandom, entries[0].Name)
	assert.NotEmpty(t, entries[0].Label)

	rec, env = do(t, h, http.MethodGet, "/api/v1/datasets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []datasets.Info
	require.NoError(t, json.Unmarshal(env.Data, &infos))
	assert.Equal(t, "synthetic", infos[0].Name)
}

func TestRunUsesDefaults(t *testing.T) {
	runner := &stubRunner{}
	h, _ := newTestServer(t, runner)

	rec, env := do(t, h, http.MethodPost, "/api/v1/run", "")
	require.Equal(t, http.StatusOK, rec.Code, env.Error)

	s := runner.lastCall()
	assert.Equal(t, "Cora", s.Dataset.Name)
	assert.Equal(t, "testdata", s.Dataset.Root)
	assert.Equal(t, "random", s.Sparsifier.Name)
	assert.Equal(t, 0.5, s.Sparsifier.Sparsity)
	assert.Equal(t, 200, s.Training.Epochs)
	assert.Equal(t, int64(42), s.Seed)

	var m experiment.Metrics
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.Equal(t, 0.5, m.SparsityConfig)
}

func TestRunOverridesFields(t *testing.T) {
	runner := &stubRunner{}
	h, _ := newTestServer(t, runner)

	rec, _ := do(t, h, http.MethodPost, "/api/v1/run", `{"dataset":"PubMed","sparsifier":"two_stage","sparsity":0.3,"intermediate_factor":3,"epochs":10}`)
	require.Equal(t, http.StatusOK, rec.Code)

	s := runner.lastCall()
	assert.Equal(t, "PubMed", s.Dataset.Name)
	assert.Equal(t, 0.3, s.Sparsifier.Sparsity)
	require.NotNil(t, s.Sparsifier.IntermediateFactor)
	assert.Equal(t, 3.0, *s.Sparsifier.IntermediateFactor)
	assert.Equal(t, 10, s.Training.Epochs)
	assert.Equal(t, 16, s.Model.HiddenChannels)
}

func TestLowIntermediateFactorIsClamped(t *testing.T) {
	runner := &stubRunner{}
	h, _ := newTestServer(t, runner)

	for _, factor := range []string{"0", "0.5", "-1"} {
		for _, path := range []string{"/api/v1/run", "/api/v1/optimize"} {
			body := `{"sparsifier":"two_stage","intermediate_factor":` + factor + `,"sparsity_values":[0.5],"max_accuracy_drop":1}`
			rec, env := do(t, h, http.MethodPost, path, body)
			require.Equal(t, http.StatusOK, rec.Code, "%s factor %s: %s", path, factor, env.Error)

			s := runner.lastCall()
			require.NotNil(t, s.Sparsifier.IntermediateFactor)
			sp, err := sparsify.New(s.Sparsifier.Name, s.Sparsifier.Sparsity, s.SparsifierParams())
			require.NoError(t, err)
			assert.Equal(t, 1.0, sp.(*sparsify.TwoStage).IntermediateFactor(), "%s factor %s", path, factor)
		}
	}

	rec, _ := do(t, h, http.MethodPost, "/api/v1/run", `{"sparsifier":"two_stage"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, runner.lastCall().Sparsifier.IntermediateFactor)
}

func TestRunRejectsBadInput(t *testing.T) {
	h, _ := newTestServer(t, &stubRunner{})

	rec, env := do(t, h, http.MethodPost, "/api/v1/run", `{"sparsity":1.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.Contains(t, string(env.Data), "Sparsity")

	rec, _ = do(t, h, http.MethodPost, "/api/v1/run", `{"epochs":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown dataset", fmt.Errorf("failed to load dataset: %w", datasets.ErrDatasetNotFound), http.StatusNotFound},
		{"unknown sparsifier", fmt.Errorf("failed to build sparsifier: %w", sparsify.ErrUnknownSparsifier), http.StatusBadRequest},
		{"invalid config", experiment.ErrInvalidConfig, http.StatusBadRequest},
		{"training failure", fmt.Errorf("training failed: boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestServer(t, &stubRunner{err: tt.err})
			rec, env := do(t, h, http.MethodPost, "/api/v1/run", "")
			assert.Equal(t, tt.want, rec.Code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestOptimizeSync(t *testing.T) {
	runner := &stubRunner{}
	h, _ := newTestServer(t, runner)

	rec, env := do(t, h, http.MethodPost, "/api/v1/optimize", `{"sparsity_values":[0.5],"max_accuracy_drop":1.0,"target_speedup":0.0}`)
	require.Equal(t, http.StatusOK, rec.Code, env.Error)

	var res optimize.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Len(t, res.Runs, 2)
	assert.Equal(t, 1.0, res.Baseline.SparsityConfig)
	require.NotNil(t, res.Recommended)
	assert.Equal(t, 0.5, res.Recommended.SparsityConfig)
	assert.Equal(t, 100, runner.lastCall().Training.Epochs)
}

func TestOptimizeDefaultsSweepDemoValues(t *testing.T) {
	runner := &stubRunner{}
	h, _ := newTestServer(t, runner)

	rec, env := do(t, h, http.MethodPost, "/api/v1/optimize", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res optimize.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Len(t, res.Runs, 5)
	assert.Equal(t, optimize.Constraints{MaxAccuracyDrop: 0.02, TargetSpeedup: 0.3}, res.Constraints)
	require.NotNil(t, res.Recommended)
	assert.Equal(t, 0.3, res.Recommended.SparsityConfig)
}

func TestOptimizeJobLifecycle(t *testing.T) {
	h, jobs := newTestServer(t, &stubRunner{})

	rec, env := do(t, h, http.MethodPost, "/api/v1/jobs", `{"sparsity_values":[0.5]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var job Job
	require.NoError(t, json.Unmarshal(env.Data, &job))
	require.NotEmpty(t, job.ID)

	require.Eventually(t, func() bool {
		j, err := jobs.Get(job.ID)
		return err == nil && j.Done()
	}, 5*time.Second, 10*time.Millisecond)

	rec, env = do(t, h, http.MethodGet, "/api/v1/jobs/"+job.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.Result)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/jobs/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelJob(t *testing.T) {
	runner := &stubRunner{block: make(chan struct{})}
	h, jobs := newTestServer(t, runner)

	_, env := do(t, h, http.MethodPost, "/api/v1/jobs", "")
	var job Job
	require.NoError(t, json.Unmarshal(env.Data, &job))

	rec, env := do(t, h, http.MethodPost, "/api/v1/jobs/"+job.ID+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, JobStatusCancelled, job.Status)

	// the status stays cancelled once the task observes its context
	time.Sleep(50 * time.Millisecond)
	got, err := jobs.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, got.Status)
	assert.Empty(t, got.Error)
}

func TestJobCleanup(t *testing.T) {
	jobs := NewJobService(JobConfig{MaxWorkers: 1})
	defer jobs.Close()

	job := jobs.Submit("noop", nil, func(context.Context) (interface{}, error) { return "ok", nil })
	require.Eventually(t, func() bool {
		j, _ := jobs.Get(job.ID)
		return j.Done()
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, jobs.cleanup(time.Now().Add(-time.Hour)))
	assert.Equal(t, 1, jobs.cleanup(time.Now().Add(time.Second)))
	_, err := jobs.Get(job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMetricsAndCORS(t *testing.T) {
	h, _ := newTestServer(t, &stubRunner{})

	rec, _ := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/run", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
}
