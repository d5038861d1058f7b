package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/graph-sparsification-service/pkg/experiment"
	"github.com/gilchrisn/graph-sparsification-service/pkg/optimize"
	"github.com/gilchrisn/graph-sparsification-service/pkg/sparsify"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStrategiesCommand(t *testing.T) {
	out, err := execute(t, "strategies")
	require.NoError(t, err)

	var entries []sparsify.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Len(t, entries, 4)

	out, err = execute(t, "strategies", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "name: two_stage")

	_, err = execute(t, "strategies", "-o", "xml")
	assert.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	out, err := execute(t, "run",
		"--dataset", "synthetic-small",
		"--sparsifier", "degree",
		"--sparsity", "0.5",
		"--epochs", "5",
		"--log-level", "disabled")
	require.NoError(t, err)

	var m experiment.Metrics
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, "synthetic-small", m.Dataset)
	assert.Equal(t, "degree", m.Sparsifier)
	assert.Equal(t, m.NumEdgesBefore/2, m.NumEdgesAfter)
	assert.Equal(t, 5, m.Epochs)
	assert.Equal(t, int64(42), m.Seed)
}

func TestRunCommandWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
seed: 3
dataset:
  name: synthetic-small
sparsifier:
  name: random
  sparsity: 1.0
training:
  epochs: 50
`), 0644))
	runLog := filepath.Join(dir, "runs.jsonl")

	out, err := execute(t, "run", "--config", path, "--epochs", "4", "--run-log", runLog, "--log-level", "disabled", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "seed: 3")
	assert.Contains(t, out, "epochs: 4")
	assert.Contains(t, out, "sparsity_ratio: 1")

	data, err := os.ReadFile(runLog)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(data, []byte("\n")))
}

func TestRunCommandRejectsInvalidConfig(t *testing.T) {
	_, err := execute(t, "run", "--dataset", "synthetic-small", "--sparsity", "1.5", "--log-level", "disabled")
	assert.ErrorIs(t, err, experiment.ErrInvalidConfig)

	_, err = execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, experiment.ErrInvalidConfig)
}

func TestOptimizeCommand(t *testing.T) {
	out, err := execute(t, "optimize",
		"--dataset", "synthetic-small",
		"--epochs", "3",
		"--values", "0.5",
		"--max-drop", "1",
		"--target-speedup", "-10",
		"--workers", "2",
		"--log-level", "disabled")
	require.NoError(t, err)

	var res optimize.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Runs, 2)
	assert.Equal(t, 1.0, res.Baseline.SparsityConfig)
	require.NotNil(t, res.Recommended)
	assert.Equal(t, 0.5, res.Recommended.SparsityConfig)
}

func TestDatasetsCommand(t *testing.T) {
	out, err := execute(t, "datasets", "--root", t.TempDir(), "--stats")
	require.NoError(t, err)

	var reports []struct {
		Name      string `json:"name"`
		Available bool   `json:"available"`
		Stats     *struct {
			NumNodes int `json:"num_nodes"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &reports))

	byName := make(map[string]int)
	for i, r := range reports {
		byName[r.Name] = i
	}
	small := reports[byName["synthetic-small"]]
	require.NotNil(t, small.Stats)
	assert.Equal(t, 150, small.Stats.NumNodes)

	cora := reports[byName["cora"]]
	assert.False(t, cora.Available)
	assert.Nil(t, cora.Stats)
}
