package tracking

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrannas/mlflow-client/internal/models"
)

func newLocalBackend(t *testing.T) *LocalBackend {
	t.Helper()
	backend, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	return backend
}

func TestLocalStartRun(t *testing.T) {
	backend := newLocalBackend(t)
	ctx := context.Background()

	run, err := backend.StartRun(ctx, "exp1")
	require.NoError(t, err)

	assert.Equal(t, "exp1", run.Experiment)
	assert.Equal(t, models.RunStatusRunning, run.Status)
	assert.Nil(t, run.EndTime)

	_, err = uuid.Parse(run.ID)
	assert.NoError(t, err, "run identity must be a UUID")

	info, err := os.Stat(filepath.Join(backend.Root(), "exp1", run.ID, "artifacts"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLocalStartRunEmptyExperiment(t *testing.T) {
	backend := newLocalBackend(t)
	_, err := backend.StartRun(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLocalRunScenario(t *testing.T) {
	backend := newLocalBackend(t)
	ctx := context.Background()

	run, err := backend.StartRun(ctx, "exp1")
	require.NoError(t, err)

	require.NoError(t, backend.LogParam(ctx, run, "alpha", "0.05"))
	require.NoError(t, backend.LogMetric(ctx, run, "loss", 3.30, nil))
	require.NoError(t, backend.EndRun(ctx, run, models.RunStatusSuccess))

	runDir := filepath.Join(backend.Root(), "exp1", run.ID)

	var params map[string]string
	content, err := os.ReadFile(filepath.Join(runDir, "params.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(content, &params))
	assert.Equal(t, map[string]string{"alpha": "0.05"}, params)

	var metrics map[string][]models.MetricRecording
	content, err = os.ReadFile(filepath.Join(runDir, "metrics.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(content, &metrics))
	require.Len(t, metrics["loss"], 1)
	assert.Equal(t, 3.30, metrics["loss"][0].Value)
	assert.Nil(t, metrics["loss"][0].Step)

	stored, err := backend.ReadMeta(run)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, stored.Status)
	assert.NotNil(t, stored.EndTime)
}

func TestLocalParamLastWriteWins(t *testing.T) {
	backend := newLocalBackend(t)
	ctx := context.Background()

	run, err := backend.StartRun(ctx, "exp1")
	require.NoError(t, err)

	require.NoError(t, backend.LogParam(ctx, run, "alpha", "0.05"))
	require.NoError(t, backend.LogParam(ctx, run, "alpha", "0.10"))

	var params map[string]string
	content, err := os.ReadFile(filepath.Join(backend.Root(), "exp1", run.ID, "params.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(content, &params))
	assert.Equal(t, "0.10", params["alpha"])
}

func TestLocalMetricSequenceAppendOnly(t *testing.T) {
	backend := newLocalBackend(t)
	ctx := context.Background()

	run, err := backend.StartRun(ctx, "exp1")
	require.NoError(t, err)

	step := int64(1)
	require.NoError(t, backend.LogMetric(ctx, run, "loss", 3.0, nil))
	require.NoError(t, backend.LogMetric(ctx, run, "loss", 2.0, &step))

	var metrics map[string][]models.MetricRecording
	content, err := os.ReadFile(filepath.Join(backend.Root(), "exp1", run.ID, "metrics.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(content, &metrics))

	require.Len(t, metrics["loss"], 2)
	assert.Equal(t, 3.0, metrics["loss"][0].Value)
	assert.Equal(t, 2.0, metrics["loss"][1].Value)
	require.NotNil(t, metrics["loss"][1].Step)
	assert.Equal(t, int64(1), *metrics["loss"][1].Step)
}

func TestLocalEmptyKeys(t *testing.T) {
	backend := newLocalBackend(t)
	ctx := context.Background()

	run, err := backend.StartRun(ctx, "exp1")
	require.NoError(t, err)

	assert.ErrorIs(t, backend.LogParam(ctx, run, "", "v"), ErrInvalidArgument)
	assert.ErrorIs(t, backend.LogMetric(ctx, run, "", 1.0, nil), ErrInvalidArgument)
}

func TestLocalLoggingAfterClose(t *testing.T) {
	backend := newLocalBackend(t)
	ctx := context.Background()

	run, err := backend.StartRun(ctx, "exp1")
	require.NoError(t, err)
	require.NoError(t, backend.EndRun(ctx, run, models.RunStatusSuccess))

	assert.ErrorIs(t, backend.LogParam(ctx, run, "alpha", "0.05"), ErrRunNotActive)
	assert.ErrorIs(t, backend.LogMetric(ctx, run, "loss", 1.0, nil), ErrRunNotActive)
	assert.ErrorIs(t, backend.LogArtifact(ctx, run, "some-file", ""), ErrRunNotActive)
}

func TestLocalEndRunIdempotent(t *testing.T) {
	backend := newLocalBackend(t)
	ctx := context.Background()

	run, err := backend.StartRun(ctx, "exp1")
	require.NoError(t, err)

	require.NoError(t, backend.EndRun(ctx, run, models.RunStatusSuccess))
	require.NoError(t, backend.EndRun(ctx, run, models.RunStatusSuccess))
	assert.ErrorIs(t, backend.EndRun(ctx, run, models.RunStatusFailed), ErrRunAlreadyClosed)
}

func TestLocalEndRunNonTerminalStatus(t *testing.T) {
	backend := newLocalBackend(t)
	ctx := context.Background()

	run, err := backend.StartRun(ctx, "exp1")
	require.NoError(t, err)
	assert.ErrorIs(t, backend.EndRun(ctx, run, models.RunStatusRunning), ErrInvalidArgument)
}

func TestLocalLogArtifact(t *testing.T) {
	backend := newLocalBackend(t)
	ctx := context.Background()

	run, err := backend.StartRun(ctx, "exp1")
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "train_data.npy")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0644))

	require.NoError(t, backend.LogArtifact(ctx, run, src, ""))
	require.NoError(t, backend.LogArtifact(ctx, run, src, "inputs"))

	artifacts := filepath.Join(backend.Root(), "exp1", run.ID, "artifacts")
	for _, name := range []string{"train_data.npy", filepath.Join("inputs", "train_data.npy")} {
		content, err := os.ReadFile(filepath.Join(artifacts, name))
		require.NoError(t, err)
		assert.Equal(t, []byte("data"), content)
	}
}

func TestLocalNamespaceIsolation(t *testing.T) {
	backend := newLocalBackend(t)
	ctx := context.Background()

	runA, err := backend.StartRun(ctx, "expA")
	require.NoError(t, err)
	runB, err := backend.StartRun(ctx, "expB")
	require.NoError(t, err)

	require.NoError(t, backend.LogParam(ctx, runA, "alpha", "1"))
	require.NoError(t, backend.LogParam(ctx, runB, "beta", "2"))

	var paramsA map[string]string
	content, err := os.ReadFile(filepath.Join(backend.Root(), "expA", runA.ID, "params.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(content, &paramsA))

	assert.Contains(t, paramsA, "alpha")
	assert.NotContains(t, paramsA, "beta")

	_, err = os.Stat(filepath.Join(backend.Root(), "expB", runA.ID))
	assert.True(t, os.IsNotExist(err))
}
