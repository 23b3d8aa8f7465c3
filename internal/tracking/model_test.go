package tracking

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrannas/mlflow-client/internal/models"
)

// stubModel is a predict-capable model owning its wire format.
type stubModel struct {
	Weights []float64
}

func (m *stubModel) Predict(input any) (any, error) {
	return m.Weights, nil
}

func (m *stubModel) MarshalBinary() ([]byte, error) {
	return json.Marshal(m.Weights)
}

func startedRun(t *testing.T, backend *LocalBackend) *models.Run {
	t.Helper()
	run, err := backend.StartRun(context.Background(), "exp1")
	require.NoError(t, err)
	return run
}

func TestLogModelPyFuncMissingEntryPoint(t *testing.T) {
	backend := newLocalBackend(t)
	run := startedRun(t, backend)

	desc := models.ModelDescriptor{Path: "somewhere/model.bin"}
	err := backend.LogModel(context.Background(), run, desc, "model")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// Validation must reject before anything touches disk.
	_, statErr := os.Stat(filepath.Join(backend.Root(), "exp1", run.ID, "artifacts", "model"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLogModelPyFuncRejectsInMemoryModel(t *testing.T) {
	backend := newLocalBackend(t)
	run := startedRun(t, backend)

	desc := models.ModelDescriptor{
		Model:          &stubModel{},
		Path:           "some/path",
		Library:        models.FrameworkPyFunc,
		LoadEntryPoint: "stub.load",
	}
	err := backend.LogModel(context.Background(), run, desc, "model")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLogModelSKLearnRequiresObject(t *testing.T) {
	backend := newLocalBackend(t)
	run := startedRun(t, backend)

	err := backend.LogModel(context.Background(), run, models.ModelDescriptor{Library: models.FrameworkSKLearn}, "model")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = backend.LogModel(context.Background(), run, models.ModelDescriptor{
		Library: models.FrameworkSKLearn,
		Model:   &stubModel{},
		Path:    "also/a/path",
	}, "model")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLogModelUnrecognizedFramework(t *testing.T) {
	backend := newLocalBackend(t)
	run := startedRun(t, backend)

	err := backend.LogModel(context.Background(), run, models.ModelDescriptor{
		Library: models.Framework("tensorflow"),
		Model:   &stubModel{},
	}, "model")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLogModelUnimplementedFramework(t *testing.T) {
	backend := newLocalBackend(t)
	run := startedRun(t, backend)

	err := backend.LogModel(context.Background(), run, models.ModelDescriptor{
		Library: models.FrameworkKeras,
		Model:   &stubModel{},
	}, "model")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "keras")
}

func TestLogModelSKLearn(t *testing.T) {
	backend := newLocalBackend(t)
	run := startedRun(t, backend)

	desc := models.ModelDescriptor{
		Library: models.FrameworkSKLearn,
		Model:   &stubModel{Weights: []float64{0.5, 1.5}},
	}
	require.NoError(t, backend.LogModel(context.Background(), run, desc, "dummy"))

	modelDir := filepath.Join(backend.Root(), "exp1", run.ID, "artifacts", "dummy")
	content, err := os.ReadFile(filepath.Join(modelDir, "model.bin"))
	require.NoError(t, err)
	assert.JSONEq(t, "[0.5,1.5]", string(content))

	meta, err := ReadModelMetadata(modelDir)
	require.NoError(t, err)
	assert.Equal(t, models.FrameworkSKLearn, meta.Library)
	assert.Equal(t, run.ID, meta.RunID)
	assert.Equal(t, "model.bin", meta.DataPath)
}

func TestLogModelPyFuncRoundTrip(t *testing.T) {
	backend := newLocalBackend(t)
	run := startedRun(t, backend)

	src := filepath.Join(t.TempDir(), "weights.json")
	require.NoError(t, os.WriteFile(src, []byte("[2.5]"), 0644))

	RegisterLoader("stub.load_model", func(path string) (models.Model, error) {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var weights []float64
		if err := json.Unmarshal(content, &weights); err != nil {
			return nil, err
		}
		return &stubModel{Weights: weights}, nil
	})

	desc := models.ModelDescriptor{
		Path:           src,
		Library:        models.FrameworkPyFunc,
		LoadEntryPoint: "stub.load_model",
	}
	require.NoError(t, backend.LogModel(context.Background(), run, desc, "model"))

	modelDir := filepath.Join(backend.Root(), "exp1", run.ID, "artifacts", "model")
	meta, err := ReadModelMetadata(modelDir)
	require.NoError(t, err)
	assert.Equal(t, "stub.load_model", meta.LoadEntryPoint)
	assert.Equal(t, filepath.Join("data", "weights.json"), meta.DataPath)

	model, err := LoadModel(modelDir)
	require.NoError(t, err)

	out, err := model.Predict(nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5}, out)
}

func TestLogModelPyFuncDirectory(t *testing.T) {
	backend := newLocalBackend(t)
	run := startedRun(t, backend)

	srcDir := filepath.Join(t.TempDir(), "bundle")
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "sub", "b.txt"), []byte("b"), 0644))

	desc := models.ModelDescriptor{
		Path:           srcDir,
		LoadEntryPoint: "stub.load_dir",
	}
	require.NoError(t, backend.LogModel(context.Background(), run, desc, "model"))

	dataDir := filepath.Join(backend.Root(), "exp1", run.ID, "artifacts", "model", "data", "bundle")
	for _, name := range []string{"a.txt", filepath.Join("sub", "b.txt")} {
		_, err := os.Stat(filepath.Join(dataDir, name))
		assert.NoError(t, err)
	}
}

func TestLoadModelUnknownEntryPoint(t *testing.T) {
	backend := newLocalBackend(t)
	run := startedRun(t, backend)

	src := filepath.Join(t.TempDir(), "weights.json")
	require.NoError(t, os.WriteFile(src, []byte("[]"), 0644))

	desc := models.ModelDescriptor{
		Path:           src,
		LoadEntryPoint: "nobody.registered_this",
	}
	require.NoError(t, backend.LogModel(context.Background(), run, desc, "model"))

	_, err := LoadModel(filepath.Join(backend.Root(), "exp1", run.ID, "artifacts", "model"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLoadModelNonPyFunc(t *testing.T) {
	backend := newLocalBackend(t)
	run := startedRun(t, backend)

	desc := models.ModelDescriptor{
		Library: models.FrameworkSKLearn,
		Model:   &stubModel{Weights: []float64{1}},
	}
	require.NoError(t, backend.LogModel(context.Background(), run, desc, "model"))

	_, err := LoadModel(filepath.Join(backend.Root(), "exp1", run.ID, "artifacts", "model"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
