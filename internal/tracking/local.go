package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Tyrannas/mlflow-client/internal/models"
)

const (
	runsDirName    = "mlruns"
	metaFileName   = "meta.yaml"
	paramsFileName = "params.json"
	metricsFile    = "metrics.json"
	artifactsDir   = "artifacts"
)

// runMeta is the per-run sidecar holding run state and the environment the
// run was produced by.
type runMeta struct {
	Run       models.Run `yaml:"run"`
	GoVersion string     `yaml:"go_version"`
	OS        string     `yaml:"os"`
	Arch      string     `yaml:"arch"`
}

// LocalBackend persists runs without any tracking server, one directory per
// run under <root>/mlruns/<experiment>/<run-id>. Distinct runs own disjoint
// directories, so concurrent run contexts need no cross-run locking.
type LocalBackend struct {
	root string
}

// NewLocalBackend roots the store at path, defaulting to the current working
// directory. The root must be creatable and writable.
func NewLocalBackend(path string) (*LocalBackend, error) {
	if path == "" {
		path = "."
	}
	root := filepath.Join(path, runsDirName)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", ErrBackendUnavailable, root, err)
	}
	return &LocalBackend{root: root}, nil
}

// Root returns the mlruns directory this backend writes under.
func (b *LocalBackend) Root() string {
	return b.root
}

func (b *LocalBackend) runDir(run *models.Run) string {
	return filepath.Join(b.root, run.Experiment, run.ID)
}

func (b *LocalBackend) StartRun(ctx context.Context, experiment string) (*models.Run, error) {
	if experiment == "" {
		return nil, fmt.Errorf("%w: experiment name is empty", ErrInvalidArgument)
	}

	run := &models.Run{
		ID:         uuid.NewString(),
		Experiment: experiment,
		Status:     models.RunStatusRunning,
		StartTime:  time.Now(),
	}

	dir := b.runDir(run)
	if err := os.MkdirAll(filepath.Join(dir, artifactsDir), 0755); err != nil {
		return nil, fmt.Errorf("%w: creating run directory %s: %v", ErrBackendUnavailable, dir, err)
	}
	if err := b.writeMeta(run); err != nil {
		return nil, err
	}
	return run, nil
}

func (b *LocalBackend) LogParam(ctx context.Context, run *models.Run, key, value string) error {
	if err := checkActive(run); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: parameter key is empty", ErrInvalidArgument)
	}

	params := map[string]string{}
	path := filepath.Join(b.runDir(run), paramsFileName)
	if err := readJSONFile(path, &params); err != nil {
		return err
	}
	params[key] = value
	return writeJSONFile(path, params)
}

func (b *LocalBackend) LogMetric(ctx context.Context, run *models.Run, key string, value float64, step *int64) error {
	if err := checkActive(run); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: metric key is empty", ErrInvalidArgument)
	}

	metrics := map[string][]models.MetricRecording{}
	path := filepath.Join(b.runDir(run), metricsFile)
	if err := readJSONFile(path, &metrics); err != nil {
		return err
	}
	metrics[key] = append(metrics[key], models.MetricRecording{
		Value:     value,
		Step:      step,
		Timestamp: time.Now(),
	})
	return writeJSONFile(path, metrics)
}

func (b *LocalBackend) LogArtifact(ctx context.Context, run *models.Run, localPath, subdir string) error {
	if err := checkActive(run); err != nil {
		return err
	}
	if localPath == "" {
		return fmt.Errorf("%w: artifact path is empty", ErrInvalidArgument)
	}

	name := filepath.Base(localPath)
	if subdir != "" {
		name = filepath.Join(subdir, name)
	}
	dest := filepath.Join(b.runDir(run), artifactsDir, name)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("%w: creating artifact directory: %v", ErrBackendUnavailable, err)
	}
	return copyFile(localPath, dest)
}

func (b *LocalBackend) LogModel(ctx context.Context, run *models.Run, desc models.ModelDescriptor, outputDir string) error {
	if err := checkActive(run); err != nil {
		return err
	}
	desc, err := normalizeDescriptor(desc)
	if err != nil {
		return err
	}
	if outputDir == "" {
		outputDir = "model"
	}

	modelDir := filepath.Join(b.runDir(run), artifactsDir, outputDir)
	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return fmt.Errorf("%w: creating model directory: %v", ErrBackendUnavailable, err)
	}

	meta := models.ModelMetadata{
		RunID:      run.ID,
		Library:    desc.Library,
		UpdateTime: time.Now().Format(time.RFC3339),
	}

	switch desc.Library {
	case models.FrameworkSKLearn:
		if err := persistBinaryModel(desc.Model, filepath.Join(modelDir, "model.bin")); err != nil {
			return err
		}
		meta.DataPath = "model.bin"

	case models.FrameworkPyFunc:
		meta.LoadEntryPoint = desc.LoadEntryPoint
		dataDir := filepath.Join(modelDir, "data")
		dataPath, err := copyModelData(desc.Path, dataDir)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(modelDir, dataPath)
		meta.DataPath = rel

	default:
		// Known() was verified during normalization, so this is a recognized
		// framework whose persistence is not implemented yet.
		return fmt.Errorf("%w: persistence for framework %q is not implemented", ErrInvalidArgument, desc.Library)
	}

	return writeModelMetadata(modelDir, meta)
}

func (b *LocalBackend) EndRun(ctx context.Context, run *models.Run, status models.RunStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %q is not a terminal status", ErrInvalidArgument, status)
	}
	if run.Status.Terminal() {
		if run.Status == status {
			return nil
		}
		return fmt.Errorf("%w: run %s closed as %q, cannot reclose as %q", ErrRunAlreadyClosed, run.ID, run.Status, status)
	}

	now := time.Now()
	run.Status = status
	run.EndTime = &now
	return b.writeMeta(run)
}

func (b *LocalBackend) writeMeta(run *models.Run) error {
	meta := runMeta{
		Run:       *run,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	content, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("%w: marshaling run meta: %v", ErrBackendUnavailable, err)
	}
	path := filepath.Join(b.runDir(run), metaFileName)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrBackendUnavailable, path, err)
	}
	return nil
}

// ReadMeta loads the durable projection of a run from its meta sidecar.
func (b *LocalBackend) ReadMeta(run *models.Run) (*models.Run, error) {
	content, err := os.ReadFile(filepath.Join(b.runDir(run), metaFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: reading run meta: %v", ErrBackendUnavailable, err)
	}
	var meta runMeta
	if err := yaml.Unmarshal(content, &meta); err != nil {
		return nil, fmt.Errorf("%w: parsing run meta: %v", ErrBackendUnavailable, err)
	}
	return &meta.Run, nil
}

func checkActive(run *models.Run) error {
	if run == nil {
		return fmt.Errorf("%w: nil run handle", ErrRunNotActive)
	}
	if run.Status != models.RunStatusRunning {
		return fmt.Errorf("%w: run %s has status %q", ErrRunNotActive, run.ID, run.Status)
	}
	return nil
}

func readJSONFile(path string, out any) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: reading %s: %v", ErrBackendUnavailable, path, err)
	}
	if err := json.Unmarshal(content, out); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrBackendUnavailable, path, err)
	}
	return nil
}

func writeJSONFile(path string, value any) error {
	content, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshaling %s: %v", ErrBackendUnavailable, path, err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrBackendUnavailable, path, err)
	}
	return nil
}

func copyFile(src, dest string) error {
	source, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrInvalidArgument, src, err)
	}
	defer source.Close()

	target, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrBackendUnavailable, dest, err)
	}
	defer target.Close()

	if _, err := io.Copy(target, source); err != nil {
		return fmt.Errorf("%w: copying to %s: %v", ErrBackendUnavailable, dest, err)
	}
	return nil
}

// copyModelData copies a model file or directory tree into dataDir and
// returns the destination path.
func copyModelData(src, dataDir string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("%w: model path %s: %v", ErrInvalidArgument, src, err)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("%w: creating %s: %v", ErrBackendUnavailable, dataDir, err)
	}

	dest := filepath.Join(dataDir, filepath.Base(src))
	if !info.IsDir() {
		if err := copyFile(src, dest); err != nil {
			return "", err
		}
		return dest, nil
	}

	err = filepath.Walk(src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if fi.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
	if err != nil {
		return "", fmt.Errorf("%w: copying model tree: %v", ErrBackendUnavailable, err)
	}
	return dest, nil
}
