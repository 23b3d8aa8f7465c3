package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/databricks/databricks-sdk-go"
	"github.com/databricks/databricks-sdk-go/service/ml"

	"github.com/Tyrannas/mlflow-client/internal/models"
)

// RemoteBackend forwards the storage contract to an MLflow tracking server
// over its REST API, using the Databricks SDK where it covers an endpoint and
// plain HTTP where it does not. Local errors (network, auth) surface as
// ErrBackendUnavailable.
type RemoteBackend struct {
	client      *databricks.WorkspaceClient
	trackingURI string
	httpClient  *http.Client

	mu          sync.Mutex
	experiments map[string]string // experiment name -> experiment id
	runExps     map[string]string // run id -> experiment id
}

// NewRemoteBackend connects to the tracking server at uri. A dummy token is
// used for plain MLflow servers, which do not authenticate.
func NewRemoteBackend(uri string) (*RemoteBackend, error) {
	cfg := &databricks.Config{
		Host:  uri,
		Token: "dummy-token-for-regular-mlflow",
	}
	if token := os.Getenv("DATABRICKS_TOKEN"); token != "" {
		cfg.Token = token
	}

	client, err := databricks.NewWorkspaceClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: creating tracking client: %v", ErrBackendUnavailable, err)
	}

	return &RemoteBackend{
		client:      client,
		trackingURI: strings.TrimSuffix(uri, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		experiments: map[string]string{},
		runExps:     map[string]string{},
	}, nil
}

func (b *RemoteBackend) StartRun(ctx context.Context, experiment string) (*models.Run, error) {
	if experiment == "" {
		return nil, fmt.Errorf("%w: experiment name is empty", ErrInvalidArgument)
	}

	experimentID, err := b.experimentID(ctx, experiment)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	resp, err := b.client.Experiments.CreateRun(ctx, ml.CreateRun{
		ExperimentId: experimentID,
		StartTime:    startTime.UnixMilli(),
		Tags: []ml.RunTag{
			{Key: "mlflow.runName", Value: "run-" + startTime.Format("2006-01-02-15-04-05")},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating run: %v", ErrBackendUnavailable, err)
	}

	run := &models.Run{
		ID:         resp.Run.Info.RunId,
		Experiment: experiment,
		Status:     models.RunStatusRunning,
		StartTime:  startTime,
	}

	b.mu.Lock()
	b.runExps[run.ID] = experimentID
	b.mu.Unlock()

	return run, nil
}

func (b *RemoteBackend) LogParam(ctx context.Context, run *models.Run, key, value string) error {
	if err := checkActive(run); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: parameter key is empty", ErrInvalidArgument)
	}

	err := b.client.Experiments.LogParam(ctx, ml.LogParam{
		RunId: run.ID,
		Key:   key,
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("%w: logging parameter %s: %v", ErrBackendUnavailable, key, err)
	}
	return nil
}

func (b *RemoteBackend) LogMetric(ctx context.Context, run *models.Run, key string, value float64, step *int64) error {
	if err := checkActive(run); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: metric key is empty", ErrInvalidArgument)
	}

	logMetric := ml.LogMetric{
		RunId:     run.ID,
		Key:       key,
		Value:     value,
		Timestamp: time.Now().UnixMilli(),
	}
	if step != nil {
		logMetric.Step = *step
	}

	if err := b.client.Experiments.LogMetric(ctx, logMetric); err != nil {
		return fmt.Errorf("%w: logging metric %s: %v", ErrBackendUnavailable, key, err)
	}
	return nil
}

func (b *RemoteBackend) LogArtifact(ctx context.Context, run *models.Run, localPath, subdir string) error {
	if err := checkActive(run); err != nil {
		return err
	}
	if localPath == "" {
		return fmt.Errorf("%w: artifact path is empty", ErrInvalidArgument)
	}

	artifactPath := filepath.Base(localPath)
	if subdir != "" {
		artifactPath = subdir + "/" + artifactPath
	}
	return b.uploadFile(ctx, run, localPath, artifactPath)
}

func (b *RemoteBackend) LogModel(ctx context.Context, run *models.Run, desc models.ModelDescriptor, outputDir string) error {
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

	meta := models.ModelMetadata{
		RunID:      run.ID,
		Library:    desc.Library,
		UpdateTime: time.Now().Format(time.RFC3339),
	}

	switch desc.Library {
	case models.FrameworkSKLearn:
		tmp, err := os.CreateTemp("", "mlflow-model-*.bin")
		if err != nil {
			return fmt.Errorf("%w: staging model: %v", ErrBackendUnavailable, err)
		}
		tmpPath := tmp.Name()
		tmp.Close()
		defer os.Remove(tmpPath)

		if err := persistBinaryModel(desc.Model, tmpPath); err != nil {
			return err
		}
		if err := b.uploadFile(ctx, run, tmpPath, outputDir+"/model.bin"); err != nil {
			return err
		}
		meta.DataPath = "model.bin"

	case models.FrameworkPyFunc:
		meta.LoadEntryPoint = desc.LoadEntryPoint
		dataPath, err := b.uploadModelData(ctx, run, desc.Path, outputDir+"/data")
		if err != nil {
			return err
		}
		meta.DataPath = dataPath

	default:
		return fmt.Errorf("%w: persistence for framework %q is not implemented", ErrInvalidArgument, desc.Library)
	}

	content, err := yamlMarshalMetadata(meta)
	if err != nil {
		return err
	}
	return b.uploadBytes(ctx, run, content, outputDir+"/"+modelMetadataFile)
}

func (b *RemoteBackend) EndRun(ctx context.Context, run *models.Run, status models.RunStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %q is not a terminal status", ErrInvalidArgument, status)
	}
	if run.Status.Terminal() {
		if run.Status == status {
			return nil
		}
		return fmt.Errorf("%w: run %s closed as %q, cannot reclose as %q", ErrRunAlreadyClosed, run.ID, run.Status, status)
	}

	mlStatus := ml.UpdateRunStatusFinished
	if status == models.RunStatusFailed {
		mlStatus = ml.UpdateRunStatusFailed
	}

	now := time.Now()
	_, err := b.client.Experiments.UpdateRun(ctx, ml.UpdateRun{
		RunId:   run.ID,
		Status:  mlStatus,
		EndTime: now.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("%w: updating run %s: %v", ErrBackendUnavailable, run.ID, err)
	}

	run.Status = status
	run.EndTime = &now

	b.mu.Lock()
	delete(b.runExps, run.ID)
	b.mu.Unlock()

	return nil
}

// experimentID resolves an experiment name to its id, creating the experiment
// when the server does not know it yet. The SDK lacks these two endpoints for
// plain MLflow servers, so they go over raw HTTP.
func (b *RemoteBackend) experimentID(ctx context.Context, name string) (string, error) {
	b.mu.Lock()
	if id, ok := b.experiments[name]; ok {
		b.mu.Unlock()
		return id, nil
	}
	b.mu.Unlock()

	getURL := fmt.Sprintf("%s/api/2.0/mlflow/experiments/get-by-name?experiment_name=%s",
		b.trackingURI, url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, getURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: resolving experiment %q: %v", ErrBackendUnavailable, name, err)
	}
	defer resp.Body.Close()

	var id string
	switch {
	case resp.StatusCode == http.StatusOK:
		var body struct {
			Experiment struct {
				ExperimentID string `json:"experiment_id"`
			} `json:"experiment"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("%w: decoding experiment response: %v", ErrBackendUnavailable, err)
		}
		id = body.Experiment.ExperimentID

	case resp.StatusCode == http.StatusNotFound:
		id, err = b.createExperiment(ctx, name)
		if err != nil {
			return "", err
		}

	default:
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: experiment lookup returned status %d: %s", ErrBackendUnavailable, resp.StatusCode, string(body))
	}

	b.mu.Lock()
	b.experiments[name] = id
	b.mu.Unlock()
	return id, nil
}

func (b *RemoteBackend) createExperiment(ctx context.Context, name string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"name": name})
	createURL := b.trackingURI + "/api/2.0/mlflow/experiments/create"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, createURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: creating experiment %q: %v", ErrBackendUnavailable, name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: experiment create returned status %d: %s", ErrBackendUnavailable, resp.StatusCode, string(body))
	}

	var body struct {
		ExperimentID string `json:"experiment_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decoding create response: %v", ErrBackendUnavailable, err)
	}
	return body.ExperimentID, nil
}

func (b *RemoteBackend) uploadFile(ctx context.Context, run *models.Run, localPath, artifactPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrInvalidArgument, localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", ErrInvalidArgument, localPath, err)
	}
	return b.put(ctx, run, f, info.Size(), artifactPath)
}

func (b *RemoteBackend) uploadBytes(ctx context.Context, run *models.Run, content []byte, artifactPath string) error {
	return b.put(ctx, run, bytes.NewReader(content), int64(len(content)), artifactPath)
}

// uploadModelData uploads a model file or directory tree under prefix and
// returns the data path recorded in the model metadata.
func (b *RemoteBackend) uploadModelData(ctx context.Context, run *models.Run, src, prefix string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("%w: model path %s: %v", ErrInvalidArgument, src, err)
	}

	base := filepath.Base(src)
	if !info.IsDir() {
		if err := b.uploadFile(ctx, run, src, prefix+"/"+base); err != nil {
			return "", err
		}
		return "data/" + base, nil
	}

	err = filepath.Walk(src, func(path string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		return b.uploadFile(ctx, run, path, prefix+"/"+base+"/"+filepath.ToSlash(rel))
	})
	if err != nil {
		return "", fmt.Errorf("%w: uploading model tree: %v", ErrBackendUnavailable, err)
	}
	return "data/" + base, nil
}

// put writes one artifact through the MLflow artifacts service:
// PUT /api/2.0/mlflow-artifacts/artifacts/{experiment_id}/{run_id}/artifacts/{path}
func (b *RemoteBackend) put(ctx context.Context, run *models.Run, body io.Reader, size int64, artifactPath string) error {
	b.mu.Lock()
	experimentID := b.runExps[run.ID]
	b.mu.Unlock()
	if experimentID == "" {
		return fmt.Errorf("%w: run %s has no tracked experiment id", ErrRunNotActive, run.ID)
	}

	uploadURL := fmt.Sprintf("%s/api/2.0/mlflow-artifacts/artifacts/%s/%s/artifacts/%s",
		b.trackingURI, experimentID, run.ID, artifactPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: uploading %s: %v", ErrBackendUnavailable, artifactPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: artifact upload returned status %d: %s", ErrBackendUnavailable, resp.StatusCode, string(respBody))
	}
	return nil
}
