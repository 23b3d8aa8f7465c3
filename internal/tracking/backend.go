// Package tracking implements the experiment-tracking core: the storage
// backend contract with its Local and Remote variants, backend selection, and
// the run lifecycle state machine that ties storage and webhooks together.
package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Tyrannas/mlflow-client/internal/models"
)

// EnvTrackingURI declares the remote tracking endpoint for backend selection.
const EnvTrackingURI = "MLFLOW_TRACKING_URI"

// EnvBackend declares the backend kind ("local" or "remote") when no explicit
// backend is passed to the client.
const EnvBackend = "MLFLOW_BACKEND"

// Backend is the uniform run-lifecycle contract every storage strategy
// satisfies. Variants are a closed set (Local, Remote); new strategies extend
// this interface without touching its call sites.
type Backend interface {
	// StartRun allocates a new run identity and its durable experiment-scoped
	// storage location.
	StartRun(ctx context.Context, experiment string) (*models.Run, error)

	// LogParam records a parameter, last write wins per key.
	LogParam(ctx context.Context, run *models.Run, key, value string) error

	// LogMetric appends one (value, step) recording to the metric's sequence.
	// A nil step records the value without step information.
	LogMetric(ctx context.Context, run *models.Run, key string, value float64, step *int64) error

	// LogArtifact stores the file at localPath under the run's artifact root,
	// under subdir when it is non-empty.
	LogArtifact(ctx context.Context, run *models.Run, localPath, subdir string) error

	// LogModel persists the model named by the descriptor under outputDir in
	// the run's artifact root.
	LogModel(ctx context.Context, run *models.Run, desc models.ModelDescriptor, outputDir string) error

	// EndRun finalizes timestamps and status and flushes durable state.
	// Calling it twice with the same status is a no-op; a different status
	// after closure fails with ErrRunAlreadyClosed.
	EndRun(ctx context.Context, run *models.Run, status models.RunStatus) error
}

// Kind names a backend selection choice.
type Kind string

const (
	KindAuto   Kind = "auto"
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

const probeTimeout = 3 * time.Second

// Select resolves a backend once, before any run starts. An explicit kind
// wins; otherwise MLFLOW_BACKEND decides; otherwise a reachable
// MLFLOW_TRACKING_URI endpoint selects Remote and anything else falls back to
// Local rooted at backendURI (or the working directory).
func Select(kind Kind, backendURI string, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if kind == "" || kind == KindAuto {
		if env := os.Getenv(EnvBackend); env != "" {
			kind = Kind(strings.ToLower(env))
		}
	}

	switch kind {
	case KindLocal:
		return NewLocalBackend(backendURI)
	case KindRemote:
		uri := backendURI
		if uri == "" {
			uri = os.Getenv(EnvTrackingURI)
		}
		if uri == "" {
			return nil, fmt.Errorf("%w: remote backend requested but no tracking URI configured", ErrBackendUnavailable)
		}
		return NewRemoteBackend(uri)
	case "", KindAuto:
		if uri := os.Getenv(EnvTrackingURI); uri != "" && probeRemote(uri) {
			logger.Warn("auto backend selected remote tracking server", "uri", uri)
			return NewRemoteBackend(uri)
		}
		logger.Warn("auto backend selected local storage", "root", backendURI)
		return NewLocalBackend(backendURI)
	default:
		return nil, fmt.Errorf("%w: unrecognized backend kind %q", ErrBackendUnavailable, kind)
	}
}

// probeRemote checks whether an MLflow tracking server answers at uri.
func probeRemote(uri string) bool {
	client := &http.Client{Timeout: probeTimeout}
	resp, err := client.Get(strings.TrimSuffix(uri, "/") + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
