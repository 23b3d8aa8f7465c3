package cmd

import (
	"fmt"
	"log/slog"

	"github.com/Tyrannas/mlflow-client/internal/config"
	"github.com/Tyrannas/mlflow-client/internal/models"
	"github.com/Tyrannas/mlflow-client/internal/tracking"
)

// newBackend selects a backend per configuration: the explicit --backend
// flag wins, then MLFLOW_BACKEND, then auto-detection.
func newBackend(cfg *config.Config, logger *slog.Logger) (tracking.Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	kind := tracking.Kind(cfg.Backend)
	uri := cfg.LocalRoot
	if kind == tracking.KindRemote {
		uri = cfg.RemoteURI()
	}
	return tracking.Select(kind, uri, logger)
}

// runHandle rebuilds a run handle for logging commands that operate on an
// already-started run. The local backend recovers the run's durable state
// from its meta sidecar; the remote server enforces run state itself.
func runHandle(backend tracking.Backend, cfg *config.Config, runID string) (*models.Run, error) {
	run := &models.Run{
		ID:         runID,
		Experiment: cfg.Experiment,
		Status:     models.RunStatusRunning,
	}
	if local, ok := backend.(*tracking.LocalBackend); ok {
		stored, err := local.ReadMeta(run)
		if err != nil {
			return nil, fmt.Errorf("run %s not found in experiment %q: %w", runID, cfg.Experiment, err)
		}
		return stored, nil
	}
	return run, nil
}
