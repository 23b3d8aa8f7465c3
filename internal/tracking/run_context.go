package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Tyrannas/mlflow-client/internal/hooks"
	"github.com/Tyrannas/mlflow-client/internal/models"
)

type runState int

const (
	statePending runState = iota
	stateActive
	stateClosed
)

// RunContext owns one run from allocation to closure. It moves through
// Pending, Active and Closed exactly once; Closed is terminal and its
// run_ended notification fires exactly once on every exit path.
//
// A RunContext is safe to share between the run's own goroutine and the
// closing path, but concurrent logging calls within one run must be
// serialized by the caller.
type RunContext struct {
	mu         sync.Mutex
	state      runState
	run        *models.Run
	backend    Backend
	dispatcher *hooks.Dispatcher
	logger     *slog.Logger
}

// newRunContext allocates the run through the backend and, only on success,
// fires the run_started notification. A backend failure means the context
// never reaches Active and no notification is sent.
func newRunContext(ctx context.Context, backend Backend, dispatcher *hooks.Dispatcher, experiment string, logger *slog.Logger) (*RunContext, error) {
	run, err := backend.StartRun(ctx, experiment)
	if err != nil {
		return nil, err
	}

	rc := &RunContext{
		state:      stateActive,
		run:        run,
		backend:    backend,
		dispatcher: dispatcher,
		logger:     logger,
	}
	logger.Info("run started", "run_id", run.ID, "experiment", run.Experiment)
	dispatcher.Notify(ctx, hooks.EventRunStarted, run, hooks.StatusSuccess, "")
	return rc, nil
}

// Run returns a copy of the run handle.
func (rc *RunContext) Run() models.Run {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return *rc.run
}

func (rc *RunContext) active() error {
	if rc.state != stateActive {
		return fmt.Errorf("%w: run context is not active", ErrRunNotActive)
	}
	return nil
}

// LogParam forwards to the backend; backend errors surface to the caller.
func (rc *RunContext) LogParam(ctx context.Context, key, value string) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if err := rc.active(); err != nil {
		return err
	}
	return rc.backend.LogParam(ctx, rc.run, key, value)
}

// LogMetric forwards to the backend. A nil step appends the recording
// without step information.
func (rc *RunContext) LogMetric(ctx context.Context, key string, value float64, step *int64) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if err := rc.active(); err != nil {
		return err
	}
	return rc.backend.LogMetric(ctx, rc.run, key, value, step)
}

// LogArtifact stores the file at localPath under the run's artifacts,
// under subdir when non-empty.
func (rc *RunContext) LogArtifact(ctx context.Context, localPath, subdir string) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if err := rc.active(); err != nil {
		return err
	}
	return rc.backend.LogArtifact(ctx, rc.run, localPath, subdir)
}

// LogModel persists the described model under outputDir.
func (rc *RunContext) LogModel(ctx context.Context, desc models.ModelDescriptor, outputDir string) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if err := rc.active(); err != nil {
		return err
	}
	return rc.backend.LogModel(ctx, rc.run, desc, outputDir)
}

// End closes the run with an explicit terminal status. Calling it again with
// the same status is a no-op; a different status after closure fails with
// ErrRunAlreadyClosed.
func (rc *RunContext) End(ctx context.Context, status models.RunStatus, message string) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %q is not a terminal status", ErrInvalidArgument, status)
	}
	return rc.close(ctx, status, message)
}

// close performs the terminal transition. The backend's EndRun runs first so
// the durable record exists before consumers are told the run ended; the
// run_ended notification then fires regardless of the backend outcome, but
// only on the transition itself, never on repeated calls.
func (rc *RunContext) close(ctx context.Context, status models.RunStatus, message string) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.state == stateClosed {
		if rc.run.Status == status {
			return nil
		}
		return fmt.Errorf("%w: run %s closed as %q, cannot reclose as %q", ErrRunAlreadyClosed, rc.run.ID, rc.run.Status, status)
	}
	rc.state = stateClosed

	endErr := rc.backend.EndRun(ctx, rc.run, status)
	if endErr != nil {
		rc.logger.Error("finalizing run failed", "run_id", rc.run.ID, "error", endErr)
	}

	hookStatus := hooks.StatusSuccess
	if status == models.RunStatusFailed {
		hookStatus = hooks.StatusFailed
	}
	rc.logger.Info("run ended", "run_id", rc.run.ID, "status", status)
	rc.dispatcher.Notify(ctx, hooks.EventRunEnded, rc.run, hookStatus, message)

	return endErr
}
