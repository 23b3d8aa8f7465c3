package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Tyrannas/mlflow-client/internal/hooks"
	"github.com/Tyrannas/mlflow-client/internal/models"
)

// DefaultExperiment names runs started without an explicit experiment.
const DefaultExperiment = "default_experiment"

// Client composes a selected storage backend with a resolved hook registry
// and hands out run contexts. Backend selection and hook resolution happen
// once, at construction; every run started afterwards sees the same backend
// and a snapshot of the registry.
type Client struct {
	backend    Backend
	experiment string
	logger     *slog.Logger

	mu       sync.Mutex
	registry hooks.Registry
	hookErr  error
	started  bool
}

type clientOptions struct {
	backend    Backend
	kind       Kind
	backendURI string
	hooksURI   string
	experiment string
	logger     *slog.Logger
}

type Option func(*clientOptions)

// WithBackend supplies an already-constructed backend, bypassing selection.
func WithBackend(b Backend) Option {
	return func(o *clientOptions) { o.backend = b }
}

// WithBackendKind requests a backend kind explicitly; uri is the local root
// for KindLocal and the tracking endpoint for KindRemote.
func WithBackendKind(kind Kind, uri string) Option {
	return func(o *clientOptions) { o.kind = kind; o.backendURI = uri }
}

// WithExperiment scopes the client's runs to the named experiment.
func WithExperiment(name string) Option {
	return func(o *clientOptions) { o.experiment = name }
}

// WithHooksURI points hook resolution at an HTTP endpoint, a JSON file, or a
// project descriptor directory. When absent, MLFLOW_HOOKS_URI is the
// fallback.
func WithHooksURI(uri string) Option {
	return func(o *clientOptions) { o.hooksURI = uri }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// NewClient selects a backend and resolves the hook registry. A malformed or
// unreachable hook source never fails construction: the affected events
// degrade to empty registries and the condition is logged and kept for
// HookSourceError.
func NewClient(opts ...Option) (*Client, error) {
	o := clientOptions{experiment: DefaultExperiment}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	backend := o.backend
	if backend == nil {
		var err error
		backend, err = Select(o.kind, o.backendURI, o.logger)
		if err != nil {
			return nil, err
		}
	}

	registry, hookErr := hooks.Resolve(o.hooksURI)
	if hookErr != nil {
		o.logger.Warn("hook source degraded", "uri", o.hooksURI, "error", hookErr)
	}

	return &Client{
		backend:    backend,
		experiment: o.experiment,
		logger:     o.logger,
		registry:   registry,
		hookErr:    hookErr,
	}, nil
}

// Backend exposes the selected backend, chiefly for inspection.
func (c *Client) Backend() Backend {
	return c.backend
}

// HookSourceError reports the hook resolution failure recorded at
// construction, nil when resolution succeeded.
func (c *Client) HookSourceError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hookErr
}

// AddHook registers a webhook programmatically, supplementing any
// URI-sourced registrations. Permitted only before the first run starts;
// afterwards it fails with hooks.ErrRegistrationTooLate.
func (c *Client) AddHook(event hooks.Event, url, name string) error {
	if !event.Known() {
		return fmt.Errorf("%w: unknown event %q", ErrInvalidArgument, event)
	}
	if url == "" {
		return fmt.Errorf("%w: hook url is empty", ErrInvalidArgument)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return hooks.ErrRegistrationTooLate
	}
	c.registry.Add(event, url, name)
	return nil
}

// StartRun opens a run context against the selected backend. The context
// holds its own snapshot of the hook registry for its whole lifetime.
func (c *Client) StartRun(ctx context.Context) (*RunContext, error) {
	c.mu.Lock()
	c.started = true
	dispatcher := hooks.NewDispatcher(c.registry, c.logger)
	c.mu.Unlock()

	return newRunContext(ctx, c.backend, dispatcher, c.experiment, c.logger)
}

// Run executes fn inside a scoped run. The terminal transition is guaranteed
// on every exit path: a nil return closes the run as success, an error or a
// panic closes it as failed with the rendered description as the
// notification message. Panics are re-raised after the run is closed.
func (c *Client) Run(ctx context.Context, fn func(rc *RunContext) error) (err error) {
	rc, err := c.StartRun(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			rc.close(ctx, models.RunStatusFailed, fmt.Sprintf("panic: %v", p))
			panic(p)
		}
		if err != nil {
			if closeErr := rc.close(ctx, models.RunStatusFailed, err.Error()); closeErr != nil {
				c.logger.Error("closing failed run", "run_id", rc.run.ID, "error", closeErr)
			}
			return
		}
		err = rc.close(ctx, models.RunStatusSuccess, "")
	}()

	return fn(rc)
}
