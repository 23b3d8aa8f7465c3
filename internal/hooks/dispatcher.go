package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Tyrannas/mlflow-client/internal/models"
)

// DefaultDeliveryTimeout bounds each webhook POST so an unresponsive endpoint
// can never block a run's finalization.
const DefaultDeliveryTimeout = 10 * time.Second

// timestampLayout is second precision without a timezone offset.
const timestampLayout = "2006-01-02T15:04:05"

// Status is the lifecycle outcome carried by a notification.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Notification is the payload POSTed to every hook registered for an event.
type Notification struct {
	Event     Event               `json:"event"`
	Status    Status              `json:"status"`
	Timestamp string              `json:"timestamp"`
	Payload   NotificationPayload `json:"payload"`
}

// NotificationPayload identifies the run the event belongs to. Message is
// empty on success and carries the rendered error on failure.
type NotificationPayload struct {
	Experiment string `json:"experiment"`
	Run        string `json:"run"`
	Message    string `json:"message"`
}

// Delivery records the outcome of one webhook POST.
type Delivery struct {
	Registration Registration
	Err          error
}

// Dispatcher delivers lifecycle notifications to a read-only registry
// snapshot. Deliveries for one event run in parallel with no ordering
// guarantee between URLs; Notify returns only after all of them were
// attempted.
type Dispatcher struct {
	registry Registry
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

// NewDispatcher snapshots registry and returns a dispatcher bound to it.
// Registrations added to the source registry afterwards are not seen.
func NewDispatcher(registry Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry.Clone(),
		client:   &http.Client{Timeout: DefaultDeliveryTimeout},
		logger:   logger,
		now:      time.Now,
	}
}

// Notify builds the notification payload for event and POSTs it to every
// registered URL. Each delivery failure is captured in the returned slice and
// logged; none of them propagates as an error, webhook delivery is best
// effort by contract.
func (d *Dispatcher) Notify(ctx context.Context, event Event, run *models.Run, status Status, message string) []Delivery {
	regs := d.registry[event]
	if len(regs) == 0 {
		return nil
	}

	notification := Notification{
		Event:     event,
		Status:    status,
		Timestamp: d.now().Format(timestampLayout),
		Payload: NotificationPayload{
			Experiment: run.Experiment,
			Run:        run.ID,
			Message:    message,
		},
	}

	body, err := json.Marshal(notification)
	if err != nil {
		// Payload fields are plain strings, this cannot happen in practice.
		d.logger.Warn("hook payload marshal failed", "event", event, "error", err)
		return nil
	}

	deliveries := make([]Delivery, len(regs))
	var wg sync.WaitGroup
	for i, reg := range regs {
		wg.Add(1)
		go func(i int, reg Registration) {
			defer wg.Done()
			err := d.deliver(ctx, reg.URL, body)
			deliveries[i] = Delivery{Registration: reg, Err: err}
			if err != nil {
				d.logger.Warn("hook delivery failed",
					"event", event, "url", reg.URL, "name", reg.Name, "error", err)
			}
		}(i, reg)
	}
	wg.Wait()

	return deliveries
}

func (d *Dispatcher) deliver(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: POST %s: %v", ErrDeliveryFailed, url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: POST %s returned status %d", ErrDeliveryFailed, url, resp.StatusCode)
	}
	return nil
}
