// Package notification sends best-effort creation events to the external
// notification service. Failures are logged and never surfaced.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/medtrack/prescription-service/internal/domain/prescription"
	"github.com/medtrack/prescription-service/internal/observability/metrics"
	"github.com/medtrack/prescription-service/pkg/workerpool"
)

// EventPrescriptionCreated is the event type emitted after a successful write.
const EventPrescriptionCreated = "prescription.created"

// DefaultTimeout bounds a single notification call.
const DefaultTimeout = 5 * time.Second

// Event is the wire shape consumed by the notification service.
type Event struct {
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
}

// Client posts events to the notification service. Dispatch runs off the
// request path on the worker pool.
type Client struct {
	baseURL string
	http    *http.Client
	pool    *workerpool.Pool
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewClient creates a notification client. A nil pool makes dispatch send
// synchronously (used in tests); metrics may be nil.
func NewClient(baseURL string, pool *workerpool.Pool, m *metrics.Metrics, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
		pool:    pool,
		metrics: m,
		logger:  logger,
	}
}

// PrescriptionCreated dispatches a creation event for the stored record.
// It never returns an error: the creation request has already succeeded and
// must not be failed by notification problems.
func (c *Client) PrescriptionCreated(p *prescription.Prescription) {
	event := &Event{
		EventType: EventPrescriptionCreated,
		Data: map[string]any{
			"prescription_id": p.PrescriptionID,
			"appointment_id":  p.AppointmentID,
			"patient_id":      p.PatientID,
			"doctor_id":       p.DoctorID,
			"medication":      p.Medication,
		},
	}

	if c.pool == nil {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
		defer cancel()
		c.deliver(ctx, event)
		return
	}

	err := c.pool.Submit(&workerpool.Task{
		Name: EventPrescriptionCreated,
		Run: func(ctx context.Context) error {
			c.deliver(ctx, event)
			return nil
		},
	})
	if err != nil {
		c.countFailure()
		c.logger.Warn("notification dropped", zap.Error(err))
	}
}

func (c *Client) deliver(ctx context.Context, event *Event) {
	if err := c.Send(ctx, event); err != nil {
		c.countFailure()
		c.logger.Warn("notification failed", zap.Error(err))
		return
	}
	if c.metrics != nil {
		c.metrics.NotificationsSent.Inc()
	}
}

func (c *Client) countFailure() {
	if c.metrics != nil {
		c.metrics.NotificationsFailed.Inc()
	}
}

// Send posts one event. Callers on the request path must not propagate the
// returned error.
func (c *Client) Send(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	url := c.baseURL + "/notifications"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call notification service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification service returned %d", resp.StatusCode)
	}
	return nil
}
