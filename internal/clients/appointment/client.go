// Package appointment provides the client for the external appointment
// service and the business checks run before a prescription is persisted.
package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/medtrack/prescription-service/pkg/circuitbreaker"
)

// StatusCompleted is the only appointment status that allows prescribing.
const StatusCompleted = "COMPLETED"

// Appointment is the subset of the external appointment record this
// service inspects. It is never persisted.
type Appointment struct {
	AppointmentID int64  `json:"appointment_id"`
	PatientID     int64  `json:"patient_id"`
	DoctorID      int64  `json:"doctor_id"`
	Status        string `json:"status"`
}

var (
	// ErrNotFound means the appointment service reported no such appointment.
	ErrNotFound = errors.New("appointment not found")
	// ErrUnavailable means the appointment service could not be reached or
	// returned an unusable response.
	ErrUnavailable = errors.New("appointment service unavailable")
)

// Reason identifies which business rule a creation request violated.
type Reason string

const (
	ReasonNotCompleted    Reason = "appointment_not_completed"
	ReasonPatientMismatch Reason = "patient_mismatch"
	ReasonDoctorMismatch  Reason = "doctor_mismatch"
)

// RuleError is a business-rule violation found on an otherwise valid
// appointment. It maps to HTTP 400.
type RuleError struct {
	Reason Reason
	Detail string
}

func (e *RuleError) Error() string { return e.Detail }

// Client fetches appointments over HTTP with a circuit breaker in front.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates an appointment client. A nil breaker disables circuit
// breaking (used in tests).
func NewClient(baseURL string, timeout time.Duration, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  logger,
	}
}

// BreakerConfig returns the breaker settings for the appointment upstream.
// An upstream 404 is a definitive answer, not a service failure, so it must
// not trip the circuit.
func BreakerConfig() circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig("appointment-service")
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrNotFound)
	}
	return cfg
}

// Verify fetches the appointment and runs the prescribing checks in order,
// short-circuiting on the first violation:
// existence, COMPLETED status, patient match, doctor match.
func (c *Client) Verify(ctx context.Context, appointmentID, patientID, doctorID int64) (*Appointment, error) {
	tracer := otel.Tracer("appointment-client")
	ctx, span := tracer.Start(ctx, "verify_appointment")
	defer span.End()
	span.SetAttributes(attribute.Int64("appointment_id", appointmentID))

	appt, err := c.fetch(ctx, appointmentID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if appt.Status != StatusCompleted {
		span.SetAttributes(attribute.String("appointment_status", appt.Status))
		return nil, &RuleError{
			Reason: ReasonNotCompleted,
			Detail: fmt.Sprintf("appointment %d is not completed (status: %s)", appointmentID, appt.Status),
		}
	}
	if appt.PatientID != patientID {
		return nil, &RuleError{
			Reason: ReasonPatientMismatch,
			Detail: fmt.Sprintf("patient %d does not match appointment %d (appointment patient: %d)", patientID, appointmentID, appt.PatientID),
		}
	}
	if appt.DoctorID != doctorID {
		return nil, &RuleError{
			Reason: ReasonDoctorMismatch,
			Detail: fmt.Sprintf("doctor %d does not match appointment %d (appointment doctor: %d)", doctorID, appointmentID, appt.DoctorID),
		}
	}

	return appt, nil
}

func (c *Client) fetch(ctx context.Context, appointmentID int64) (*Appointment, error) {
	do := func() (interface{}, error) {
		return c.doFetch(ctx, appointmentID)
	}

	var result interface{}
	var err error
	if c.breaker != nil {
		result, err = c.breaker.Execute(ctx, do)
	} else {
		result, err = do()
	}

	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		if errors.Is(err, circuitbreaker.ErrOpen) {
			c.logger.Warn("appointment lookup rejected, circuit open",
				zap.Int64("appointment_id", appointmentID))
			return nil, ErrUnavailable
		}
		c.logger.Warn("appointment lookup failed",
			zap.Int64("appointment_id", appointmentID),
			zap.Error(err))
		return nil, ErrUnavailable
	}

	return result.(*Appointment), nil
}

func (c *Client) doFetch(ctx context.Context, appointmentID int64) (*Appointment, error) {
	url := fmt.Sprintf("%s/appointments/%d", c.baseURL, appointmentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call appointment service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("appointment service returned %d", resp.StatusCode)
	}

	var appt Appointment
	if err := json.NewDecoder(resp.Body).Decode(&appt); err != nil {
		return nil, fmt.Errorf("decode appointment: %w", err)
	}
	if appt.Status == "" {
		return nil, fmt.Errorf("appointment response missing status")
	}
	return &appt, nil
}
