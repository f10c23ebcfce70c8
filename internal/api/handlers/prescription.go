// Package handlers provides the HTTP handlers for the prescription API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/medtrack/prescription-service/internal/api/middleware"
	"github.com/medtrack/prescription-service/internal/clients/appointment"
	"github.com/medtrack/prescription-service/internal/domain/prescription"
	"github.com/medtrack/prescription-service/internal/observability/metrics"
)

// Store is the persistence surface the handler depends on.
type Store interface {
	Insert(ctx context.Context, cmd *prescription.CreateCommand) (*prescription.Prescription, error)
	Get(ctx context.Context, id int64) (*prescription.Prescription, error)
	List(ctx context.Context, filter prescription.Filter, page prescription.Page) ([]*prescription.Prescription, int, error)
}

// Verifier checks the referenced appointment before a prescription is written.
type Verifier interface {
	Verify(ctx context.Context, appointmentID, patientID, doctorID int64) (*appointment.Appointment, error)
}

// Notifier emits a best-effort creation event; it never reports failure.
type Notifier interface {
	PrescriptionCreated(p *prescription.Prescription)
}

// PrescriptionHandler handles prescription endpoints
type PrescriptionHandler struct {
	store    Store
	verifier Verifier
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewPrescriptionHandler creates a new handler
func NewPrescriptionHandler(store Store, verifier Verifier, notifier Notifier, m *metrics.Metrics, logger *zap.Logger) *PrescriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionHandler{
		store:    store,
		verifier: verifier,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// Routes returns the handler routes
func (h *PrescriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	return r
}

// Create handles POST /prescriptions. The appointment check runs before any
// write; a failed check returns without touching the store.
func (h *PrescriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("prescription-handler")
	ctx, span := tracer.Start(ctx, "create_prescription")
	defer span.End()

	var cmd prescription.CreateCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := cmd.Validate(); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	span.SetAttributes(attribute.Int64("appointment_id", cmd.AppointmentID))

	appt, err := h.verifier.Verify(ctx, cmd.AppointmentID, cmd.PatientID, cmd.DoctorID)
	if err != nil {
		h.verificationFailed(w, r, &cmd, err)
		return
	}

	created, err := h.store.Insert(ctx, &cmd)
	if err != nil {
		h.logger.Error("insert failed",
			zap.Error(err),
			zap.String("request_id", middleware.GetRequestID(ctx)))
		h.jsonError(w, "failed to store prescription", http.StatusInternalServerError)
		return
	}

	if h.metrics != nil {
		h.metrics.PrescriptionsCreated.Inc()
	}
	h.logger.Info("prescription created",
		zap.Int64("prescription_id", created.PrescriptionID),
		zap.Int64("appointment_id", created.AppointmentID),
		zap.String("appointment_status", appt.Status),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)

	h.notifier.PrescriptionCreated(created)

	h.writeJSON(w, http.StatusCreated, created)
}

func (h *PrescriptionHandler) verificationFailed(w http.ResponseWriter, r *http.Request, cmd *prescription.CreateCommand, err error) {
	ctx := r.Context()

	var ruleErr *appointment.RuleError
	switch {
	case errors.Is(err, appointment.ErrNotFound):
		h.countVerificationFailure("not_found")
		h.jsonError(w, "appointment "+strconv.FormatInt(cmd.AppointmentID, 10)+" not found", http.StatusNotFound)
	case errors.As(err, &ruleErr):
		h.countVerificationFailure(string(ruleErr.Reason))
		h.jsonError(w, ruleErr.Detail, http.StatusBadRequest)
	case errors.Is(err, appointment.ErrUnavailable):
		h.countVerificationFailure("unavailable")
		h.jsonError(w, "appointment service unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.Error("verification failed",
			zap.Error(err),
			zap.String("request_id", middleware.GetRequestID(ctx)))
		h.jsonError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("prescription rejected",
		zap.Int64("appointment_id", cmd.AppointmentID),
		zap.String("reason", err.Error()),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)
}

func (h *PrescriptionHandler) countVerificationFailure(reason string) {
	if h.metrics != nil {
		h.metrics.VerificationFailures.WithLabelValues(reason).Inc()
	}
}

// List handles GET /prescriptions with optional patient_id/appointment_id
// filters and skip/limit pagination.
func (h *PrescriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	skip, err := queryInt(q.Get("skip"), 0)
	if err != nil || skip < 0 {
		h.jsonError(w, "skip must be a non-negative integer", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(q.Get("limit"), prescription.DefaultLimit)
	if err != nil || limit < 1 || limit > prescription.MaxLimit {
		h.jsonError(w, "limit must be between 1 and 100", http.StatusBadRequest)
		return
	}

	var filter prescription.Filter
	if filter.PatientID, err = queryID(q.Get("patient_id")); err != nil {
		h.jsonError(w, "patient_id must be an integer", http.StatusBadRequest)
		return
	}
	if filter.AppointmentID, err = queryID(q.Get("appointment_id")); err != nil {
		h.jsonError(w, "appointment_id must be an integer", http.StatusBadRequest)
		return
	}

	page := prescription.Page{Skip: skip, Limit: limit}
	prescriptions, total, err := h.store.List(ctx, filter, page)
	if err != nil {
		h.logger.Error("list failed",
			zap.Error(err),
			zap.String("request_id", middleware.GetRequestID(ctx)))
		h.jsonError(w, "failed to list prescriptions", http.StatusInternalServerError)
		return
	}

	h.logger.Info("prescriptions listed",
		zap.Int("total", total),
		zap.Int("returned", len(prescriptions)),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)

	if prescriptions == nil {
		prescriptions = []*prescription.Prescription{}
	}
	h.writeJSON(w, http.StatusOK, prescriptions)
}

// Get handles GET /prescriptions/{id}
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.jsonError(w, "prescription id must be an integer", http.StatusBadRequest)
		return
	}

	p, err := h.store.Get(ctx, id)
	if errors.Is(err, prescription.ErrNotFound) {
		h.jsonError(w, "prescription not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("get failed",
			zap.Error(err),
			zap.String("request_id", middleware.GetRequestID(ctx)))
		h.jsonError(w, "failed to load prescription", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, p)
}

func (h *PrescriptionHandler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (h *PrescriptionHandler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"detail": message})
}

func queryInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func queryID(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
