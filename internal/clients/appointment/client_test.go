package appointment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/medtrack/prescription-service/pkg/circuitbreaker"
)

func appointmentServer(t *testing.T, status string, patientID, doctorID int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/appointments/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"appointment_id":10,"patient_id":%d,"doctor_id":%d,"status":"%s"}`,
			patientID, doctorID, status)
	}))
}

func TestVerify_Success(t *testing.T) {
	srv := appointmentServer(t, StatusCompleted, 20, 30)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil, nil)
	appt, err := c.Verify(context.Background(), 10, 20, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Status != StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", appt.Status)
	}
}

func TestVerify_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil, nil)
	_, err := c.Verify(context.Background(), 10, 20, 30)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestVerify_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil, nil)
	_, err := c.Verify(context.Background(), 10, 20, 30)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestVerify_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, time.Second, nil, nil)
	_, err := c.Verify(context.Background(), 10, 20, 30)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestVerify_UndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil, nil)
	_, err := c.Verify(context.Background(), 10, 20, 30)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestVerify_MissingStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"appointment_id":10,"patient_id":20,"doctor_id":30}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil, nil)
	_, err := c.Verify(context.Background(), 10, 20, 30)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestVerify_NotCompleted(t *testing.T) {
	srv := appointmentServer(t, "SCHEDULED", 20, 30)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil, nil)
	_, err := c.Verify(context.Background(), 10, 20, 30)

	var ruleErr *RuleError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected RuleError, got %v", err)
	}
	if ruleErr.Reason != ReasonNotCompleted {
		t.Errorf("expected ReasonNotCompleted, got %s", ruleErr.Reason)
	}
	if !strings.Contains(ruleErr.Detail, "SCHEDULED") {
		t.Errorf("detail must include the observed status: %s", ruleErr.Detail)
	}
}

func TestVerify_PatientMismatch(t *testing.T) {
	srv := appointmentServer(t, StatusCompleted, 21, 30)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil, nil)
	_, err := c.Verify(context.Background(), 10, 20, 30)

	var ruleErr *RuleError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected RuleError, got %v", err)
	}
	if ruleErr.Reason != ReasonPatientMismatch {
		t.Errorf("expected ReasonPatientMismatch, got %s", ruleErr.Reason)
	}
}

func TestVerify_DoctorMismatch(t *testing.T) {
	srv := appointmentServer(t, StatusCompleted, 20, 31)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil, nil)
	_, err := c.Verify(context.Background(), 10, 20, 30)

	var ruleErr *RuleError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected RuleError, got %v", err)
	}
	if ruleErr.Reason != ReasonDoctorMismatch {
		t.Errorf("expected ReasonDoctorMismatch, got %s", ruleErr.Reason)
	}
}

// Checks run in order and short-circuit: a non-completed appointment with a
// mismatched patient reports only the status violation.
func TestVerify_ChecksShortCircuit(t *testing.T) {
	srv := appointmentServer(t, "CANCELLED", 99, 88)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil, nil)
	_, err := c.Verify(context.Background(), 10, 20, 30)

	var ruleErr *RuleError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected RuleError, got %v", err)
	}
	if ruleErr.Reason != ReasonNotCompleted {
		t.Errorf("expected the status check to win, got %s", ruleErr.Reason)
	}
}

func newTestBreaker(t *testing.T, threshold uint32) *circuitbreaker.CircuitBreaker {
	t.Helper()
	cfg := BreakerConfig()
	cfg.FailureThreshold = threshold
	b, err := circuitbreaker.New(cfg, nil)
	if err != nil {
		t.Fatalf("breaker: %v", err)
	}
	return b
}

func TestVerify_BreakerOpensOnRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, newTestBreaker(t, 2), nil)

	for i := 0; i < 3; i++ {
		if _, err := c.Verify(context.Background(), 10, 20, 30); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("call %d: expected ErrUnavailable, got %v", i, err)
		}
	}
	// The third call is rejected without reaching the upstream.
	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 upstream calls before the circuit opened, got %d", n)
	}
}

func TestVerify_NotFoundDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, newTestBreaker(t, 2), nil)

	for i := 0; i < 4; i++ {
		if _, err := c.Verify(context.Background(), 10, 20, 30); !errors.Is(err, ErrNotFound) {
			t.Fatalf("call %d: expected ErrNotFound, got %v", i, err)
		}
	}
}
