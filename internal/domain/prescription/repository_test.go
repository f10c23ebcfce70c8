package prescription

import "testing"

func TestBuildWhere_NoFilter(t *testing.T) {
	where, args := buildWhere(Filter{})
	if where != "" {
		t.Errorf("expected empty clause, got %q", where)
	}
	if len(args) != 0 {
		t.Errorf("expected no args, got %v", args)
	}
}

func TestBuildWhere_PatientOnly(t *testing.T) {
	where, args := buildWhere(Filter{PatientID: 42})
	if where != " WHERE patient_id = $1" {
		t.Errorf("unexpected clause: %q", where)
	}
	if len(args) != 1 || args[0] != int64(42) {
		t.Errorf("unexpected args: %v", args)
	}
}

func TestBuildWhere_AppointmentOnly(t *testing.T) {
	where, args := buildWhere(Filter{AppointmentID: 7})
	if where != " WHERE appointment_id = $1" {
		t.Errorf("unexpected clause: %q", where)
	}
	if len(args) != 1 || args[0] != int64(7) {
		t.Errorf("unexpected args: %v", args)
	}
}

func TestBuildWhere_BothFilters(t *testing.T) {
	where, args := buildWhere(Filter{PatientID: 42, AppointmentID: 7})
	if where != " WHERE patient_id = $1 AND appointment_id = $2" {
		t.Errorf("unexpected clause: %q", where)
	}
	if len(args) != 2 || args[0] != int64(42) || args[1] != int64(7) {
		t.Errorf("unexpected args: %v", args)
	}
}
