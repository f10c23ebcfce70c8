// Package prescription holds the prescription record and its persistence.
package prescription

import (
	"errors"
	"time"
)

// Prescription is the persisted record. IssuedAt is assigned by the store
// at insert time; records are never updated or deleted afterwards.
type Prescription struct {
	PrescriptionID int64     `json:"prescription_id"`
	AppointmentID  int64     `json:"appointment_id"`
	PatientID      int64     `json:"patient_id"`
	DoctorID       int64     `json:"doctor_id"`
	Medication     string    `json:"medication"`
	Dosage         string    `json:"dosage"`
	Days           int       `json:"days"`
	IssuedAt       time.Time `json:"issued_at"`
}

// CreateCommand is a candidate record: everything except the id and the
// issue timestamp, which the store assigns.
type CreateCommand struct {
	AppointmentID int64  `json:"appointment_id"`
	PatientID     int64  `json:"patient_id"`
	DoctorID      int64  `json:"doctor_id"`
	Medication    string `json:"medication"`
	Dosage        string `json:"dosage"`
	Days          int    `json:"days"`
}

// Validate checks required fields before any external call is made.
func (c *CreateCommand) Validate() error {
	if c.AppointmentID <= 0 {
		return errors.New("appointment_id is required")
	}
	if c.PatientID <= 0 {
		return errors.New("patient_id is required")
	}
	if c.DoctorID <= 0 {
		return errors.New("doctor_id is required")
	}
	if c.Medication == "" {
		return errors.New("medication is required")
	}
	if c.Dosage == "" {
		return errors.New("dosage is required")
	}
	if c.Days <= 0 {
		return errors.New("days must be a positive number of days")
	}
	return nil
}

// Filter restricts a listing. A zero field means no restriction; set
// fields are ANDed together.
type Filter struct {
	PatientID     int64
	AppointmentID int64
}

// Page is offset-based pagination over the issued_at DESC ordering.
type Page struct {
	Skip  int
	Limit int
}

const (
	DefaultLimit = 100
	MaxLimit     = 100
)

// Normalize clamps a page to the allowed bounds.
func (p Page) Normalize() Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit <= 0 || p.Limit > MaxLimit {
		p.Limit = DefaultLimit
	}
	return p
}
