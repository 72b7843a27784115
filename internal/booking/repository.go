package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound        = errors.New("doctor not found")
	ErrPatientNotFound       = errors.New("patient not found")
	ErrAppointmentNotFound   = errors.New("appointment not found")
	ErrDoctorVersionConflict = errors.New("doctor slots modified concurrently")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	// UpdateDoctorSlots writes the doctor's slot collections with a
	// compare-and-swap on version and returns the new version. A stale
	// version fails with ErrDoctorVersionConflict so the caller can reload
	// and re-validate.
	UpdateDoctorSlots(ctx context.Context, id uuid.UUID, slots SlotSet, version int64) (int64, error)

	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
	SetAppointmentCompleted(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
