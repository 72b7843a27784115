package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/docpoint/slot-booking/internal/redis"
)

const (
	EventBookingConfirmed     = "BOOKING_CONFIRMED"
	EventBookingCancelled     = "BOOKING_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrSlotNotAvailable   = errors.New("selected slot not available")
	ErrBookedSlotNotFound = errors.New("booked slot not found")
	ErrForbidden          = errors.New("not allowed to act on this appointment")
	ErrDoctorBusy         = errors.New("doctor is being booked, please retry")
	ErrPersistence        = errors.New("persistence failure")
)

// Actor identifies who is acting on an appointment: a patient (who may only
// cancel their own), a doctor (who may only complete their own visits) or an
// admin (who may do either).
type Actor struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Admin     bool
}

func PatientActor(id uuid.UUID) Actor { return Actor{PatientID: id} }
func DoctorActor(id uuid.UUID) Actor  { return Actor{DoctorID: id} }
func AdminActor() Actor               { return Actor{Admin: true} }

type CancellationResult struct {
	AppointmentID uuid.UUID
	SlotDate      string
	SlotTime      string
	SlotRestored  bool
}

// casAttempts bounds the reload-and-retry loop on doctor version conflicts.
const casAttempts = 3

type Service struct {
	repo   Repository
	locker redisclient.Locker
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		log:    log,
		now:    time.Now,
	}
}

// BookAppointment moves the requested slot from the doctor's available set to
// its booked set, then creates the Appointment record with denormalized
// patient and doctor snapshots.
//
// The doctor-side write is persisted before the appointment is created. A
// failure between the two leaves a booked slot with no appointment, which is
// the recoverable direction: the slot is provably taken and nothing can
// double-book it. The reverse ordering could hand out an appointment whose
// slot was never reserved.
func (s *Service) BookAppointment(ctx context.Context, patientID, doctorID uuid.UUID, slotDate, slotTime string) (*Appointment, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrValidation)
	}
	if doctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor_id is required", ErrValidation)
	}
	if slotDate == "" || slotTime == "" {
		return nil, fmt.Errorf("%w: slot_date and slot_time are required", ErrValidation)
	}

	details := s.patientDetails(ctx, patientID)

	var created *Appointment

	err := s.locker.WithDoctorLock(ctx, doctorID, func(lockCtx context.Context) error {
		doctor, entry, err := s.allocate(lockCtx, doctorID, slotDate, slotTime, details)
		if err != nil {
			return err
		}

		// The slot write is committed. From here the saga finishes on a
		// detached context so a dropped client connection cannot abandon
		// the appointment write or its compensation.
		opCtx := context.WithoutCancel(lockCtx)

		appt := &Appointment{
			PatientID: patientID,
			DoctorID:  doctor.ID,
			SlotDate:  entry.Date,
			SlotTime:  entry.Time,
			Patient: PatientSnapshot{
				ID:    patientID,
				Name:  details.PatientName,
				Email: details.PatientEmail,
				Phone: details.PatientPhone,
			},
			Doctor: DoctorSnapshot{
				ID:         doctor.ID,
				Name:       doctor.Name,
				Image:      doctor.Image,
				Speciality: doctor.Speciality,
				Degree:     doctor.Degree,
				Experience: doctor.Experience,
				Fees:       doctor.Fees,
			},
			Amount: doctor.Fees,
		}

		created, err = s.repo.CreateAppointment(opCtx, appt)
		if err != nil {
			s.compensateAllocation(opCtx, doctor, entry)
			return fmt.Errorf("%w: create appointment: %v", ErrPersistence, err)
		}

		s.logEvent(opCtx, created.ID, EventBookingConfirmed, map[string]any{
			"doctor_id":  doctorID.String(),
			"patient_id": patientID.String(),
			"slot_date":  entry.Date,
			"slot_time":  entry.Time,
		})

		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrDoctorBusy
		}
		if errors.Is(err, redisclient.ErrLockUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		return nil, err
	}

	return created, nil
}

// patientDetails loads the patient contact snapshot. A missing or unreadable
// profile degrades to defaults instead of failing the booking.
func (s *Service) patientDetails(ctx context.Context, patientID uuid.UUID) BookingDetails {
	details := BookingDetails{
		PatientID:   patientID,
		PatientName: "Unknown",
		BookedAt:    s.now(),
	}

	patient, err := s.repo.GetPatientByID(ctx, patientID)
	if err != nil {
		if !errors.Is(err, ErrPatientNotFound) {
			s.log.Warn().Err(err).Str("patient_id", patientID.String()).
				Msg("could not load patient profile, booking with defaults")
		}
		return details
	}

	if patient.Name != "" {
		details.PatientName = patient.Name
	}
	details.PatientEmail = patient.Email
	details.PatientPhone = patient.Phone
	return details
}

// allocate is the only path that moves a slot from available to booked.
// Stale slots are purged first, so an elapsed slot can never be booked even
// if the doctor never removed it. On a version conflict the doctor is
// reloaded and the slot re-validated, so two racing allocations produce
// exactly one winner.
func (s *Service) allocate(ctx context.Context, doctorID uuid.UUID, slotDate, slotTime string, details BookingDetails) (*Doctor, BookedSlot, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
		if err != nil {
			if errors.Is(err, ErrDoctorNotFound) {
				return nil, BookedSlot{}, err
			}
			return nil, BookedSlot{}, fmt.Errorf("%w: load doctor: %v", ErrPersistence, err)
		}

		purged := doctor.Slots.PurgeStale(s.now())

		entry, err := doctor.Slots.MoveToBooked(slotDate, slotTime, details)
		if err != nil {
			// The slot is gone: someone else booked it, or the purge just
			// removed it as past. Persist the purge so the stale entries do
			// not linger, but the booking itself is rejected either way.
			if purged > 0 {
				if _, saveErr := s.repo.UpdateDoctorSlots(ctx, doctor.ID, doctor.Slots, doctor.Version); saveErr != nil &&
					!errors.Is(saveErr, ErrDoctorVersionConflict) {
					s.log.Warn().Err(saveErr).Str("doctor_id", doctorID.String()).
						Msg("could not persist stale slot purge")
				}
			}
			return nil, BookedSlot{}, ErrSlotNotAvailable
		}

		version, err := s.repo.UpdateDoctorSlots(ctx, doctor.ID, doctor.Slots, doctor.Version)
		if err != nil {
			if errors.Is(err, ErrDoctorVersionConflict) {
				continue
			}
			if errors.Is(err, ErrDoctorNotFound) {
				return nil, BookedSlot{}, err
			}
			return nil, BookedSlot{}, fmt.Errorf("%w: save doctor slots: %v", ErrPersistence, err)
		}

		doctor.Version = version
		return doctor, entry, nil
	}

	return nil, BookedSlot{}, ErrSlotNotAvailable
}

// compensateAllocation undoes an in-flight allocation after the appointment
// write failed: the booked entry is released and the slot returned to the
// available set. Best effort; a failure here leaves a booked slot with no
// appointment, which later cancellation-style reconciliation can repair.
func (s *Service) compensateAllocation(ctx context.Context, doctor *Doctor, entry BookedSlot) {
	if _, err := doctor.Slots.ReleaseFromBooked(entry.Date, entry.Time, &entry.PatientID); err != nil {
		s.log.Error().Err(err).Str("doctor_id", doctor.ID.String()).
			Str("slot_date", entry.Date).Str("slot_time", entry.Time).
			Msg("compensation could not find booked entry")
		return
	}
	doctor.Slots.EnsureAvailable(entry.Date, entry.Time)

	if _, err := s.repo.UpdateDoctorSlots(ctx, doctor.ID, doctor.Slots, doctor.Version); err != nil {
		s.log.Error().Err(err).Str("doctor_id", doctor.ID.String()).
			Str("slot_date", entry.Date).Str("slot_time", entry.Time).
			Msg("compensation write failed, slot left booked without appointment")
	}
}

// CancelAppointment deletes the appointment and returns its slot to the
// doctor's available set. Patients may only cancel their own appointments;
// admins may cancel any. Slot reconciliation tolerates drift: even if the
// booked entry was already removed out-of-band, the appointment's own
// recorded coordinates are restored to the available set.
func (s *Service) CancelAppointment(ctx context.Context, appointmentID uuid.UUID, actor Actor) (*CancellationResult, error) {
	if appointmentID == uuid.Nil {
		return nil, fmt.Errorf("%w: appointment_id is required", ErrValidation)
	}
	if !actor.Admin && actor.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: actor is required", ErrValidation)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load appointment: %v", ErrPersistence, err)
	}

	if !actor.Admin && appt.PatientID != actor.PatientID {
		return nil, ErrForbidden
	}

	// Capture the slot coordinates before the record disappears.
	slotDate := appt.SlotDate
	slotTime := appt.SlotTime
	doctorID := appt.DoctorID
	patientID := appt.PatientID

	if err := s.repo.DeleteAppointment(ctx, appointmentID); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: delete appointment: %v", ErrPersistence, err)
	}

	// The appointment is gone; reconciliation must finish server-side even
	// if the caller disconnects, so it runs on a detached context.
	opCtx := context.WithoutCancel(ctx)

	// Patient-initiated cancellation releases only that patient's booked
	// entry; admin cancellation matches on coordinates alone.
	var patientMatch *uuid.UUID
	if !actor.Admin {
		patientMatch = &patientID
	}

	restored := s.reconcileSlotWithLock(opCtx, doctorID, slotDate, slotTime, patientMatch)

	s.logEvent(opCtx, appointmentID, EventBookingCancelled, map[string]any{
		"doctor_id":  doctorID.String(),
		"patient_id": patientID.String(),
		"slot_date":  slotDate,
		"slot_time":  slotTime,
		"admin":      actor.Admin,
	})

	return &CancellationResult{
		AppointmentID: appointmentID,
		SlotDate:      slotDate,
		SlotTime:      slotTime,
		SlotRestored:  restored,
	}, nil
}

func (s *Service) reconcileSlotWithLock(ctx context.Context, doctorID uuid.UUID, slotDate, slotTime string, patientMatch *uuid.UUID) bool {
	var restored bool
	err := s.locker.WithDoctorLock(ctx, doctorID, func(lockCtx context.Context) error {
		restored = s.reconcileSlot(lockCtx, doctorID, slotDate, slotTime, patientMatch)
		return nil
	})
	if err != nil {
		// The callback never fails, so any error is the lock layer: held by
		// someone else or unreachable. The appointment is already deleted and
		// the version CAS keeps the unlocked path safe, so reconcile anyway.
		s.log.Warn().Err(err).Str("doctor_id", doctorID.String()).
			Msg("reconciling without doctor lock")
		restored = s.reconcileSlot(ctx, doctorID, slotDate, slotTime, patientMatch)
	}
	return restored
}

// reconcileSlot removes the booked entry and reinserts the freed slot into
// the available set. If the booked entry is gone it still ensures the
// appointment's own coordinates are available, so a slot is never lost to
// drift; the idempotent insert means retries cannot duplicate it.
func (s *Service) reconcileSlot(ctx context.Context, doctorID uuid.UUID, slotDate, slotTime string, patientMatch *uuid.UUID) bool {
	for attempt := 0; attempt < casAttempts; attempt++ {
		doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
		if err != nil {
			// A missing doctor is not a cancellation failure: the
			// appointment deletion already succeeded.
			if !errors.Is(err, ErrDoctorNotFound) {
				s.log.Error().Err(err).Str("doctor_id", doctorID.String()).
					Msg("could not load doctor for slot reconciliation")
			}
			return false
		}

		changed := false
		restored := false

		freed, err := doctor.Slots.ReleaseFromBooked(slotDate, slotTime, patientMatch)
		if err == nil {
			changed = true
			doctor.Slots.EnsureAvailable(freed.Date, freed.Time)
			restored = true
		} else {
			// Booked entry already gone; restore what we know from the
			// appointment itself.
			if doctor.Slots.EnsureAvailable(slotDate, slotTime) {
				changed = true
			}
			restored = true
		}

		if !changed {
			return restored
		}

		if _, err := s.repo.UpdateDoctorSlots(ctx, doctor.ID, doctor.Slots, doctor.Version); err != nil {
			if errors.Is(err, ErrDoctorVersionConflict) {
				continue
			}
			s.log.Error().Err(err).Str("doctor_id", doctorID.String()).
				Str("slot_date", slotDate).Str("slot_time", slotTime).
				Msg("could not persist slot reconciliation")
			return false
		}
		return restored
	}

	s.log.Error().Str("doctor_id", doctorID.String()).
		Str("slot_date", slotDate).Str("slot_time", slotTime).
		Msg("slot reconciliation gave up after repeated version conflicts")
	return false
}

// CompleteAppointment marks a visit as done and flips the matching booked
// entry to completed. Only the appointment's own doctor or an admin may
// complete it. The booked entry stays in place; completion does not free the
// slot.
func (s *Service) CompleteAppointment(ctx context.Context, appointmentID uuid.UUID, actor Actor) (*Appointment, error) {
	if appointmentID == uuid.Nil {
		return nil, fmt.Errorf("%w: appointment_id is required", ErrValidation)
	}
	if !actor.Admin && actor.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: actor is required", ErrValidation)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load appointment: %v", ErrPersistence, err)
	}

	if !actor.Admin && appt.DoctorID != actor.DoctorID {
		return nil, ErrForbidden
	}

	appt, err = s.repo.SetAppointmentCompleted(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: complete appointment: %v", ErrPersistence, err)
	}

	s.markBookedCompleted(ctx, appt)

	s.logEvent(ctx, appt.ID, EventAppointmentCompleted, map[string]any{
		"doctor_id":  appt.DoctorID.String(),
		"patient_id": appt.PatientID.String(),
	})

	return appt, nil
}

func (s *Service) markBookedCompleted(ctx context.Context, appt *Appointment) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		doctor, err := s.repo.GetDoctorByID(ctx, appt.DoctorID)
		if err != nil {
			if !errors.Is(err, ErrDoctorNotFound) {
				s.log.Warn().Err(err).Str("doctor_id", appt.DoctorID.String()).
					Msg("could not load doctor to mark booked slot completed")
			}
			return
		}

		if !doctor.Slots.MarkBookedStatus(appt.SlotDate, appt.SlotTime, appt.PatientID, BookedStatusCompleted) {
			return
		}

		if _, err := s.repo.UpdateDoctorSlots(ctx, doctor.ID, doctor.Slots, doctor.Version); err != nil {
			if errors.Is(err, ErrDoctorVersionConflict) {
				continue
			}
			s.log.Warn().Err(err).Str("doctor_id", appt.DoctorID.String()).
				Msg("could not persist booked slot completion")
			return
		}
		return
	}
}

// ListAvailability returns the doctor's raw available slots. No purge and no
// write; stale slots fall out lazily inside the next allocation.
func (s *Service) ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]Slot, error) {
	if doctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor_id is required", ErrValidation)
	}

	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load doctor: %v", ErrPersistence, err)
	}

	if doctor.Slots.Available == nil {
		return []Slot{}, nil
	}
	return doctor.Slots.Available, nil
}

// SetAvailability validates, sorts and wholesale-replaces the doctor's
// available slots. Booked slots are untouched.
func (s *Service) SetAvailability(ctx context.Context, doctorID uuid.UUID, slots []Slot) ([]Slot, error) {
	if doctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor_id is required", ErrValidation)
	}
	if err := ValidateSlots(slots, s.now()); err != nil {
		return nil, err
	}

	sorted := SortSlots(append([]Slot(nil), slots...))

	var result []Slot
	err := s.locker.WithDoctorLock(ctx, doctorID, func(lockCtx context.Context) error {
		return s.replaceAvailability(lockCtx, doctorID, sorted, &result)
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrDoctorBusy
		}
		if errors.Is(err, redisclient.ErrLockUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		return nil, err
	}

	return result, nil
}

func (s *Service) replaceAvailability(ctx context.Context, doctorID uuid.UUID, sorted []Slot, result *[]Slot) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
		if err != nil {
			if errors.Is(err, ErrDoctorNotFound) {
				return err
			}
			return fmt.Errorf("%w: load doctor: %v", ErrPersistence, err)
		}

		doctor.Slots.Available = sorted

		if _, err := s.repo.UpdateDoctorSlots(ctx, doctor.ID, doctor.Slots, doctor.Version); err != nil {
			if errors.Is(err, ErrDoctorVersionConflict) {
				continue
			}
			if errors.Is(err, ErrDoctorNotFound) {
				return err
			}
			return fmt.Errorf("%w: save availability: %v", ErrPersistence, err)
		}

		*result = sorted
		return nil
	}

	return fmt.Errorf("%w: save availability: too many version conflicts", ErrPersistence)
}

// GetAppointment retrieves an appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: get appointment: %v", ErrPersistence, err)
	}
	return appt, nil
}

// ListAppointmentsByPatient retrieves a patient's appointments, newest first.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrValidation)
	}
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list appointments: %v", ErrPersistence, err)
	}
	return appointments, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).Msg("failed to insert event log")
	}
}
