package booking

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
)

// SlotSet is the pair of slot collections owned by one doctor. A given
// (date, time) pair must live in at most one of the two collections at any
// quiescent moment; the mutating methods below are the only paths that move
// entries between them.
type SlotSet struct {
	Available []Slot       `json:"available"`
	Booked    []BookedSlot `json:"booked"`
}

// BookingDetails is the patient identity and contact captured into a
// BookedSlot when a slot is claimed.
type BookingDetails struct {
	PatientID    uuid.UUID
	PatientName  string
	PatientEmail string
	PatientPhone string
	BookedAt     time.Time
}

// PurgeStale removes every available slot strictly in the past relative to
// now: earlier dates, and same-day slots whose time has already passed.
// Returns the number of entries removed. The caller decides when to persist.
func (s *SlotSet) PurgeStale(now time.Time) int {
	today := now.Format("2006-01-02")
	clock := now.Format("15:04")

	kept := s.Available[:0]
	removed := 0
	for _, slot := range s.Available {
		if slot.Date == "" || slot.Time == "" {
			removed++
			continue
		}
		if slot.Date < today || (slot.Date == today && slot.Time <= clock) {
			removed++
			continue
		}
		kept = append(kept, slot)
	}
	s.Available = kept
	return removed
}

// FindAvailable returns the index of the available slot matching date and
// time by exact string equality, or -1 if absent.
func (s *SlotSet) FindAvailable(date, tm string) int {
	for i, slot := range s.Available {
		if slot.Date == date && slot.Time == tm {
			return i
		}
	}
	return -1
}

// MoveToBooked removes the matching available slot and appends a confirmed
// booked entry built from details. Callers must purge stale slots first.
func (s *SlotSet) MoveToBooked(date, tm string, details BookingDetails) (BookedSlot, error) {
	idx := s.FindAvailable(date, tm)
	if idx == -1 {
		return BookedSlot{}, ErrSlotNotAvailable
	}

	moved := s.Available[idx]
	s.Available = append(s.Available[:idx], s.Available[idx+1:]...)

	entry := BookedSlot{
		Date:         moved.Date,
		Time:         moved.Time,
		PatientID:    details.PatientID,
		PatientName:  details.PatientName,
		PatientEmail: details.PatientEmail,
		PatientPhone: details.PatientPhone,
		BookedAt:     details.BookedAt,
		Status:       BookedStatusConfirmed,
	}
	s.Booked = append(s.Booked, entry)
	return entry, nil
}

// ReleaseFromBooked removes the booked entry matching date and time. When
// patientID is non-nil the entry must also belong to that patient; this is
// how patient-initiated cancellation enforces ownership, while admin
// cancellation passes nil and may release any patient's slot. The removed
// slot's coordinates are returned so the caller can reinsert them into the
// available set.
func (s *SlotSet) ReleaseFromBooked(date, tm string, patientID *uuid.UUID) (Slot, error) {
	for i, b := range s.Booked {
		if b.Date != date || b.Time != tm {
			continue
		}
		if patientID != nil && b.PatientID != *patientID {
			continue
		}
		s.Booked = append(s.Booked[:i], s.Booked[i+1:]...)
		return Slot{Date: b.Date, Time: b.Time}, nil
	}
	return Slot{}, ErrBookedSlotNotFound
}

// EnsureAvailable inserts (date, time) into the available set unless an
// identical entry already exists. Returns true if an entry was added.
// Idempotent, so retried or drifted cancellations never duplicate a slot.
func (s *SlotSet) EnsureAvailable(date, tm string) bool {
	if s.FindAvailable(date, tm) != -1 {
		return false
	}
	s.Available = append(s.Available, Slot{Date: date, Time: tm})
	return true
}

// MarkBookedStatus updates the status of the booked entry matching date,
// time and patient. Returns false if no such entry exists.
func (s *SlotSet) MarkBookedStatus(date, tm string, patientID uuid.UUID, status BookedSlotStatus) bool {
	for i, b := range s.Booked {
		if b.Date == date && b.Time == tm && b.PatientID == patientID {
			s.Booked[i].Status = status
			return true
		}
	}
	return false
}

var (
	slotDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	slotTimeRe = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// ValidateSlots checks every slot in a doctor-submitted availability set:
// date must be YYYY-MM-DD, time must be HH:MM, and the date must not be
// before today.
func ValidateSlots(slots []Slot, now time.Time) error {
	today := now.Format("2006-01-02")
	for _, slot := range slots {
		if slot.Date == "" || slot.Time == "" {
			return fmt.Errorf("%w: each slot must have date and time", ErrValidation)
		}
		if !slotDateRe.MatchString(slot.Date) {
			return fmt.Errorf("%w: invalid date format %q, use YYYY-MM-DD", ErrValidation, slot.Date)
		}
		if !slotTimeRe.MatchString(slot.Time) {
			return fmt.Errorf("%w: invalid time format %q, use HH:MM", ErrValidation, slot.Time)
		}
		if slot.Date < today {
			return fmt.Errorf("%w: cannot set availability for past date %s", ErrValidation, slot.Date)
		}
	}
	return nil
}

// SortSlots orders slots by date then time and drops exact duplicates.
func SortSlots(slots []Slot) []Slot {
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Date != slots[j].Date {
			return slots[i].Date < slots[j].Date
		}
		return slots[i].Time < slots[j].Time
	})

	out := slots[:0]
	for i, slot := range slots {
		if i > 0 && slot == slots[i-1] {
			continue
		}
		out = append(out, slot)
	}
	return out
}
