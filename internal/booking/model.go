package booking

import (
	"time"

	"github.com/google/uuid"
)

type BookedSlotStatus string

const (
	BookedStatusPending   BookedSlotStatus = "pending"
	BookedStatusConfirmed BookedSlotStatus = "confirmed"
	BookedStatusCompleted BookedSlotStatus = "completed"
	BookedStatusCancelled BookedSlotStatus = "cancelled"
)

// Slot is one bookable window owned by a doctor. Date is "YYYY-MM-DD" and
// Time is "HH:MM"; both are compared as plain strings, which for these
// formats coincides with calendar order. They are never parsed into a
// timezone-aware type.
type Slot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// BookedSlot is an available slot that a patient has claimed, carrying the
// patient contact details captured at booking time.
type BookedSlot struct {
	Date         string           `json:"date"`
	Time         string           `json:"time"`
	PatientID    uuid.UUID        `json:"patient_id"`
	PatientName  string           `json:"patient_name"`
	PatientEmail string           `json:"patient_email,omitempty"`
	PatientPhone string           `json:"patient_phone,omitempty"`
	BookedAt     time.Time        `json:"booked_at"`
	Status       BookedSlotStatus `json:"status"`
}

type Doctor struct {
	ID         uuid.UUID
	Name       string
	Email      string
	Image      string
	Speciality string
	Degree     string
	Experience string
	About      string
	Available  bool
	Fees       int64
	Slots      SlotSet
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PatientSnapshot and DoctorSnapshot are denormalized copies embedded in an
// Appointment when it is created, so later profile edits do not rewrite
// appointment history.
type PatientSnapshot struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email,omitempty"`
	Phone string    `json:"phone,omitempty"`
}

type DoctorSnapshot struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Image      string    `json:"image,omitempty"`
	Speciality string    `json:"speciality"`
	Degree     string    `json:"degree"`
	Experience string    `json:"experience"`
	Fees       int64     `json:"fees"`
}

type Appointment struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	SlotDate    string
	SlotTime    string
	Patient     PatientSnapshot
	Doctor      DoctorSnapshot
	Amount      int64
	Canceled    bool
	Payment     bool
	IsCompleted bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
