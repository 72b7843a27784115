package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/docpoint/slot-booking/internal/booking"
)

type BookAppointmentRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	SlotDate  string `json:"slot_date"`
	SlotTime  string `json:"slot_time"`
}

type AppointmentResponse struct {
	ID          uuid.UUID               `json:"id"`
	PatientID   uuid.UUID               `json:"patient_id"`
	DoctorID    uuid.UUID               `json:"doctor_id"`
	SlotDate    string                  `json:"slot_date"`
	SlotTime    string                  `json:"slot_time"`
	Patient     booking.PatientSnapshot `json:"patient"`
	Doctor      booking.DoctorSnapshot  `json:"doctor"`
	Amount      int64                   `json:"amount"`
	Canceled    bool                    `json:"canceled"`
	Payment     bool                    `json:"payment"`
	IsCompleted bool                    `json:"is_completed"`
	CreatedAt   time.Time               `json:"created_at"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		PatientID:   a.PatientID,
		DoctorID:    a.DoctorID,
		SlotDate:    a.SlotDate,
		SlotTime:    a.SlotTime,
		Patient:     a.Patient,
		Doctor:      a.Doctor,
		Amount:      a.Amount,
		Canceled:    a.Canceled,
		Payment:     a.Payment,
		IsCompleted: a.IsCompleted,
		CreatedAt:   a.CreatedAt,
	}
}

type CancellationResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	SlotDate      string    `json:"slot_date"`
	SlotTime      string    `json:"slot_time"`
	SlotRestored  bool      `json:"slot_restored"`
}

type AvailabilityRequest struct {
	Slots []booking.Slot `json:"slots_available"`
}

type AvailabilityResponse struct {
	DoctorID uuid.UUID      `json:"doctor_id"`
	Slots    []booking.Slot `json:"slots_available"`
}

type ListAppointmentsResponse struct {
	Count        int                   `json:"count"`
	Appointments []AppointmentResponse `json:"appointments"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
