package booking

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04", value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return parsed
}

func TestPurgeStale(t *testing.T) {
	now := mustTime(t, "2025-06-01 10:30")

	set := SlotSet{
		Available: []Slot{
			{Date: "2025-05-31", Time: "09:00"}, // past date
			{Date: "2025-06-01", Time: "09:00"}, // today, elapsed
			{Date: "2025-06-01", Time: "10:30"}, // today, exactly now: counts as elapsed
			{Date: "2025-06-01", Time: "11:00"}, // today, future
			{Date: "2025-06-02", Time: "09:00"}, // future date
			{Date: "", Time: "09:00"},           // malformed
		},
	}

	removed := set.PurgeStale(now)
	if removed != 4 {
		t.Fatalf("expected 4 removed, got %d", removed)
	}
	if len(set.Available) != 2 {
		t.Fatalf("expected 2 remaining, got %d: %+v", len(set.Available), set.Available)
	}
	if set.Available[0] != (Slot{Date: "2025-06-01", Time: "11:00"}) {
		t.Fatalf("unexpected first survivor: %+v", set.Available[0])
	}
	if set.Available[1] != (Slot{Date: "2025-06-02", Time: "09:00"}) {
		t.Fatalf("unexpected second survivor: %+v", set.Available[1])
	}
}

func TestPurgeStaleEmpty(t *testing.T) {
	var set SlotSet
	if removed := set.PurgeStale(mustTime(t, "2025-06-01 10:30")); removed != 0 {
		t.Fatalf("expected 0 removed on empty set, got %d", removed)
	}
}

func TestFindAvailableExactStringMatch(t *testing.T) {
	set := SlotSet{
		Available: []Slot{
			{Date: "2025-06-01", Time: "09:00"},
			{Date: "2025-06-01", Time: "09:30"},
		},
	}

	if idx := set.FindAvailable("2025-06-01", "09:30"); idx != 1 {
		t.Fatalf("expected index 1, got %d", idx)
	}
	// No normalization: "9:30" is not "09:30".
	if idx := set.FindAvailable("2025-06-01", "9:30"); idx != -1 {
		t.Fatalf("expected -1 for unnormalized time, got %d", idx)
	}
	if idx := set.FindAvailable("2025-06-02", "09:00"); idx != -1 {
		t.Fatalf("expected -1 for absent date, got %d", idx)
	}
}

func TestMoveToBooked(t *testing.T) {
	patientID := uuid.New()
	bookedAt := mustTime(t, "2025-05-20 08:00")

	set := SlotSet{
		Available: []Slot{
			{Date: "2025-06-01", Time: "09:00"},
			{Date: "2025-06-01", Time: "09:30"},
		},
	}

	entry, err := set.MoveToBooked("2025-06-01", "09:00", BookingDetails{
		PatientID:    patientID,
		PatientName:  "Jordan Reed",
		PatientEmail: "jordan@example.com",
		BookedAt:     bookedAt,
	})
	if err != nil {
		t.Fatalf("MoveToBooked failed: %v", err)
	}

	if entry.Status != BookedStatusConfirmed {
		t.Fatalf("expected confirmed status, got %s", entry.Status)
	}
	if entry.PatientID != patientID || entry.PatientName != "Jordan Reed" {
		t.Fatalf("booking details not carried over: %+v", entry)
	}
	if !entry.BookedAt.Equal(bookedAt) {
		t.Fatalf("expected bookedAt %s, got %s", bookedAt, entry.BookedAt)
	}

	if len(set.Available) != 1 || set.Available[0].Time != "09:30" {
		t.Fatalf("available not reduced correctly: %+v", set.Available)
	}
	if len(set.Booked) != 1 {
		t.Fatalf("expected 1 booked entry, got %d", len(set.Booked))
	}
}

func TestMoveToBookedNotAvailable(t *testing.T) {
	set := SlotSet{Available: []Slot{{Date: "2025-06-01", Time: "09:00"}}}

	_, err := set.MoveToBooked("2025-06-01", "10:00", BookingDetails{PatientID: uuid.New()})
	if !errors.Is(err, ErrSlotNotAvailable) {
		t.Fatalf("expected ErrSlotNotAvailable, got %v", err)
	}
	if len(set.Available) != 1 || len(set.Booked) != 0 {
		t.Fatalf("failed move must not mutate: %+v", set)
	}
}

func TestReleaseFromBookedOwnership(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()

	set := SlotSet{
		Booked: []BookedSlot{
			{Date: "2025-06-01", Time: "09:00", PatientID: owner, Status: BookedStatusConfirmed},
		},
	}

	// Wrong patient cannot release.
	if _, err := set.ReleaseFromBooked("2025-06-01", "09:00", &other); !errors.Is(err, ErrBookedSlotNotFound) {
		t.Fatalf("expected ErrBookedSlotNotFound for non-owner, got %v", err)
	}
	if len(set.Booked) != 1 {
		t.Fatalf("failed release must not mutate, got %+v", set.Booked)
	}

	// Owner can.
	freed, err := set.ReleaseFromBooked("2025-06-01", "09:00", &owner)
	if err != nil {
		t.Fatalf("ReleaseFromBooked failed: %v", err)
	}
	if freed != (Slot{Date: "2025-06-01", Time: "09:00"}) {
		t.Fatalf("unexpected freed slot: %+v", freed)
	}
	if len(set.Booked) != 0 {
		t.Fatalf("expected empty booked set, got %+v", set.Booked)
	}
}

func TestReleaseFromBookedAdminMatchesAnyPatient(t *testing.T) {
	set := SlotSet{
		Booked: []BookedSlot{
			{Date: "2025-06-01", Time: "09:00", PatientID: uuid.New(), Status: BookedStatusConfirmed},
		},
	}

	if _, err := set.ReleaseFromBooked("2025-06-01", "09:00", nil); err != nil {
		t.Fatalf("admin release failed: %v", err)
	}
	if len(set.Booked) != 0 {
		t.Fatalf("expected empty booked set, got %+v", set.Booked)
	}
}

func TestEnsureAvailableIdempotent(t *testing.T) {
	var set SlotSet

	if !set.EnsureAvailable("2025-06-01", "09:00") {
		t.Fatal("first insert should report added")
	}
	if set.EnsureAvailable("2025-06-01", "09:00") {
		t.Fatal("second insert should be a no-op")
	}
	if len(set.Available) != 1 {
		t.Fatalf("expected exactly one entry, got %+v", set.Available)
	}
}

func TestMarkBookedStatus(t *testing.T) {
	patientID := uuid.New()
	set := SlotSet{
		Booked: []BookedSlot{
			{Date: "2025-06-01", Time: "09:00", PatientID: patientID, Status: BookedStatusConfirmed},
		},
	}

	if !set.MarkBookedStatus("2025-06-01", "09:00", patientID, BookedStatusCompleted) {
		t.Fatal("expected entry to be marked")
	}
	if set.Booked[0].Status != BookedStatusCompleted {
		t.Fatalf("status not updated: %s", set.Booked[0].Status)
	}
	if set.MarkBookedStatus("2025-06-01", "09:00", uuid.New(), BookedStatusCancelled) {
		t.Fatal("expected no match for different patient")
	}
}

func TestValidateSlots(t *testing.T) {
	now := mustTime(t, "2025-06-01 10:00")

	cases := []struct {
		name  string
		slots []Slot
		valid bool
	}{
		{"ok", []Slot{{Date: "2025-06-02", Time: "09:00"}}, true},
		{"today ok", []Slot{{Date: "2025-06-01", Time: "09:00"}}, true},
		{"empty time", []Slot{{Date: "2025-06-02", Time: ""}}, false},
		{"bad date format", []Slot{{Date: "02-06-2025", Time: "09:00"}}, false},
		{"bad time format", []Slot{{Date: "2025-06-02", Time: "9am"}}, false},
		{"past date", []Slot{{Date: "2025-05-31", Time: "09:00"}}, false},
	}

	for _, tc := range cases {
		err := ValidateSlots(tc.slots, now)
		if tc.valid && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.valid {
			if err == nil {
				t.Fatalf("%s: expected validation error", tc.name)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("%s: expected ErrValidation, got %v", tc.name, err)
			}
		}
	}
}

func TestSortSlots(t *testing.T) {
	slots := []Slot{
		{Date: "2025-06-02", Time: "09:00"},
		{Date: "2025-06-01", Time: "10:00"},
		{Date: "2025-06-01", Time: "09:00"},
		{Date: "2025-06-01", Time: "09:00"}, // duplicate
	}

	sorted := SortSlots(slots)

	want := []Slot{
		{Date: "2025-06-01", Time: "09:00"},
		{Date: "2025-06-01", Time: "10:00"},
		{Date: "2025-06-02", Time: "09:00"},
	}
	if len(sorted) != len(want) {
		t.Fatalf("expected %d slots, got %d: %+v", len(want), len(sorted), sorted)
	}
	for i := range want {
		if sorted[i] != want[i] {
			t.Fatalf("position %d: expected %+v, got %+v", i, want[i], sorted[i])
		}
	}
}
