// Package appointments owns the durable appointment records and the booking
// transaction that guards against double-booking.
package appointments

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the appointment lifecycle state. Appointments are never deleted;
// status transitions are the only permitted mutation after creation.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// ParseStatus normalizes a status string from the admin API.
func ParseStatus(s string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(s)))
	return status, ValidStatus(status)
}

// SlotLayout is the canonical slot start format, e.g. "14:00".
const SlotLayout = "15:04"

// Appointment is a committed booking.
type Appointment struct {
	ID             uuid.UUID  `json:"id"`
	PatientName    string     `json:"patient_name"`
	PatientAge     int        `json:"patient_age"`
	Phone          string     `json:"phone"`
	Complaint      string     `json:"complaint"`
	Date           time.Time  `json:"date"`       // calendar date, midnight
	SlotStart      string     `json:"slot_start"` // "15:04"
	Status         Status     `json:"status"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// StartAt combines date and slot start into the appointment's start instant.
func (a *Appointment) StartAt() time.Time {
	t, err := time.ParseInLocation(SlotLayout, a.SlotStart, a.Date.Location())
	if err != nil {
		return a.Date
	}
	return time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), t.Hour(), t.Minute(), 0, 0, a.Date.Location())
}

// DateString returns the calendar date in wire format.
func (a *Appointment) DateString() string {
	return a.Date.Format("2006-01-02")
}
