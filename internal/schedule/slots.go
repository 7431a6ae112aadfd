// Package schedule computes bookable time slots within clinic operating hours.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPastDate is returned when availability is requested for a past date.
	ErrPastDate = errors.New("schedule: date is in the past")

	// ErrBeyondHorizon is returned when the date falls outside the booking horizon.
	ErrBeyondHorizon = errors.New("schedule: date is beyond the booking horizon")

	// ErrInvalidWindow is returned when the configured operating window cannot
	// produce any slots.
	ErrInvalidWindow = errors.New("schedule: invalid operating window")
)

// Slot is a fixed-duration bookable interval within clinic hours.
type Slot struct {
	Start    time.Time
	Duration time.Duration
}

// Label returns the 24-hour start time, e.g. "14:00". Labels are the
// canonical slot identity used for matching and persistence.
func (s Slot) Label() string {
	return s.Start.Format("15:04")
}

// Display returns the patient-facing time, e.g. "02:00 PM".
func (s Slot) Display() string {
	return s.Start.Format("03:04 PM")
}

// Engine generates slots from the clinic's operating window.
type Engine struct {
	openHour     int
	closeHour    int
	slotDuration time.Duration
	horizonDays  int
}

// NewEngine builds an availability engine from plain scalar configuration.
func NewEngine(openHour, closeHour, slotMinutes, horizonDays int) (*Engine, error) {
	if openHour < 0 || closeHour > 24 || openHour >= closeHour {
		return nil, fmt.Errorf("%w: open=%d close=%d", ErrInvalidWindow, openHour, closeHour)
	}
	if slotMinutes <= 0 {
		return nil, fmt.Errorf("%w: slot duration %dm", ErrInvalidWindow, slotMinutes)
	}
	if horizonDays <= 0 {
		horizonDays = 30
	}
	return &Engine{
		openHour:     openHour,
		closeHour:    closeHour,
		slotDuration: time.Duration(slotMinutes) * time.Minute,
		horizonDays:  horizonDays,
	}, nil
}

// SlotsForDay generates every slot for the operating window on date,
// ordered by start time. Slots are mutually exclusive and cover exactly
// [open, close) at the configured duration.
func (e *Engine) SlotsForDay(date time.Time) []Slot {
	day := truncateToDay(date)
	open := day.Add(time.Duration(e.openHour) * time.Hour)
	close := day.Add(time.Duration(e.closeHour) * time.Hour)

	var slots []Slot
	for start := open; start.Add(e.slotDuration).Before(close) || start.Add(e.slotDuration).Equal(close); start = start.Add(e.slotDuration) {
		slots = append(slots, Slot{Start: start, Duration: e.slotDuration})
	}
	return slots
}

// AvailableSlots returns the ordered slots on date that are not taken.
// takenLabels holds the slot labels of existing scheduled appointments.
// An empty result is a valid answer meaning the day is fully booked.
func (e *Engine) AvailableSlots(date time.Time, now time.Time, takenLabels []string) ([]Slot, error) {
	if err := e.ValidateDate(date, now); err != nil {
		return nil, err
	}

	taken := make(map[string]struct{}, len(takenLabels))
	for _, label := range takenLabels {
		taken[label] = struct{}{}
	}

	var available []Slot
	for _, slot := range e.SlotsForDay(date) {
		if _, booked := taken[slot.Label()]; booked {
			continue
		}
		available = append(available, slot)
	}
	return available, nil
}

// ValidateDate rejects past dates and dates outside the booking horizon.
// Rejection is an explicit error, never a silent clamp.
func (e *Engine) ValidateDate(date time.Time, now time.Time) error {
	day := truncateToDay(date)
	today := truncateToDay(now)
	if day.Before(today) {
		return ErrPastDate
	}
	if day.After(today.AddDate(0, 0, e.horizonDays)) {
		return ErrBeyondHorizon
	}
	return nil
}

// HorizonDays reports the configured booking horizon.
func (e *Engine) HorizonDays() int {
	return e.horizonDays
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
