package appointments

import "errors"

var (
	// ErrSlotTaken is the typed conflict result: the (date, slot) pair was
	// claimed by a competing booking first. Callers recover by re-offering
	// availability, never by retrying the same slot.
	ErrSlotTaken = errors.New("appointments: slot already booked")

	// ErrNotFound is returned when no appointment matches the identifier.
	ErrNotFound = errors.New("appointments: not found")

	// ErrInvalidStatus is returned for unknown lifecycle states.
	ErrInvalidStatus = errors.New("appointments: invalid status")
)
