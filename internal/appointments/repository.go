package appointments

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for appointment storage.
//
// Create is the race arbiter for booking: implementations must guarantee
// at most one scheduled appointment per (date, slot start) pair even under
// concurrent attempts, returning ErrSlotTaken to the loser.
type Repository interface {
	Create(ctx context.Context, appt *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	ListByDate(ctx context.Context, date time.Time, statuses []Status) ([]*Appointment, error)
	ListByPhone(ctx context.Context, phone string, limit int) ([]*Appointment, error)
	ListDueReminders(ctx context.Context, from, to time.Time) ([]*Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// InMemoryRepository reproduces the store-level uniqueness guarantee under a
// mutex. Used by tests and the console chat mode.
type InMemoryRepository struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*Appointment
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{appts: make(map[uuid.UUID]*Appointment)}
}

// Create inserts the appointment, enforcing the scheduled-slot uniqueness
// invariant atomically under the repository lock.
func (r *InMemoryRepository) Create(ctx context.Context, appt *Appointment) error {
	if appt == nil {
		return errors.New("appointments: appointment required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.appts {
		if existing.Status == StatusScheduled &&
			existing.Date.Equal(appt.Date) &&
			existing.SlotStart == appt.SlotStart {
			return ErrSlotTaken
		}
	}

	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if appt.Status == "" {
		appt.Status = StatusScheduled
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	copied := *appt
	r.appts[appt.ID] = &copied
	return nil
}

// GetByID returns a copy of the appointment.
func (r *InMemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *appt
	return &copied, nil
}

// UpdateStatus transitions the appointment's lifecycle state.
func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if !ValidStatus(status) {
		return ErrInvalidStatus
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appts[id]
	if !ok {
		return ErrNotFound
	}
	appt.Status = status
	return nil
}

// ListByDate returns appointments on date with any of the given statuses,
// ordered by slot start. Empty statuses means all.
func (r *InMemoryRepository) ListByDate(ctx context.Context, date time.Time, statuses []Status) ([]*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[Status]struct{}, len(statuses))
	for _, s := range statuses {
		wanted[s] = struct{}{}
	}

	var result []*Appointment
	for _, appt := range r.appts {
		if !sameDay(appt.Date, date) {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[appt.Status]; !ok {
				continue
			}
		}
		copied := *appt
		result = append(result, &copied)
	}
	sortBySlot(result)
	return result, nil
}

// ListByPhone returns the patient's appointment history, most recent first.
func (r *InMemoryRepository) ListByPhone(ctx context.Context, phone string, limit int) ([]*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*Appointment
	for _, appt := range r.appts {
		if appt.Phone != phone {
			continue
		}
		copied := *appt
		result = append(result, &copied)
	}
	sortBySlot(result)
	// Reverse to most recent first.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListDueReminders returns scheduled appointments starting within [from, to)
// that have not yet had a reminder emitted.
func (r *InMemoryRepository) ListDueReminders(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*Appointment
	for _, appt := range r.appts {
		if appt.Status != StatusScheduled || appt.ReminderSentAt != nil {
			continue
		}
		start := appt.StartAt()
		if start.Before(from) || !start.Before(to) {
			continue
		}
		copied := *appt
		due = append(due, &copied)
	}
	sortBySlot(due)
	return due, nil
}

// MarkReminderSent records the reminder marker. Marking an already-marked
// appointment is a no-op, keeping the scanner idempotent.
func (r *InMemoryRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appts[id]
	if !ok {
		return ErrNotFound
	}
	if appt.ReminderSentAt == nil {
		sent := at
		appt.ReminderSentAt = &sent
	}
	return nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func sortBySlot(appts []*Appointment) {
	for i := 1; i < len(appts); i++ {
		for j := i; j > 0; j-- {
			if appts[j].Date.Before(appts[j-1].Date) ||
				(appts[j].Date.Equal(appts[j-1].Date) && appts[j].SlotStart < appts[j-1].SlotStart) {
				appts[j], appts[j-1] = appts[j-1], appts[j]
			} else {
				break
			}
		}
	}
}
