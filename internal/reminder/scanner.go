// Package reminder periodically scans upcoming appointments and sends each
// patient a single reminder message.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/shifalabs/clinic-receptionist/internal/appointments"
	"github.com/shifalabs/clinic-receptionist/internal/messaging"
	"github.com/shifalabs/clinic-receptionist/internal/observability/metrics"
	"github.com/shifalabs/clinic-receptionist/pkg/logging"
)

// Scanner finds appointments starting within the lookahead window that have
// not yet been reminded, and messages their patients. The mark is written
// only after a successful send, so a failed send is retried on the next
// tick and a marked appointment is never reminded twice.
type Scanner struct {
	repo      appointments.Repository
	messenger messaging.Messenger
	logger    *logging.Logger
	metrics   *metrics.ConversationMetrics

	clinicName string
	lookahead  time.Duration
	interval   time.Duration
	now        func() time.Time
}

// NewScanner builds the reminder scanner. Metrics is optional.
func NewScanner(repo appointments.Repository, messenger messaging.Messenger, logger *logging.Logger, m *metrics.ConversationMetrics, clinicName string, lookahead, interval time.Duration) *Scanner {
	if repo == nil {
		panic("reminder: repository is required")
	}
	if messenger == nil {
		panic("reminder: messenger is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if clinicName == "" {
		clinicName = "the clinic"
	}
	if lookahead <= 0 {
		lookahead = 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scanner{
		repo:       repo,
		messenger:  messenger,
		logger:     logger.WithComponent("reminder"),
		metrics:    m,
		clinicName: clinicName,
		lookahead:  lookahead,
		interval:   interval,
		now:        time.Now,
	}
}

// Run scans on the configured interval until the context is cancelled. The
// first scan happens immediately.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.scan(ctx, s.now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scan(ctx, s.now())
		}
	}
}

// Scan performs one pass at the given instant. Exposed for tests and for
// one-shot invocation.
func (s *Scanner) Scan(ctx context.Context, now time.Time) error {
	return s.scan(ctx, now)
}

func (s *Scanner) scan(ctx context.Context, now time.Time) error {
	due, err := s.repo.ListDueReminders(ctx, now, now.Add(s.lookahead))
	if err != nil {
		s.logger.Error("reminder scan failed", "error", err)
		return fmt.Errorf("reminder: list due: %w", err)
	}

	for _, appt := range due {
		body := reminderBody(s.clinicName, appt)
		if err := s.messenger.Send(ctx, appt.Phone, body); err != nil {
			s.metrics.ObserveReminder("send_failed")
			s.logger.Error("reminder send failed", "appointment_id", appt.ID, "error", err)
			continue
		}
		if err := s.repo.MarkReminderSent(ctx, appt.ID, now); err != nil {
			s.metrics.ObserveReminder("mark_failed")
			s.logger.Error("reminder mark failed", "appointment_id", appt.ID, "error", err)
			continue
		}
		s.metrics.ObserveReminder("sent")
		s.logger.Info("reminder sent", "appointment_id", appt.ID, "slot", appt.SlotStart)
	}
	return nil
}

func reminderBody(clinicName string, appt *appointments.Appointment) string {
	start := appt.StartAt()
	return fmt.Sprintf("Reminder from %s: %s, you have an appointment on %s at %s. "+
		"Please arrive 10 minutes early. Reply here if you need to reschedule.",
		clinicName, appt.PatientName, start.Format("Monday, 02 January 2006"), start.Format("03:04 PM"))
}
