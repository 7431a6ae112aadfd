package reminder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shifalabs/clinic-receptionist/internal/appointments"
	"github.com/shifalabs/clinic-receptionist/internal/messaging"
	"github.com/shifalabs/clinic-receptionist/pkg/logging"
)

func seedAppointment(t *testing.T, repo appointments.Repository, date time.Time, slot string) *appointments.Appointment {
	t.Helper()
	appt := &appointments.Appointment{
		PatientName: "Ahmed Khan",
		PatientAge:  25,
		Phone:       "03001234567",
		Complaint:   "fever",
		Date:        date,
		SlotStart:   slot,
		Status:      appointments.StatusScheduled,
	}
	if err := repo.Create(context.Background(), appt); err != nil {
		t.Fatalf("seed create failed: %v", err)
	}
	return appt
}

func TestScanSendsAndMarks(t *testing.T) {
	repo := appointments.NewInMemoryRepository()
	sender := messaging.NewConsoleSender(nil)
	now := time.Date(2024, 1, 19, 18, 0, 0, 0, time.UTC)

	// 14:00 next day is inside the 24h window, 10:00 two days out is not.
	due := seedAppointment(t, repo, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), "14:00")
	seedAppointment(t, repo, time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC), "10:00")

	s := NewScanner(repo, sender, logging.Default(), nil, "Shifa Clinic", 24*time.Hour, time.Hour)
	if err := s.Scan(context.Background(), now); err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	sent := sender.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one reminder, got %d", len(sent))
	}
	if sent[0].To != "03001234567" {
		t.Fatalf("unexpected recipient %q", sent[0].To)
	}
	if !strings.Contains(sent[0].Body, "Shifa Clinic") || !strings.Contains(sent[0].Body, "02:00 PM") {
		t.Fatalf("unexpected body %q", sent[0].Body)
	}

	marked, err := repo.GetByID(context.Background(), due.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if marked.ReminderSentAt == nil {
		t.Fatal("reminder not marked after send")
	}
}

func TestScanIsIdempotent(t *testing.T) {
	repo := appointments.NewInMemoryRepository()
	sender := messaging.NewConsoleSender(nil)
	now := time.Date(2024, 1, 19, 18, 0, 0, 0, time.UTC)

	seedAppointment(t, repo, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), "14:00")

	s := NewScanner(repo, sender, logging.Default(), nil, "Shifa Clinic", 24*time.Hour, time.Hour)
	for i := 0; i < 3; i++ {
		if err := s.Scan(context.Background(), now); err != nil {
			t.Fatalf("scan %d failed: %v", i, err)
		}
	}

	if got := len(sender.Sent()); got != 1 {
		t.Fatalf("expected exactly one reminder across scans, got %d", got)
	}
}

type failingMessenger struct{}

func (failingMessenger) Send(ctx context.Context, to, body string) error {
	return errors.New("provider unavailable")
}

func TestSendFailureLeavesUnmarked(t *testing.T) {
	repo := appointments.NewInMemoryRepository()
	now := time.Date(2024, 1, 19, 18, 0, 0, 0, time.UTC)

	appt := seedAppointment(t, repo, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), "14:00")

	s := NewScanner(repo, failingMessenger{}, logging.Default(), nil, "Shifa Clinic", 24*time.Hour, time.Hour)
	if err := s.Scan(context.Background(), now); err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	got, err := repo.GetByID(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ReminderSentAt != nil {
		t.Fatal("a failed send must not mark the reminder")
	}

	// A later scan with a working messenger delivers it.
	sender := messaging.NewConsoleSender(nil)
	s2 := NewScanner(repo, sender, logging.Default(), nil, "Shifa Clinic", 24*time.Hour, time.Hour)
	if err := s2.Scan(context.Background(), now); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(sender.Sent()) != 1 {
		t.Fatalf("expected the retried reminder, got %d", len(sender.Sent()))
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	repo := appointments.NewInMemoryRepository()
	sender := messaging.NewConsoleSender(nil)
	s := NewScanner(repo, sender, logging.Default(), nil, "Shifa Clinic", 24*time.Hour, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
