package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shifalabs/clinic-receptionist/internal/appointments"
	"github.com/shifalabs/clinic-receptionist/internal/intake"
	"github.com/shifalabs/clinic-receptionist/internal/schedule"
	"github.com/shifalabs/clinic-receptionist/internal/triage"
	"github.com/shifalabs/clinic-receptionist/pkg/logging"
)

const testPhone = "03009998877"

type captureNotifier struct {
	notified []*appointments.Appointment
}

func (n *captureNotifier) NotifyBooking(ctx context.Context, appt *appointments.Appointment) error {
	n.notified = append(n.notified, appt)
	return nil
}

type failingExtractor struct{}

func (failingExtractor) ExtractField(ctx context.Context, history []intake.Turn, field intake.Field) (string, error) {
	return "", context.DeadlineExceeded
}

func (failingExtractor) ComposeReply(ctx context.Context, history []intake.Turn, draft string) (string, error) {
	return draft, nil
}

func newTestEngine(t *testing.T, extractor Extractor, repo appointments.Repository) (*Engine, *intake.MemoryStore, *captureNotifier, *time.Time) {
	t.Helper()

	scheduler, err := schedule.NewEngine(10, 20, 30, 30)
	if err != nil {
		t.Fatalf("schedule engine: %v", err)
	}
	store := intake.NewMemoryStore()
	notifier := &captureNotifier{}
	now := fixedNow()

	engine := NewEngine(EngineConfig{
		Sessions:     store,
		Triage:       triage.NewClassifier(),
		Scheduler:    scheduler,
		Appointments: repo,
		Extractor:    extractor,
		Notifier:     notifier,
		Logger:       logging.NewWithWriter("error", testWriter{t}),
		ClinicName:   "Shifa Clinic",
		LLMTimeout:   time.Second,
		IdleTimeout:  30 * time.Minute,
		Now:          func() time.Time { return now },
	})
	return engine, store, notifier, &now
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func mustHandle(t *testing.T, e *Engine, text string) string {
	t.Helper()
	reply, err := e.HandleMessage(context.Background(), testPhone, text)
	if err != nil {
		t.Fatalf("HandleMessage(%q) failed: %v", text, err)
	}
	if reply == "" {
		t.Fatalf("HandleMessage(%q) returned an empty reply", text)
	}
	return reply
}

func mustSession(t *testing.T, store *intake.MemoryStore) *intake.Session {
	t.Helper()
	session, err := store.Get(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	return session
}

// driveToSlotSelection walks the intake flow up to the offered slot list.
func driveToSlotSelection(t *testing.T, e *Engine) string {
	t.Helper()
	mustHandle(t, e, "Ahmed Khan")
	mustHandle(t, e, "25")
	mustHandle(t, e, "0300-1234567")
	mustHandle(t, e, "fever")
	return mustHandle(t, e, "2024-01-20")
}

func TestGreetingOnFirstContact(t *testing.T) {
	engine, store, _, _ := newTestEngine(t, NewRuleExtractor(fixedNow), appointments.NewInMemoryRepository())

	reply := mustHandle(t, engine, "hi")
	if !strings.Contains(reply, "Shifa Clinic") || !strings.Contains(reply, "name") {
		t.Fatalf("unexpected greeting %q", reply)
	}
	if got := mustSession(t, store).State; got != intake.StateCollectingName {
		t.Fatalf("expected COLLECTING_NAME, got %s", got)
	}
}

func TestReturningPatientGreeting(t *testing.T) {
	repo := appointments.NewInMemoryRepository()
	previous := &appointments.Appointment{
		PatientName: "Ahmed Khan",
		PatientAge:  25,
		Phone:       testPhone,
		Complaint:   "fever",
		Date:        time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		SlotStart:   "14:00",
		Status:      appointments.StatusCompleted,
	}
	if err := repo.Create(context.Background(), previous); err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	engine, store, _, _ := newTestEngine(t, NewRuleExtractor(fixedNow), repo)

	reply := mustHandle(t, engine, "hi")
	if !strings.Contains(reply, "Welcome back") || !strings.Contains(reply, "Ahmed Khan") {
		t.Fatalf("expected a personalized greeting, got %q", reply)
	}

	session := mustSession(t, store)
	if session.State != intake.StateCollectingAge {
		t.Fatalf("expected COLLECTING_AGE, got %s", session.State)
	}
	if session.Fields.Name != "Ahmed Khan" {
		t.Fatalf("expected prefilled name, got %q", session.Fields.Name)
	}

	// The rest of the intake picks up from the age question.
	mustHandle(t, engine, "25")
	if got := mustSession(t, store).State; got != intake.StateCollectingPhone {
		t.Fatalf("expected COLLECTING_PHONE, got %s", got)
	}
}

func TestIntakeProgressionToSlotSelection(t *testing.T) {
	engine, store, _, _ := newTestEngine(t, NewRuleExtractor(fixedNow), appointments.NewInMemoryRepository())

	reply := driveToSlotSelection(t, engine)
	if !strings.Contains(reply, "Available slots on 2024-01-20") {
		t.Fatalf("expected slot list, got %q", reply)
	}

	session := mustSession(t, store)
	if session.State != intake.StateSelectingSlot {
		t.Fatalf("expected SELECTING_SLOT, got %s", session.State)
	}
	if len(session.Offered) != 20 {
		t.Fatalf("expected 20 offered slots, got %d", len(session.Offered))
	}
	want := intake.Fields{
		Name:      "Ahmed Khan",
		Age:       25,
		Phone:     "03001234567",
		Complaint: "fever",
		Date:      "2024-01-20",
	}
	if session.Fields != want {
		t.Fatalf("unexpected fields %+v", session.Fields)
	}
}

func TestBookingConfirmation(t *testing.T) {
	repo := appointments.NewInMemoryRepository()
	engine, store, notifier, _ := newTestEngine(t, NewRuleExtractor(fixedNow), repo)

	driveToSlotSelection(t, engine)
	reply := mustHandle(t, engine, "14:00")

	if !strings.Contains(reply, "Appointment confirmed") {
		t.Fatalf("expected confirmation, got %q", reply)
	}
	if got := mustSession(t, store).State; got != intake.StateBooked {
		t.Fatalf("expected BOOKED, got %s", got)
	}

	date := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	booked, err := repo.ListByDate(context.Background(), date, []appointments.Status{appointments.StatusScheduled})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(booked) != 1 {
		t.Fatalf("expected one appointment, got %d", len(booked))
	}
	appt := booked[0]
	if appt.SlotStart != "14:00" || appt.PatientName != "Ahmed Khan" || appt.Phone != "03001234567" {
		t.Fatalf("unexpected appointment %+v", appt)
	}
	if len(notifier.notified) != 1 {
		t.Fatalf("expected one booking notification, got %d", len(notifier.notified))
	}
}

func TestUrgentMessageLeavesSessionUntouched(t *testing.T) {
	engine, store, _, _ := newTestEngine(t, NewRuleExtractor(fixedNow), appointments.NewInMemoryRepository())

	mustHandle(t, engine, "Ahmed Khan")
	before := mustSession(t, store)

	reply := mustHandle(t, engine, "I have severe chest pain")
	if reply != EscalationReply {
		t.Fatalf("expected escalation, got %q", reply)
	}

	after := mustSession(t, store)
	if after.State != before.State || after.Fields != before.Fields {
		t.Fatalf("session changed by urgent message: %+v vs %+v", before, after)
	}

	// The flow resumes where it left off.
	mustHandle(t, engine, "25")
	if got := mustSession(t, store).State; got != intake.StateCollectingPhone {
		t.Fatalf("expected COLLECTING_PHONE after resuming, got %s", got)
	}
}

func TestSlotNotOfferedRepeatsList(t *testing.T) {
	engine, store, _, _ := newTestEngine(t, NewRuleExtractor(fixedNow), appointments.NewInMemoryRepository())

	driveToSlotSelection(t, engine)
	reply := mustHandle(t, engine, "21:00")

	if !strings.Contains(reply, "not in the available list") {
		t.Fatalf("expected re-offer, got %q", reply)
	}
	if !strings.Contains(reply, "Available slots on 2024-01-20") {
		t.Fatalf("expected the list to be repeated, got %q", reply)
	}
	if got := mustSession(t, store).State; got != intake.StateSelectingSlot {
		t.Fatalf("expected SELECTING_SLOT, got %s", got)
	}
}

func TestBookingConflictReoffersFreshSlots(t *testing.T) {
	repo := appointments.NewInMemoryRepository()
	engine, store, _, _ := newTestEngine(t, NewRuleExtractor(fixedNow), repo)

	driveToSlotSelection(t, engine)

	// Another patient wins the slot between the offer and the choice.
	rival := &appointments.Appointment{
		PatientName: "Sara Ali",
		PatientAge:  30,
		Phone:       "03111234567",
		Complaint:   "headache",
		Date:        time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
		SlotStart:   "14:00",
		Status:      appointments.StatusScheduled,
	}
	if err := repo.Create(context.Background(), rival); err != nil {
		t.Fatalf("rival create failed: %v", err)
	}

	reply := mustHandle(t, engine, "14:00")
	if !strings.Contains(reply, "just booked") {
		t.Fatalf("expected conflict reply, got %q", reply)
	}

	session := mustSession(t, store)
	if session.State != intake.StateSelectingSlot {
		t.Fatalf("expected SELECTING_SLOT, got %s", session.State)
	}
	for _, label := range session.Offered {
		if label == "14:00" {
			t.Fatal("taken slot still offered after conflict")
		}
	}

	// Picking a remaining slot succeeds.
	reply = mustHandle(t, engine, "14:30")
	if !strings.Contains(reply, "Appointment confirmed") {
		t.Fatalf("expected confirmation, got %q", reply)
	}
}

func TestFullyBookedDayAsksForAnotherDate(t *testing.T) {
	repo := appointments.NewInMemoryRepository()
	scheduler, err := schedule.NewEngine(10, 11, 30, 30)
	if err != nil {
		t.Fatalf("schedule engine: %v", err)
	}
	store := intake.NewMemoryStore()
	engine := NewEngine(EngineConfig{
		Sessions:     store,
		Triage:       triage.NewClassifier(),
		Scheduler:    scheduler,
		Appointments: repo,
		Extractor:    NewRuleExtractor(fixedNow),
		Logger:       logging.NewWithWriter("error", testWriter{t}),
		ClinicName:   "Shifa Clinic",
		Now:          fixedNow,
	})

	date := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	for _, slot := range []string{"10:00", "10:30"} {
		appt := &appointments.Appointment{
			PatientName: "Sara Ali", PatientAge: 30, Phone: "03111234567",
			Complaint: "headache", Date: date, SlotStart: slot,
			Status: appointments.StatusScheduled,
		}
		if err := repo.Create(context.Background(), appt); err != nil {
			t.Fatalf("seed create failed: %v", err)
		}
	}

	mustHandle(t, engine, "Ahmed Khan")
	mustHandle(t, engine, "25")
	mustHandle(t, engine, "0300-1234567")
	mustHandle(t, engine, "fever")
	reply := mustHandle(t, engine, "2024-01-20")

	if !strings.Contains(reply, "no slots are available") {
		t.Fatalf("expected fully-booked reply, got %q", reply)
	}
	session := mustSession(t, store)
	if session.State != intake.StateCollectingDate {
		t.Fatalf("expected COLLECTING_DATE, got %s", session.State)
	}
	if session.Fields.Date != "" {
		t.Fatalf("date should not be committed on a full day, got %q", session.Fields.Date)
	}
}

func TestPastAndFarDatesRejected(t *testing.T) {
	engine, store, _, _ := newTestEngine(t, NewRuleExtractor(fixedNow), appointments.NewInMemoryRepository())

	mustHandle(t, engine, "Ahmed Khan")
	mustHandle(t, engine, "25")
	mustHandle(t, engine, "0300-1234567")
	mustHandle(t, engine, "fever")

	reply := mustHandle(t, engine, "2024-01-10")
	if !strings.Contains(reply, "past dates") {
		t.Fatalf("expected past-date rejection, got %q", reply)
	}

	reply = mustHandle(t, engine, "2024-06-01")
	if !strings.Contains(reply, "days ahead") {
		t.Fatalf("expected horizon rejection, got %q", reply)
	}

	if got := mustSession(t, store).State; got != intake.StateCollectingDate {
		t.Fatalf("expected COLLECTING_DATE, got %s", got)
	}
}

func TestExtractorFailurePreservesState(t *testing.T) {
	engine, store, _, _ := newTestEngine(t, failingExtractor{}, appointments.NewInMemoryRepository())

	reply := mustHandle(t, engine, "hello there")
	if !strings.Contains(reply, "name") {
		t.Fatalf("expected name prompt, got %q", reply)
	}

	reply = mustHandle(t, engine, "Ahmed Khan")
	if !strings.Contains(reply, "name") {
		t.Fatalf("expected name re-prompt, got %q", reply)
	}
	session := mustSession(t, store)
	if session.State != intake.StateCollectingName {
		t.Fatalf("expected COLLECTING_NAME, got %s", session.State)
	}
	if session.Fields.Name != "" {
		t.Fatalf("no field should be committed on extractor failure, got %q", session.Fields.Name)
	}
}

func TestStaleSessionRestarts(t *testing.T) {
	engine, store, _, now := newTestEngine(t, NewRuleExtractor(fixedNow), appointments.NewInMemoryRepository())

	mustHandle(t, engine, "Ahmed Khan")
	mustHandle(t, engine, "25")

	*now = now.Add(31 * time.Minute)
	mustHandle(t, engine, "Sara Ali")

	session := mustSession(t, store)
	if session.State != intake.StateCollectingAge {
		t.Fatalf("expected restart collecting age, got %s", session.State)
	}
	if session.Fields.Name != "Sara Ali" || session.Fields.Age != 0 {
		t.Fatalf("expected fresh intake, got %+v", session.Fields)
	}
}

func TestBookedSessionStartsOver(t *testing.T) {
	engine, store, _, _ := newTestEngine(t, NewRuleExtractor(fixedNow), appointments.NewInMemoryRepository())

	driveToSlotSelection(t, engine)
	mustHandle(t, engine, "14:00")

	reply := mustHandle(t, engine, "Ahmed Khan")
	if !strings.Contains(reply, "age") {
		t.Fatalf("expected a fresh intake prompt, got %q", reply)
	}
	if got := mustSession(t, store).State; got != intake.StateCollectingAge {
		t.Fatalf("expected COLLECTING_AGE, got %s", got)
	}
}

type brokenCreateRepo struct {
	*appointments.InMemoryRepository
}

func (r *brokenCreateRepo) Create(ctx context.Context, appt *appointments.Appointment) error {
	return errors.New("connection reset")
}

func TestStoreFailureFailsClosed(t *testing.T) {
	repo := &brokenCreateRepo{InMemoryRepository: appointments.NewInMemoryRepository()}
	engine, store, notifier, _ := newTestEngine(t, NewRuleExtractor(fixedNow), repo)

	driveToSlotSelection(t, engine)

	reply, err := engine.HandleMessage(context.Background(), testPhone, "14:00")
	if err == nil {
		t.Fatal("expected an error when the booking write fails")
	}
	if reply != ReplySystemError {
		t.Fatalf("expected the system-error reply, got %q", reply)
	}
	if len(notifier.notified) != 0 {
		t.Fatal("no notification may be sent for a failed booking")
	}
	if got := mustSession(t, store).State; got != intake.StateSelectingSlot {
		t.Fatalf("session must not advance on failure, got %s", got)
	}
}
