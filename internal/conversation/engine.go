// Package conversation orchestrates the patient dialogue: urgency triage,
// slot filling, availability, and the booking hand-off. One inbound message
// produces exactly one outbound reply.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shifalabs/clinic-receptionist/internal/appointments"
	"github.com/shifalabs/clinic-receptionist/internal/intake"
	"github.com/shifalabs/clinic-receptionist/internal/observability/metrics"
	"github.com/shifalabs/clinic-receptionist/internal/schedule"
	"github.com/shifalabs/clinic-receptionist/internal/triage"
	"github.com/shifalabs/clinic-receptionist/pkg/logging"
)

const displayDateLayout = "Monday, 02 January 2006"

// BookingNotifier is told about confirmed bookings. Notification is
// best-effort: failures never undo or delay a booking.
type BookingNotifier interface {
	NotifyBooking(ctx context.Context, appt *appointments.Appointment) error
}

// Engine drives the conversation for every patient. It is safe for
// concurrent use; messages from the same phone are serialized so each one
// sees the session state left by the previous reply.
type Engine struct {
	sessions  intake.Store
	triage    *triage.Classifier
	scheduler *schedule.Engine
	repo      appointments.Repository
	extractor Extractor
	notifier  BookingNotifier
	logger    *logging.Logger
	metrics   *metrics.ConversationMetrics

	clinicName  string
	llmTimeout  time.Duration
	idleTimeout time.Duration
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// EngineConfig carries the engine's dependencies. Notifier, Metrics, and Now
// are optional.
type EngineConfig struct {
	Sessions     intake.Store
	Triage       *triage.Classifier
	Scheduler    *schedule.Engine
	Appointments appointments.Repository
	Extractor    Extractor
	Notifier     BookingNotifier
	Logger       *logging.Logger
	Metrics      *metrics.ConversationMetrics
	ClinicName   string
	LLMTimeout   time.Duration
	IdleTimeout  time.Duration
	Now          func() time.Time
}

// NewEngine builds the dialogue engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Sessions == nil {
		panic("conversation: session store is required")
	}
	if cfg.Triage == nil {
		panic("conversation: triage classifier is required")
	}
	if cfg.Scheduler == nil {
		panic("conversation: schedule engine is required")
	}
	if cfg.Appointments == nil {
		panic("conversation: appointments repository is required")
	}
	if cfg.Extractor == nil {
		panic("conversation: extractor is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.ClinicName == "" {
		cfg.ClinicName = "the clinic"
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		sessions:    cfg.Sessions,
		triage:      cfg.Triage,
		scheduler:   cfg.Scheduler,
		repo:        cfg.Appointments,
		extractor:   cfg.Extractor,
		notifier:    cfg.Notifier,
		logger:      cfg.Logger.WithComponent("conversation"),
		metrics:     cfg.Metrics,
		clinicName:  cfg.ClinicName,
		llmTimeout:  cfg.LLMTimeout,
		idleTimeout: cfg.IdleTimeout,
		now:         cfg.Now,
		locks:       make(map[string]*sync.Mutex),
	}
}

// HandleMessage processes one inbound patient message and returns the single
// outbound reply. The urgency gate runs before any session work, so an
// escalation can be produced even when the session store or language model is
// down.
func (e *Engine) HandleMessage(ctx context.Context, phone, text string) (string, error) {
	ctx, span := otel.Tracer("conversation").Start(ctx, "engine.HandleMessage")
	defer span.End()

	if result := e.triage.Classify(text); result.Urgent {
		span.SetAttributes(attribute.Bool("triage.urgent", true))
		e.logger.Warn("urgent message escalated", "phone", phone, "matched", result.Matched)
		e.metrics.ObserveInbound("escalated")
		return EscalationReply, nil
	}

	lock := e.phoneLock(phone)
	lock.Lock()
	defer lock.Unlock()

	session, err := e.loadSession(ctx, phone)
	if err != nil {
		e.metrics.ObserveInbound("error")
		return ReplySystemError, fmt.Errorf("conversation: load session: %w", err)
	}

	now := e.now()
	if session.State == intake.StateBooked || session.Stale(now, e.idleTimeout) {
		session.Reset()
	}

	firstMessage := session.State == intake.StateEmpty
	if firstMessage {
		session.State = intake.StateCollectingName
	}
	session.AppendTurn("patient", text)

	draft, err := e.advance(ctx, session, text, now, firstMessage)
	if err != nil {
		e.metrics.ObserveInbound("error")
		return ReplySystemError, err
	}

	reply := e.compose(ctx, session.History, draft)
	session.AppendTurn("assistant", reply)
	session.UpdatedAt = now.UTC()

	if err := e.sessions.Save(ctx, session); err != nil {
		if session.State == intake.StateBooked {
			// The booking is committed; losing the session only costs context.
			e.logger.Error("session save failed after booking", "phone", phone, "error", err)
		} else {
			e.metrics.ObserveInbound("error")
			return ReplySystemError, fmt.Errorf("conversation: save session: %w", err)
		}
	}

	e.metrics.ObserveInbound("replied")
	span.SetAttributes(attribute.String("session.state", string(session.State)))
	return reply, nil
}

func (e *Engine) loadSession(ctx context.Context, phone string) (*intake.Session, error) {
	session, err := e.sessions.Get(ctx, phone)
	if errors.Is(err, intake.ErrSessionNotFound) {
		return intake.NewSession(phone), nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// advance applies one message to the state machine and returns the draft
// reply. Store failures surface as errors so the caller fails closed instead
// of confirming anything.
func (e *Engine) advance(ctx context.Context, session *intake.Session, text string, now time.Time, firstMessage bool) (string, error) {
	if session.State == intake.StateSelectingSlot {
		return e.handleSlotChoice(ctx, session, text, now)
	}

	field, ok := intake.FieldFor(session.State)
	if !ok {
		session.Reset()
		session.State = intake.StateCollectingName
		return e.greetingReply(), nil
	}

	value, err := e.extract(ctx, session.History, field)
	if err != nil {
		if firstMessage {
			return e.firstReply(ctx, session), nil
		}
		return repromptFor(field), nil
	}

	switch field {
	case intake.FieldName:
		name, err := intake.ValidateName(value)
		if err != nil {
			if firstMessage {
				return e.firstReply(ctx, session), nil
			}
			return repromptFor(field), nil
		}
		session.Fields.Name = name
	case intake.FieldAge:
		age, err := intake.ParseAge(value)
		if err != nil {
			return repromptFor(field), nil
		}
		session.Fields.Age = age
	case intake.FieldPhone:
		phone, err := intake.ValidatePhone(value)
		if err != nil {
			return repromptFor(field), nil
		}
		session.Fields.Phone = phone
	case intake.FieldComplaint:
		complaint, err := intake.ValidateComplaint(value)
		if err != nil {
			return repromptFor(field), nil
		}
		session.Fields.Complaint = complaint
	case intake.FieldDate:
		return e.handleDate(ctx, session, value, now)
	}

	session.State = intake.Next(session.State)
	next, _ := intake.FieldFor(session.State)
	return promptFor(next, session.Fields), nil
}

// handleDate validates the requested date and, when it holds available
// slots, moves the session into slot selection.
func (e *Engine) handleDate(ctx context.Context, session *intake.Session, value string, now time.Time) (string, error) {
	date, err := intake.ValidateDate(value, now, e.scheduler.HorizonDays())
	switch {
	case errors.Is(err, intake.ErrPastDate):
		return pastDateReply(), nil
	case errors.Is(err, intake.ErrBeyondHorizon):
		return beyondHorizonReply(e.scheduler.HorizonDays()), nil
	case err != nil:
		return repromptFor(intake.FieldDate), nil
	}

	available, err := e.availableSlots(ctx, date, now)
	if err != nil {
		return "", err
	}
	if len(available) == 0 {
		return fullyBookedReply(value), nil
	}

	session.Fields.Date = date.Format(intake.DateLayout)
	session.Offered = slotLabels(available)
	session.State = intake.StateSelectingSlot
	return slotListReply(session.Fields.Date, available), nil
}

// handleSlotChoice matches the patient's reply against the offered list and
// attempts the booking. A lost race re-offers the fresh availability.
func (e *Engine) handleSlotChoice(ctx context.Context, session *intake.Session, text string, now time.Time) (string, error) {
	date, err := time.ParseInLocation(intake.DateLayout, session.Fields.Date, now.Location())
	if err != nil {
		session.Fields.Date = ""
		session.Offered = nil
		session.State = intake.StateCollectingDate
		return repromptFor(intake.FieldDate), nil
	}

	label, ok := ParseSlotChoice(text)
	if !ok || !offered(session.Offered, label) {
		return slotNotOfferedReply(session.Fields.Date, slotsFromLabels(date, session.Offered)), nil
	}

	record, err := session.Record(now, e.scheduler.HorizonDays())
	if err != nil {
		return "", fmt.Errorf("conversation: intake record incomplete at booking: %w", err)
	}

	appt := &appointments.Appointment{
		PatientName: record.Name,
		PatientAge:  record.Age,
		Phone:       record.Phone,
		Complaint:   record.Complaint,
		Date:        record.Date,
		SlotStart:   label,
		Status:      appointments.StatusScheduled,
		CreatedAt:   now.UTC(),
	}

	err = e.repo.Create(ctx, appt)
	switch {
	case errors.Is(err, appointments.ErrSlotTaken):
		e.metrics.ObserveBooking("conflict")
		available, availErr := e.availableSlots(ctx, record.Date, now)
		if availErr != nil {
			return "", availErr
		}
		if len(available) == 0 {
			session.Fields.Date = ""
			session.Offered = nil
			session.State = intake.StateCollectingDate
			return fullyBookedReply(record.Date.Format(intake.DateLayout)), nil
		}
		session.Offered = slotLabels(available)
		return conflictReply(record.Date.Format(intake.DateLayout), available), nil
	case err != nil:
		e.metrics.ObserveBooking("error")
		return "", fmt.Errorf("conversation: create appointment: %w", err)
	}

	e.metrics.ObserveBooking("confirmed")
	session.State = intake.StateBooked
	session.Offered = nil
	e.logger.Info("appointment booked",
		"appointment_id", appt.ID, "date", appt.DateString(), "slot", appt.SlotStart)

	if e.notifier != nil {
		if err := e.notifier.NotifyBooking(ctx, appt); err != nil {
			e.logger.Warn("booking notification failed", "appointment_id", appt.ID, "error", err)
		}
	}

	start := appt.StartAt()
	return confirmationReply(confirmedAppointment{
		Name:         appt.PatientName,
		FriendlyDate: start.Format(displayDateLayout),
		FriendlyTime: start.Format("03:04 PM"),
		Phone:        appt.Phone,
	}), nil
}

// firstReply greets a first-time contact, or welcomes a returning patient by
// name and skips straight to the age question. The history lookup is
// best-effort: any store error falls back to the plain greeting.
func (e *Engine) firstReply(ctx context.Context, session *intake.Session) string {
	history, err := e.repo.ListByPhone(ctx, session.Phone, 1)
	if err != nil {
		e.logger.Warn("patient history lookup failed", "phone", session.Phone, "error", err)
		return e.greetingReply()
	}
	if len(history) == 0 {
		return e.greetingReply()
	}
	session.Fields.Name = history[0].PatientName
	session.State = intake.StateCollectingAge
	return e.returningPatientReply(history[0].PatientName)
}

func (e *Engine) availableSlots(ctx context.Context, date time.Time, now time.Time) ([]schedule.Slot, error) {
	existing, err := e.repo.ListByDate(ctx, date, []appointments.Status{appointments.StatusScheduled})
	if err != nil {
		return nil, fmt.Errorf("conversation: list appointments: %w", err)
	}
	taken := make([]string, len(existing))
	for i, appt := range existing {
		taken[i] = appt.SlotStart
	}
	available, err := e.scheduler.AvailableSlots(date, now, taken)
	if err != nil {
		return nil, fmt.Errorf("conversation: availability: %w", err)
	}
	return available, nil
}

// extract runs the extractor under the configured timeout and records its
// latency.
func (e *Engine) extract(ctx context.Context, history []intake.Turn, field intake.Field) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.llmTimeout)
	defer cancel()

	start := time.Now()
	value, err := e.extractor.ExtractField(ctx, history, field)
	e.metrics.ObserveExtractLatency(time.Since(start).Seconds())
	if err != nil {
		if !errors.Is(err, ErrUnresolved) {
			e.logger.Warn("field extraction failed", "field", string(field), "error", err)
		}
		return "", err
	}
	return value, nil
}

// compose lets the extractor rephrase the draft; the template is the
// fallback so a model outage never blocks the reply.
func (e *Engine) compose(ctx context.Context, history []intake.Turn, draft string) string {
	ctx, cancel := context.WithTimeout(ctx, e.llmTimeout)
	defer cancel()

	reply, err := e.extractor.ComposeReply(ctx, history, draft)
	if err != nil || strings.TrimSpace(reply) == "" {
		return draft
	}
	return reply
}

func (e *Engine) phoneLock(phone string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[phone]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[phone] = lock
	}
	return lock
}

func offered(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

func slotLabels(slots []schedule.Slot) []string {
	labels := make([]string, len(slots))
	for i, s := range slots {
		labels[i] = s.Label()
	}
	return labels
}

func slotsFromLabels(date time.Time, labels []string) []schedule.Slot {
	slots := make([]schedule.Slot, 0, len(labels))
	for _, label := range labels {
		t, err := time.ParseInLocation(appointments.SlotLayout, label, date.Location())
		if err != nil {
			continue
		}
		start := time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location())
		slots = append(slots, schedule.Slot{Start: start})
	}
	return slots
}

var slotChoicePattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)

// ParseSlotChoice reads a time out of a patient message and normalizes it to
// a slot label ("14:00"). Times without an AM/PM marker are taken as
// 24-hour.
func ParseSlotChoice(text string) (string, bool) {
	m := slotChoicePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour > 23 {
		return "", false
	}
	minute := 0
	if m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil || minute > 59 {
			return "", false
		}
	}
	switch strings.ToLower(m[3]) {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}
