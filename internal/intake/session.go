// Package intake tracks the per-patient slot-filling flow: which fields have
// been collected, which field is next, and the short rolling history used as
// language-model context.
package intake

import (
	"time"
)

// State identifies the field the flow is currently collecting.
type State string

const (
	StateEmpty               State = "EMPTY"
	StateCollectingName      State = "COLLECTING_NAME"
	StateCollectingAge       State = "COLLECTING_AGE"
	StateCollectingPhone     State = "COLLECTING_PHONE"
	StateCollectingComplaint State = "COLLECTING_COMPLAINT"
	StateCollectingDate      State = "COLLECTING_DATE"
	StateSelectingSlot       State = "SELECTING_SLOT"
	StateBooked              State = "BOOKED"
)

// Field names the intake fields in collection order.
type Field string

const (
	FieldName      Field = "name"
	FieldAge       Field = "age"
	FieldPhone     Field = "phone"
	FieldComplaint Field = "complaint"
	FieldDate      Field = "date"
)

// FieldFor maps a collecting state to the field it accepts.
func FieldFor(s State) (Field, bool) {
	switch s {
	case StateCollectingName:
		return FieldName, true
	case StateCollectingAge:
		return FieldAge, true
	case StateCollectingPhone:
		return FieldPhone, true
	case StateCollectingComplaint:
		return FieldComplaint, true
	case StateCollectingDate:
		return FieldDate, true
	default:
		return "", false
	}
}

// Next returns the state that follows s in the completion order.
func Next(s State) State {
	switch s {
	case StateEmpty:
		return StateCollectingName
	case StateCollectingName:
		return StateCollectingAge
	case StateCollectingAge:
		return StateCollectingPhone
	case StateCollectingPhone:
		return StateCollectingComplaint
	case StateCollectingComplaint:
		return StateCollectingDate
	case StateCollectingDate:
		return StateSelectingSlot
	case StateSelectingSlot:
		return StateBooked
	default:
		return s
	}
}

// Turn is one exchange entry in the rolling history.
type Turn struct {
	Role    string `json:"role"` // "patient" or "assistant"
	Content string `json:"content"`
}

// maxHistoryTurns bounds the rolling history. The history is LLM context
// only, never authoritative state.
const maxHistoryTurns = 20

// Fields holds the raw collected intake values.
type Fields struct {
	Name      string `json:"name,omitempty"`
	Age       int    `json:"age,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Complaint string `json:"complaint,omitempty"`
	Date      string `json:"date,omitempty"` // YYYY-MM-DD
}

// Session is the conversation state for one patient identifier.
type Session struct {
	Phone     string    `json:"phone"`
	State     State     `json:"state"`
	Fields    Fields    `json:"fields"`
	Offered   []string  `json:"offered,omitempty"` // slot labels while SELECTING_SLOT
	History   []Turn    `json:"history,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates an empty session for the identifier.
func NewSession(phone string) *Session {
	return &Session{
		Phone:     phone,
		State:     StateEmpty,
		UpdatedAt: time.Now().UTC(),
	}
}

// Reset discards collected data and restarts the flow from empty.
func (s *Session) Reset() {
	s.State = StateEmpty
	s.Fields = Fields{}
	s.Offered = nil
	s.History = nil
	s.UpdatedAt = time.Now().UTC()
}

// Stale reports whether the session has been idle past the timeout.
func (s *Session) Stale(now time.Time, idleTimeout time.Duration) bool {
	if idleTimeout <= 0 {
		return false
	}
	return now.Sub(s.UpdatedAt) > idleTimeout
}

// AppendTurn records one exchange entry, trimming to the history bound.
func (s *Session) AppendTurn(role, content string) {
	s.History = append(s.History, Turn{Role: role, Content: content})
	if len(s.History) > maxHistoryTurns {
		s.History = s.History[len(s.History)-maxHistoryTurns:]
	}
}

// Record builds the validated Intake Record. It fails unless every required
// field passes validation, so partial data never reaches availability or
// booking.
func (s *Session) Record(now time.Time, horizonDays int) (*Record, error) {
	name, err := ValidateName(s.Fields.Name)
	if err != nil {
		return nil, err
	}
	if err := ValidateAge(s.Fields.Age); err != nil {
		return nil, err
	}
	phone, err := ValidatePhone(s.Fields.Phone)
	if err != nil {
		return nil, err
	}
	complaint, err := ValidateComplaint(s.Fields.Complaint)
	if err != nil {
		return nil, err
	}
	date, err := ValidateDate(s.Fields.Date, now, horizonDays)
	if err != nil {
		return nil, err
	}
	return &Record{
		Name:      name,
		Age:       s.Fields.Age,
		Phone:     phone,
		Complaint: complaint,
		Date:      date,
	}, nil
}

// Record is a fully validated intake: the only shape the availability engine
// and booking transaction ever see.
type Record struct {
	Name      string
	Age       int
	Phone     string
	Complaint string
	Date      time.Time
}
