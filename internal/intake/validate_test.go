package intake

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func TestValidateName(t *testing.T) {
	if _, err := ValidateName("  Ahmed Khan "); err != nil {
		t.Fatalf("expected valid name, got %v", err)
	}
	if _, err := ValidateName("   "); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestParseAge(t *testing.T) {
	age, err := ParseAge("25")
	if err != nil || age != 25 {
		t.Fatalf("expected 25, got %d (%v)", age, err)
	}

	for _, bad := range []string{"0", "-3", "121", "abc", ""} {
		if _, err := ParseAge(bad); !errors.Is(err, ErrInvalidAge) {
			t.Errorf("expected ErrInvalidAge for %q, got %v", bad, err)
		}
	}
}

func TestValidatePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0300-1234567", "03001234567"},
		{"0300 1234567", "03001234567"},
		{"03001234567", "03001234567"},
	}
	for _, tt := range tests {
		got, err := ValidatePhone(tt.in)
		if err != nil {
			t.Errorf("expected %q valid, got %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("expected %q normalized to %q, got %q", tt.in, tt.want, got)
		}
	}

	for _, bad := range []string{"1234567", "0400-1234567", "0300-12345", "+923001234567"} {
		if _, err := ValidatePhone(bad); !errors.Is(err, ErrInvalidPhone) {
			t.Errorf("expected ErrInvalidPhone for %q, got %v", bad, err)
		}
	}
}

func TestValidateDate(t *testing.T) {
	date, err := ValidateDate("2024-01-20", testNow, 30)
	if err != nil {
		t.Fatalf("expected valid date, got %v", err)
	}
	if date.Format(DateLayout) != "2024-01-20" {
		t.Fatalf("unexpected parsed date %s", date)
	}

	// Today is valid.
	if _, err := ValidateDate("2024-01-15", testNow, 30); err != nil {
		t.Fatalf("today should be valid, got %v", err)
	}

	if _, err := ValidateDate("2024-01-14", testNow, 30); !errors.Is(err, ErrPastDate) {
		t.Fatalf("expected ErrPastDate, got %v", err)
	}
	if _, err := ValidateDate("2024-06-01", testNow, 30); !errors.Is(err, ErrBeyondHorizon) {
		t.Fatalf("expected ErrBeyondHorizon, got %v", err)
	}
	if _, err := ValidateDate("tomorrow", testNow, 30); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestRecordRequiresAllFields(t *testing.T) {
	sess := NewSession("03001234567")
	sess.Fields = Fields{
		Name:      "Ahmed Khan",
		Age:       25,
		Phone:     "0300-1234567",
		Complaint: "fever",
	}

	// Missing date: partial data must never become a Record.
	if _, err := sess.Record(testNow, 30); err == nil {
		t.Fatal("expected incomplete session to fail record construction")
	}

	sess.Fields.Date = "2024-01-20"
	rec, err := sess.Record(testNow, 30)
	if err != nil {
		t.Fatalf("expected complete session to validate, got %v", err)
	}
	if rec.Name != "Ahmed Khan" || rec.Age != 25 || rec.Phone != "03001234567" ||
		rec.Complaint != "fever" || rec.Date.Format(DateLayout) != "2024-01-20" {
		t.Fatalf("record does not match collected fields: %+v", rec)
	}
}

func TestStateProgression(t *testing.T) {
	order := []State{
		StateEmpty,
		StateCollectingName,
		StateCollectingAge,
		StateCollectingPhone,
		StateCollectingComplaint,
		StateCollectingDate,
		StateSelectingSlot,
		StateBooked,
	}
	for i := 0; i < len(order)-1; i++ {
		if Next(order[i]) != order[i+1] {
			t.Fatalf("Next(%s) = %s, want %s", order[i], Next(order[i]), order[i+1])
		}
	}
	// Terminal state does not advance.
	if Next(StateBooked) != StateBooked {
		t.Fatal("BOOKED must be terminal")
	}
}

func TestSessionStaleAndReset(t *testing.T) {
	sess := NewSession("03001234567")
	sess.State = StateCollectingDate
	sess.Fields.Name = "Ahmed"
	sess.UpdatedAt = testNow.Add(-time.Hour)

	if !sess.Stale(testNow, 30*time.Minute) {
		t.Fatal("expected session idle past timeout to be stale")
	}
	sess.Reset()
	if sess.State != StateEmpty || sess.Fields.Name != "" || sess.Offered != nil {
		t.Fatalf("reset did not clear session: %+v", sess)
	}
}

func TestHistoryBounded(t *testing.T) {
	sess := NewSession("03001234567")
	for i := 0; i < 50; i++ {
		sess.AppendTurn("patient", "hello")
	}
	if len(sess.History) != maxHistoryTurns {
		t.Fatalf("expected history bounded to %d, got %d", maxHistoryTurns, len(sess.History))
	}
}
