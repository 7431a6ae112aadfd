package intake

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidName is returned when the name is empty or implausible.
	ErrInvalidName = errors.New("intake: name is required")

	// ErrInvalidAge is returned when the age is not a positive integer in range.
	ErrInvalidAge = errors.New("intake: age must be between 1 and 120")

	// ErrInvalidPhone is returned when the phone does not match the local format.
	ErrInvalidPhone = errors.New("intake: phone must match 03XX-XXXXXXX")

	// ErrInvalidComplaint is returned when the chief complaint is empty.
	ErrInvalidComplaint = errors.New("intake: complaint is required")

	// ErrInvalidDate is returned when the date cannot be parsed as YYYY-MM-DD.
	ErrInvalidDate = errors.New("intake: date must be YYYY-MM-DD")

	// ErrPastDate is returned when the requested date is before today.
	ErrPastDate = errors.New("intake: date is in the past")

	// ErrBeyondHorizon is returned when the date is too far ahead to book.
	ErrBeyondHorizon = errors.New("intake: date is beyond the booking horizon")
)

// Pakistani mobile numbers: 03XX followed by seven digits, optional
// separator after the prefix.
var phonePattern = regexp.MustCompile(`^03\d{2}[- ]?\d{7}$`)

const maxNameLength = 100

// DateLayout is the wire format for intake dates.
const DateLayout = "2006-01-02"

// ValidateName trims and checks the patient name.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

// ValidateAge checks the age range.
func ValidateAge(age int) error {
	if age < 1 || age > 120 {
		return ErrInvalidAge
	}
	return nil
}

// ParseAge converts an extracted value into an age, enforcing the range.
func ParseAge(value string) (int, error) {
	age, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, ErrInvalidAge
	}
	if err := ValidateAge(age); err != nil {
		return 0, err
	}
	return age, nil
}

// ValidatePhone checks the local mobile format and returns the normalized
// form (digits only, e.g. "03001234567").
func ValidatePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if !phonePattern.MatchString(phone) {
		return "", ErrInvalidPhone
	}
	normalized := strings.NewReplacer("-", "", " ", "").Replace(phone)
	return normalized, nil
}

// ValidateComplaint checks the chief complaint is non-empty.
func ValidateComplaint(complaint string) (string, error) {
	complaint = strings.TrimSpace(complaint)
	if complaint == "" {
		return "", ErrInvalidComplaint
	}
	return complaint, nil
}

// ValidateDate parses value as a calendar date and rejects past dates and
// dates beyond the horizon.
func ValidateDate(value string, now time.Time, horizonDays int) (time.Time, error) {
	date, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if date.Before(today) {
		return time.Time{}, ErrPastDate
	}
	if horizonDays > 0 && date.After(today.AddDate(0, 0, horizonDays)) {
		return time.Time{}, ErrBeyondHorizon
	}
	return date, nil
}
