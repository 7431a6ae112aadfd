package conversation

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/shifalabs/clinic-receptionist/internal/intake"
)

// ErrUnresolved is returned when the extractor cannot find a value for the
// target field in the conversation. The engine recovers by re-prompting.
var ErrUnresolved = errors.New("conversation: field unresolved")

// Extractor is the language-understanding capability boundary. Any
// implementation satisfying it is substitutable: the Gemini client in
// production, the rule-based extractor in tests and console mode.
type Extractor interface {
	// ExtractField pulls the target field's value out of the conversation.
	ExtractField(ctx context.Context, history []intake.Turn, field intake.Field) (string, error)

	// ComposeReply may rephrase the drafted outbound message. Returning the
	// draft unchanged is always acceptable.
	ComposeReply(ctx context.Context, history []intake.Turn, draft string) (string, error)
}

// RuleExtractor resolves fields with deterministic patterns. It doubles as
// the documented fallback when no language model is configured.
type RuleExtractor struct {
	now func() time.Time
}

// NewRuleExtractor builds a rule-based extractor. now is used to resolve
// relative dates ("tomorrow", "kal"); nil means wall clock.
func NewRuleExtractor(now func() time.Time) *RuleExtractor {
	if now == nil {
		now = time.Now
	}
	return &RuleExtractor{now: now}
}

var (
	namePattern  = regexp.MustCompile(`(?i)(?:my name is|i am|this is|mera naam hai|mera naam|naam hai)\s+([a-zA-Z]+(?:\s+[a-zA-Z]+){0,3})`)
	agePattern   = regexp.MustCompile(`(?i)(\d{1,3})\s*(?:years?|saal|sal|old)`)
	bareNumber   = regexp.MustCompile(`\b(\d{1,3})\b`)
	phonePattern = regexp.MustCompile(`03\d{2}[- ]?\d{7}`)
	isoDate      = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

// Words that make a bare message unlikely to be a name.
var nonNameWords = []string{
	"hi", "hello", "hey", "salam", "salaam", "assalam",
	"what", "when", "where", "how", "why", "need", "want",
	"appointment", "doctor", "help", "please", "chahiye", "hai",
}

// ExtractField resolves field from the most recent patient turn.
func (r *RuleExtractor) ExtractField(ctx context.Context, history []intake.Turn, field intake.Field) (string, error) {
	message := lastPatientTurn(history)
	if message == "" {
		return "", ErrUnresolved
	}

	switch field {
	case intake.FieldName:
		return r.extractName(message)
	case intake.FieldAge:
		return r.extractAge(message)
	case intake.FieldPhone:
		if m := phonePattern.FindString(message); m != "" {
			return m, nil
		}
		return "", ErrUnresolved
	case intake.FieldComplaint:
		if trimmed := strings.TrimSpace(message); trimmed != "" {
			return trimmed, nil
		}
		return "", ErrUnresolved
	case intake.FieldDate:
		return r.extractDate(message)
	default:
		return "", ErrUnresolved
	}
}

// ComposeReply returns the draft unchanged: rule-based replies are the
// templates themselves.
func (r *RuleExtractor) ComposeReply(ctx context.Context, history []intake.Turn, draft string) (string, error) {
	return draft, nil
}

func (r *RuleExtractor) extractName(message string) (string, error) {
	if m := namePattern.FindStringSubmatch(message); m != nil {
		return titleCase(m[1]), nil
	}

	// A short message of plain words with no digits is likely just the name.
	words := strings.Fields(message)
	if len(words) >= 1 && len(words) <= 4 && !strings.ContainsAny(message, "0123456789") {
		lowered := strings.ToLower(message)
		for _, w := range nonNameWords {
			if strings.Contains(lowered, w) {
				return "", ErrUnresolved
			}
		}
		return titleCase(message), nil
	}
	return "", ErrUnresolved
}

func (r *RuleExtractor) extractAge(message string) (string, error) {
	if m := agePattern.FindStringSubmatch(message); m != nil {
		return m[1], nil
	}
	// Phone numbers would match the bare-number pattern piecewise.
	if phonePattern.MatchString(message) {
		return "", ErrUnresolved
	}
	if m := bareNumber.FindStringSubmatch(message); m != nil {
		return m[1], nil
	}
	return "", ErrUnresolved
}

// extractDate resolves ISO dates and the deterministic relative forms.
// Anything else stays unresolved so the engine re-prompts instead of
// guessing.
func (r *RuleExtractor) extractDate(message string) (string, error) {
	if m := isoDate.FindString(message); m != "" {
		return m, nil
	}
	lowered := strings.ToLower(message)
	now := r.now()
	switch {
	case strings.Contains(lowered, "tomorrow"), strings.Contains(lowered, "kal"):
		return now.AddDate(0, 0, 1).Format(intake.DateLayout), nil
	case strings.Contains(lowered, "today"), strings.Contains(lowered, "aaj"):
		return now.Format(intake.DateLayout), nil
	}
	return "", ErrUnresolved
}

func lastPatientTurn(history []intake.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "patient" {
			return history[i].Content
		}
	}
	return ""
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
