// Package triage flags emergency language in inbound patient messages.
// It is a lexical safety net, not a diagnostic tool: matching leans toward
// flagging so that no plausibly urgent message ever reaches the booking flow.
package triage

import "strings"

// Result is the outcome of classifying one message.
type Result struct {
	Urgent  bool
	Matched []string
}

// Classifier detects emergency phrases in English and Roman Urdu.
type Classifier struct {
	lexicon []string
}

// defaultLexicon covers the emergency phrases the clinic escalates on.
// Substring matching keeps variants like "severe chest pain" covered.
var defaultLexicon = []string{
	// English
	"chest pain",
	"heart attack",
	"cardiac arrest",
	"can't breathe",
	"cannot breathe",
	"difficulty breathing",
	"severe bleeding",
	"unconscious",
	"loss of consciousness",
	"seizure",
	"stroke",
	"severe pain",
	"emergency",

	// Roman Urdu
	"seene mein dard",
	"seene me dard",
	"dil ka daura",
	"sans nahi aa rahi",
	"saans nahi aa rahi",
	"khoon beh raha",
	"behosh",
	"bohot dard",
	"bohat dard",
}

// NewClassifier returns a classifier over the default bilingual lexicon.
func NewClassifier() *Classifier {
	return &Classifier{lexicon: defaultLexicon}
}

// NewClassifierWithLexicon allows clinics to extend the phrase list.
// An empty list falls back to the defaults.
func NewClassifierWithLexicon(phrases []string) *Classifier {
	if len(phrases) == 0 {
		return NewClassifier()
	}
	lexicon := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			lexicon = append(lexicon, p)
		}
	}
	return &Classifier{lexicon: lexicon}
}

// Classify scans text for emergency phrases. It is a pure function of its
// input: no state is read or written.
func (c *Classifier) Classify(text string) Result {
	lowered := strings.ToLower(text)
	var matched []string
	for _, phrase := range c.lexicon {
		if strings.Contains(lowered, phrase) {
			matched = append(matched, phrase)
		}
	}
	return Result{
		Urgent:  len(matched) > 0,
		Matched: matched,
	}
}
