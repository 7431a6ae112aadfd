// Package messaging carries outbound patient messages over WhatsApp and
// handles the inbound webhook.
package messaging

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Messenger sends one outbound message to a patient phone number.
type Messenger interface {
	Send(ctx context.Context, to, body string) error
}

// ConsoleSender writes messages to a writer instead of a provider. Used by
// the console chat mode and tests.
type ConsoleSender struct {
	mu sync.Mutex
	w  io.Writer

	sent []SentMessage
}

// SentMessage is one recorded outbound message.
type SentMessage struct {
	To   string
	Body string
}

// NewConsoleSender creates a sender that writes to w. A nil writer records
// without printing.
func NewConsoleSender(w io.Writer) *ConsoleSender {
	return &ConsoleSender{w: w}
}

// Send records the message and prints it when a writer is configured.
func (s *ConsoleSender) Send(ctx context.Context, to, body string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("messaging: recipient required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, SentMessage{To: to, Body: body})
	if s.w != nil {
		fmt.Fprintf(s.w, "-> %s: %s\n", to, body)
	}
	return nil
}

// Sent returns a copy of every recorded message.
func (s *ConsoleSender) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}
