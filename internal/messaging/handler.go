package messaging

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/shifalabs/clinic-receptionist/pkg/logging"
)

// MessageProcessor turns one inbound patient message into one reply.
type MessageProcessor interface {
	HandleMessage(ctx context.Context, phone, text string) (string, error)
}

// Handler exposes the inbound message endpoints: the Twilio WhatsApp webhook
// and a JSON chat endpoint for manual testing.
type Handler struct {
	processor     MessageProcessor
	webhookSecret string
	logger        *logging.Logger
}

// NewHandler creates the inbound message handler. When webhookSecret is set,
// webhook requests must carry a valid Twilio signature.
func NewHandler(processor MessageProcessor, webhookSecret string, logger *logging.Logger) *Handler {
	if processor == nil {
		panic("messaging: processor is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		processor:     processor,
		webhookSecret: webhookSecret,
		logger:        logger.WithComponent("messaging"),
	}
}

// HandleTwilioWebhook receives a WhatsApp message from Twilio and answers
// with TwiML carrying the single reply. It always answers 200 so Twilio does
// not re-deliver; failures inside the engine surface as the reply text.
func (h *Handler) HandleTwilioWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret != "" {
		if !ValidateTwilioSignature(r, h.webhookSecret, buildAbsoluteURL(r)) {
			h.logger.Warn("invalid twilio signature", "remote", r.RemoteAddr)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	if err := r.ParseForm(); err != nil {
		h.logger.Warn("webhook form parse failed", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	phone := LocalizePhone(r.FormValue("From"))
	body := strings.TrimSpace(r.FormValue("Body"))
	if phone == "" || body == "" {
		http.Error(w, "From and Body required", http.StatusBadRequest)
		return
	}

	reply, err := h.processor.HandleMessage(r.Context(), phone, body)
	if err != nil {
		h.logger.Error("message processing failed", "phone", phone, "error", err)
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(twiml(reply)))
}

// ChatRequest is the JSON chat endpoint's request body.
type ChatRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// ChatResponse is the JSON chat endpoint's response body.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// HandleChat processes a message posted as JSON. Used for local testing and
// demos without a WhatsApp number.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	req.Phone = LocalizePhone(req.Phone)
	req.Message = strings.TrimSpace(req.Message)
	if req.Phone == "" || req.Message == "" {
		http.Error(w, "phone and message required", http.StatusBadRequest)
		return
	}

	reply, err := h.processor.HandleMessage(r.Context(), req.Phone, req.Message)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		h.logger.Error("message processing failed", "phone", req.Phone, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
	_ = json.NewEncoder(w).Encode(ChatResponse{Reply: reply})
}

func twiml(reply string) string {
	var escaped strings.Builder
	_ = xml.EscapeText(&escaped, []byte(reply))
	return `<?xml version="1.0" encoding="UTF-8"?><Response><Message>` + escaped.String() + `</Message></Response>`
}
