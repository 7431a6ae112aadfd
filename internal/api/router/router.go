// Package router wires the HTTP surface: the WhatsApp webhook, the chat
// endpoint, metrics, and the admin appointment API.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shifalabs/clinic-receptionist/internal/appointments"
	httpmiddleware "github.com/shifalabs/clinic-receptionist/internal/http/middleware"
	"github.com/shifalabs/clinic-receptionist/internal/messaging"
	"github.com/shifalabs/clinic-receptionist/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger              *logging.Logger
	MessagingHandler    *messaging.Handler
	AppointmentsHandler *appointments.Handler
	AdminAuthSecret     string
	MetricsHandler      http.Handler

	// Webhook flood protection; zero disables it.
	WebhookRatePerSec float64
	WebhookBurst      int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)

	r.Group(func(public chi.Router) {
		if cfg.WebhookRatePerSec > 0 && cfg.WebhookBurst > 0 {
			public.Use(httpmiddleware.RateLimit(cfg.WebhookRatePerSec, cfg.WebhookBurst))
		}
		if cfg.MessagingHandler != nil {
			public.Post("/webhooks/twilio/messages", cfg.MessagingHandler.HandleTwilioWebhook)
			public.Post("/api/chat", cfg.MessagingHandler.HandleChat)
		}
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.AppointmentsHandler != nil {
		r.Route("/admin/appointments", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/", cfg.AppointmentsHandler.List)
			admin.Get("/today", cfg.AppointmentsHandler.TodayStats)
			admin.Put("/{id}", cfg.AppointmentsHandler.UpdateStatus)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
