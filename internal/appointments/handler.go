package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shifalabs/clinic-receptionist/pkg/logging"
)

// Handler exposes the thin admin surface over the appointment store.
type Handler struct {
	repo   Repository
	logger *logging.Logger
	now    func() time.Time
}

// NewHandler creates a new appointments handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ListResponse is the response for listing appointments.
type ListResponse struct {
	Appointments []*Appointment `json:"appointments"`
	Count        int            `json:"count"`
}

// List handles GET /admin/appointments?date=YYYY-MM-DD&status=scheduled.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		dateStr = h.now().Format("2006-01-02")
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		http.Error(w, "invalid date, use YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	var statuses []Status
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		status, ok := ParseStatus(statusStr)
		if !ok {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		statuses = append(statuses, status)
	}

	appts, err := h.repo.ListByDate(r.Context(), date, statuses)
	if err != nil {
		h.logger.Error("failed to list appointments", "error", err, "date", dateStr)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ListResponse{Appointments: appts, Count: len(appts)})
}

// TodayStatsResponse summarizes today's load for the dashboard.
type TodayStatsResponse struct {
	TotalToday     int `json:"total_today"`
	ScheduledToday int `json:"scheduled_today"`
}

// TodayStats handles GET /admin/appointments/today.
func (h *Handler) TodayStats(w http.ResponseWriter, r *http.Request) {
	today := h.now()
	appts, err := h.repo.ListByDate(r.Context(), today, nil)
	if err != nil {
		h.logger.Error("failed to load today stats", "error", err)
		http.Error(w, "failed to load stats", http.StatusInternalServerError)
		return
	}

	stats := TodayStatsResponse{TotalToday: len(appts)}
	for _, appt := range appts {
		if appt.Status == StatusScheduled {
			stats.ScheduledToday++
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

// UpdateStatusRequest is the body for PUT /admin/appointments/{id}.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PUT /admin/appointments/{id}.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	status, ok := ParseStatus(req.Status)
	if !ok {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	if err := h.repo.UpdateStatus(r.Context(), id, status); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		case errors.Is(err, ErrInvalidStatus):
			http.Error(w, "invalid status", http.StatusBadRequest)
		default:
			h.logger.Error("failed to update appointment", "error", err, "id", id)
			http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		}
		return
	}

	h.logger.Info("appointment status updated", "id", id, "status", status)
	writeJSON(w, http.StatusOK, map[string]string{"id": id.String(), "status": string(status)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
