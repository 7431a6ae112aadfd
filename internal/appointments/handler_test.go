package appointments

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shifalabs/clinic-receptionist/pkg/logging"
)

func newTestHandler(t *testing.T) (*InMemoryRepository, *Handler) {
	t.Helper()
	repo := NewInMemoryRepository()
	h := NewHandler(repo, logging.Default())
	h.now = func() time.Time { return time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC) }
	return repo, h
}

func TestListAppointmentsByDate(t *testing.T) {
	repo, h := newTestHandler(t)
	if err := repo.Create(context.Background(), testAppointment("14:00")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/appointments?date=2024-01-20", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Count != 1 || resp.Appointments[0].SlotStart != "14:00" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestListAppointmentsBadDate(t *testing.T) {
	_, h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/appointments?date=20-01-2024", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestTodayStats(t *testing.T) {
	repo, h := newTestHandler(t)
	ctx := context.Background()

	first := testAppointment("10:00")
	second := testAppointment("11:00")
	for _, a := range []*Appointment{first, second} {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
	if err := repo.UpdateStatus(ctx, second.ID, StatusCancelled); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/appointments/today", nil)
	w := httptest.NewRecorder()
	h.TodayStats(w, req)

	var stats TodayStatsResponse
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if stats.TotalToday != 2 || stats.ScheduledToday != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestUpdateStatusEndpoint(t *testing.T) {
	repo, h := newTestHandler(t)
	appt := testAppointment("14:00")
	if err := repo.Create(context.Background(), appt); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	r := chi.NewRouter()
	r.Put("/admin/appointments/{id}", h.UpdateStatus)

	body, _ := json.Marshal(UpdateStatusRequest{Status: "completed"})
	req := httptest.NewRequest(http.MethodPut, "/admin/appointments/"+appt.ID.String(), bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	updated, err := repo.GetByID(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if updated.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
}

func TestUpdateStatusUnknownAppointment(t *testing.T) {
	_, h := newTestHandler(t)

	r := chi.NewRouter()
	r.Put("/admin/appointments/{id}", h.UpdateStatus)

	body, _ := json.Marshal(UpdateStatusRequest{Status: "cancelled"})
	req := httptest.NewRequest(http.MethodPut, "/admin/appointments/"+uuid.NewString(), bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
