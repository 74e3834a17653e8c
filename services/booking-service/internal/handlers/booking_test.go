package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/libs/civiltime"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
)

const secret = "test-secret"

var pacific = civiltime.MustLoad(civiltime.DefaultZoneName)

type fakeEngine struct {
	cal        availability.Calendar
	lastCreate booking.Request
	createErr  error
	cancelErr  error
	listClient string
	cancelBy   booking.Canceller
}

func (f *fakeEngine) Calendar() availability.Calendar { return f.cal }

func (f *fakeEngine) ListAvailableSlots(_ context.Context, date civiltime.Date) []availability.Slot {
	return f.cal.SlotsFor(date, time.Time{})[:2]
}

func (f *fakeEngine) CreateBooking(_ context.Context, req booking.Request) (model.Appointment, error) {
	f.lastCreate = req
	if f.createErr != nil {
		return model.Appointment{}, f.createErr
	}
	d, _ := civiltime.ParseDate(req.Date)
	at, _ := pacific.Combine(d, req.Time)
	return model.Appointment{ID: "appt-1", ScheduledAt: at, Status: model.StatusConfirmed}, nil
}

func (f *fakeEngine) CancelBooking(_ context.Context, id, _ string, by booking.Canceller) (model.Appointment, error) {
	f.cancelBy = by
	if f.cancelErr != nil {
		return model.Appointment{}, f.cancelErr
	}
	now := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)
	return model.Appointment{ID: id, Status: model.StatusCancelled, CancelledAt: &now}, nil
}

func (f *fakeEngine) ListAppointments(_ context.Context, clientID string, _ int) ([]model.Appointment, error) {
	f.listClient = clientID
	return []model.Appointment{{ID: "appt-1", ScheduledAt: time.Date(2025, 7, 1, 17, 0, 0, 0, time.UTC), Status: model.StatusConfirmed}}, nil
}

func newTestHandler() (*BookingHandler, *fakeEngine) {
	f := &fakeEngine{cal: availability.Default(pacific)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBookingHandler(f, auth.Verifier{Secret: secret}, logger), f
}

func bearer(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.Claims{Sub: sub, Role: role, Name: "Ada Client", Email: "ada@example.com", Exp: time.Now().Add(time.Hour).Unix()}, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + tok
}

func TestSlots(t *testing.T) {
	h, _ := newTestHandler()
	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?date=2025-06-02", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp slotsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Timezone != "America/Los_Angeles" || resp.SlotMinutes != 30 || len(resp.Slots) != 2 || resp.Slots[0] != "09:00" {
		t.Fatalf("unexpected response %+v", resp)
	}

	rec = httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?date=June", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}
}

func TestCreatePublicBooking(t *testing.T) {
	h, f := newTestHandler()
	body := `{"name":"Jane Roe","email":"jane@example.com","phone":"5551234567","date":"2025-07-01","time":"10:00","type":"phone"}`
	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp createBookingResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.AppointmentID != "appt-1" || resp.ScheduledAt != "2025-07-01T17:00:00Z" || resp.LocalTime != "10:00" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if f.lastCreate.Identity.Kind != model.SourcePublic {
		t.Fatalf("expected public identity, got %+v", f.lastCreate.Identity)
	}
}

func TestCreateAuthenticatedBookingUsesTokenIdentity(t *testing.T) {
	h, f := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(`{"date":"2025-07-01","time":"10:00","type":"virtual","booking_type":"guest"}`))
	req.Header.Set("Authorization", bearer(t, "client-7", "client"))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	got := f.lastCreate
	if got.Identity.Kind != model.SourceAuthenticated || got.Identity.ClientID != "client-7" || got.Email != "ada@example.com" || got.Name != "Ada Client" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestCreateErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&booking.ValidationError{Field: "email", Message: "bad"}, http.StatusBadRequest},
		{fmt.Errorf("%w: 2025-07-01 10:00", booking.ErrConflict), http.StatusConflict},
		{fmt.Errorf("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h, f := newTestHandler()
		f.createErr = tc.err
		rec := httptest.NewRecorder()
		h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(`{"date":"2025-07-01","time":"10:00"}`)))
		if rec.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rec.Code)
		}
	}
}

func TestCreateRejectsBadTokenAndBookingType(t *testing.T) {
	h, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer forged.token.value")
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(`{"booking_type":"vip"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCancel(t *testing.T) {
	h, f := newTestHandler()

	rec := httptest.NewRecorder()
	h.Cancel(rec, httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel", strings.NewReader(`{"appointment_id":"appt-1"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel", strings.NewReader(`{"appointment_id":"appt-1","reason":"conflict"}`))
	req.Header.Set("Authorization", bearer(t, "client-1", "client"))
	rec = httptest.NewRecorder()
	h.Cancel(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp cancelBookingResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Status != model.StatusCancelled || resp.CancelledAt != "2025-06-20T12:00:00Z" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if f.cancelBy != (booking.Canceller{ClientID: "client-1"}) {
		t.Fatalf("client cancel should be scoped to the caller, got %+v", f.cancelBy)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel", strings.NewReader(`{"appointment_id":"appt-1"}`))
	req.Header.Set("Authorization", bearer(t, "staff-1", "staff"))
	rec = httptest.NewRecorder()
	h.Cancel(rec, req)
	if rec.Code != http.StatusOK || !f.cancelBy.Staff {
		t.Fatalf("staff cancel: status=%d by=%+v", rec.Code, f.cancelBy)
	}

	f.cancelErr = booking.ErrNotFound
	req = httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel", strings.NewReader(`{"appointment_id":"nope"}`))
	req.Header.Set("Authorization", bearer(t, "client-1", "client"))
	rec = httptest.NewRecorder()
	h.Cancel(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListScopesClients(t *testing.T) {
	h, f := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments?limit=5", nil)
	req.Header.Set("Authorization", bearer(t, "client-3", "client"))
	rec := httptest.NewRecorder()
	h.List(rec, req)
	if rec.Code != http.StatusOK || f.listClient != "client-3" {
		t.Fatalf("client listing: status=%d scoped=%q", rec.Code, f.listClient)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set("Authorization", bearer(t, "staff-1", "staff"))
	rec = httptest.NewRecorder()
	h.List(rec, req)
	if rec.Code != http.StatusOK || f.listClient != "" {
		t.Fatalf("staff listing: status=%d scoped=%q", rec.Code, f.listClient)
	}
	var items []listAppointmentItem
	_ = json.NewDecoder(rec.Body).Decode(&items)
	if len(items) != 1 || items[0].LocalTime != "10:00" {
		t.Fatalf("unexpected items %+v", items)
	}
}
