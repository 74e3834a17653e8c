package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/civiltime"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/counselbook/services/booking-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
)

// memStore mirrors the database's partial unique index on confirmed slots.
type memStore struct {
	mu      sync.Mutex
	appts   []model.Appointment
	events  []outbox.Event
	writes  int
	listErr error
	seq     int
}

func (s *memStore) Create(_ context.Context, appt model.Appointment, events storage.EventBuilder) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.appts {
		if a.Status == model.StatusConfirmed && a.ScheduledAt.Equal(appt.ScheduledAt) {
			return model.Appointment{}, model.ErrSlotTaken
		}
	}
	s.seq++
	appt.ID = fmt.Sprintf("appt-%d", s.seq)
	appt.Status = model.StatusConfirmed
	appt.CreatedAt = time.Now()
	evts, err := events(appt)
	if err != nil {
		return model.Appointment{}, err
	}
	s.appts = append(s.appts, appt)
	s.events = append(s.events, evts...)
	s.writes++
	return appt, nil
}

func (s *memStore) Cancel(_ context.Context, id, ownerID, reason string, events storage.EventBuilder) (model.Appointment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.appts {
		if a.ID != id {
			continue
		}
		if ownerID != "" && a.ClientID != ownerID {
			return model.Appointment{}, false, model.ErrNotFound
		}
		if a.Status == model.StatusCancelled {
			return a, false, nil
		}
		now := time.Now()
		a.Status = model.StatusCancelled
		a.CancelledAt = &now
		a.CancelReason = reason
		evts, err := events(a)
		if err != nil {
			return model.Appointment{}, false, err
		}
		s.appts[i] = a
		s.events = append(s.events, evts...)
		s.writes++
		return a, true, nil
	}
	return model.Appointment{}, false, model.ErrNotFound
}

func (s *memStore) ListConfirmedBetween(_ context.Context, start, end time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.Appointment
	for _, a := range s.appts {
		if a.Status == model.StatusConfirmed && !a.ScheduledAt.Before(start) && !a.ScheduledAt.After(end) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) List(_ context.Context, clientID string, limit int) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appts {
		if clientID == "" || a.ClientID == clientID {
			out = append(out, a)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

var pacific = civiltime.MustLoad(civiltime.DefaultZoneName)

// fixedNow is Sunday 2025-06-01 08:00 in Pacific time.
var fixedNow = time.Date(2025, 6, 1, 8, 0, 0, 0, pacific.Location())

func newTestEngine(store Store, opts ...Option) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewEngine(availability.Default(pacific), store, logger, opts...)
}

func mustDate(t *testing.T, s string) civiltime.Date {
	t.Helper()
	d, err := civiltime.ParseDate(s)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	return d
}

func clocks(slots []availability.Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Clock
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func counterValue(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	families, err := g.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		var total float64
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	return 0
}

func janeRoe() Request {
	return Request{
		Identity: Identity{Kind: model.SourcePublic},
		Name:     "Jane Roe",
		Email:    "jane@example.com",
		Phone:    "5551234567",
		Date:     "2025-07-01",
		Time:     "10:00",
		Type:     "phone",
	}
}

func TestListAvailableSlotsClosedDay(t *testing.T) {
	e := newTestEngine(&memStore{})
	for _, d := range []string{"2025-06-08", "2025-06-15", "2025-06-22"} {
		if slots := e.ListAvailableSlots(context.Background(), mustDate(t, d)); len(slots) != 0 {
			t.Fatalf("%s: expected no slots on sunday, got %v", d, clocks(slots))
		}
	}
}

func TestListAvailableSlotsIdempotent(t *testing.T) {
	e := newTestEngine(&memStore{})
	d := mustDate(t, "2025-06-03")
	first := clocks(e.ListAvailableSlots(context.Background(), d))
	second := clocks(e.ListAvailableSlots(context.Background(), d))
	if len(first) != 16 || fmt.Sprint(first) != fmt.Sprint(second) {
		t.Fatalf("listing changed between calls: %v vs %v", first, second)
	}
}

func TestListAvailableSlotsFiltersConfirmed(t *testing.T) {
	store := &memStore{}
	d := mustDate(t, "2025-06-02")
	store.appts = []model.Appointment{
		{ID: "a", Status: model.StatusConfirmed, ScheduledAt: pacific.At(d, 10, 0)},
		{ID: "b", Status: model.StatusCancelled, ScheduledAt: pacific.At(d, 11, 0)},
	}
	e := newTestEngine(store)

	got := clocks(e.ListAvailableSlots(context.Background(), d))
	if contains(got, "10:00") {
		t.Fatalf("10:00 is booked but was listed: %v", got)
	}
	if !contains(got, "11:00") {
		t.Fatalf("cancelled appointment should not block 11:00: %v", got)
	}
	if len(got) != 15 || got[1] != "09:30" || got[2] != "10:30" {
		t.Fatalf("unexpected ordering %v", got)
	}
}

func TestListAvailableSlotsFailsOpen(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewBooking(reg)
	store := &memStore{listErr: errors.New("connection refused")}
	d := mustDate(t, "2025-06-02")
	store.appts = []model.Appointment{{ID: "a", Status: model.StatusConfirmed, ScheduledAt: pacific.At(d, 10, 0)}}
	e := newTestEngine(store, WithMetrics(m))

	got := clocks(e.ListAvailableSlots(context.Background(), d))
	if len(got) != 16 || !contains(got, "10:00") {
		t.Fatalf("expected unfiltered candidates on store failure, got %v", got)
	}
	if v := counterValue(t, reg, "counselbook_booking_slots_fail_open_total"); v != 1 {
		t.Fatalf("expected fail-open counter 1, got %v", v)
	}
}

func TestListAvailableSlotsSameDayCutoff(t *testing.T) {
	now := time.Date(2025, 6, 2, 13, 10, 0, 0, pacific.Location())
	e := newTestEngine(&memStore{}, WithClock(func() time.Time { return now }))
	for _, s := range e.ListAvailableSlots(context.Background(), mustDate(t, "2025-06-02")) {
		if !s.Start.After(now) {
			t.Fatalf("slot %s is not after now", s.Clock)
		}
	}
}

func TestCreateBookingHappyPath(t *testing.T) {
	store := &memStore{}
	e := newTestEngine(store)

	appt, err := e.CreateBooking(context.Background(), janeRoe())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if appt.ID == "" || appt.Status != model.StatusConfirmed || appt.DurationMinutes != 30 {
		t.Fatalf("unexpected appointment %+v", appt)
	}
	if appt.RemindersSent.TwentyFourHour || appt.RemindersSent.OneHour {
		t.Fatal("reminder flags must start false")
	}
	if want := time.Date(2025, 7, 1, 17, 0, 0, 0, time.UTC); !appt.ScheduledAt.Equal(want) {
		t.Fatalf("expected 10:00 PDT (%s), got %s", want, appt.ScheduledAt.UTC())
	}

	if got := clocks(e.ListAvailableSlots(context.Background(), mustDate(t, "2025-07-01"))); contains(got, "10:00") {
		t.Fatalf("booked slot still listed: %v", got)
	}

	if len(store.events) != 1 || store.events[0].EventType != outbox.EventAppointmentBooked {
		t.Fatalf("expected one booked event, got %+v", store.events)
	}
	var payload AppointmentPayload
	if err := json.Unmarshal(store.events[0].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.LocalTime != "10:00" || payload.Timezone != civiltime.DefaultZoneName || payload.ClientEmail != "jane@example.com" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestCreateBookingMalformedEmailWritesNothing(t *testing.T) {
	store := &memStore{}
	e := newTestEngine(store)
	req := janeRoe()
	req.Email = "not-an-email"

	_, err := e.CreateBooking(context.Background(), req)
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "email" {
		t.Fatalf("expected email validation error, got %v", err)
	}
	if store.writes != 0 || len(store.appts) != 0 || len(store.events) != 0 {
		t.Fatal("store must be unchanged after a validation failure")
	}
}

func TestCreateBookingValidation(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*Request)
		field string
	}{
		{"missing name", func(r *Request) { r.Name = " " }, "name"},
		{"missing email", func(r *Request) { r.Email = "" }, "email"},
		{"guest without phone", func(r *Request) { r.Identity.Kind = model.SourceGuest; r.Phone = "" }, "phone"},
		{"public without phone", func(r *Request) { r.Phone = "" }, "phone"},
		{"garbage phone", func(r *Request) { r.Phone = "call me" }, "phone"},
		{"authenticated without client id", func(r *Request) { r.Identity = Identity{Kind: model.SourceAuthenticated} }, "client_id"},
		{"unknown identity", func(r *Request) { r.Identity.Kind = "staff" }, "identity"},
		{"bad type", func(r *Request) { r.Type = "in-person" }, "type"},
		{"bad date", func(r *Request) { r.Date = "07/01/2025" }, "date"},
		{"bad time", func(r *Request) { r.Time = "10am" }, "time"},
		{"past", func(r *Request) { r.Date = "2025-05-30" }, "time"},
		{"beyond horizon", func(r *Request) { r.Date = "2025-09-02" }, "date"},
		{"closed day", func(r *Request) { r.Date = "2025-06-08" }, "time"},
		{"off grid", func(r *Request) { r.Time = "10:15" }, "time"},
		{"after hours", func(r *Request) { r.Time = "17:00" }, "time"},
		{"saturday afternoon", func(r *Request) { r.Date = "2025-06-07"; r.Time = "14:00" }, "time"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &memStore{}
			req := janeRoe()
			tc.edit(&req)
			_, err := newTestEngine(store).CreateBooking(context.Background(), req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if ve.Field != tc.field {
				t.Fatalf("expected field %q, got %q (%s)", tc.field, ve.Field, ve.Message)
			}
			if store.writes != 0 {
				t.Fatal("validation failure must not write")
			}
		})
	}
}

func TestCreateBookingHorizonBoundary(t *testing.T) {
	req := janeRoe()
	req.Date = "2025-09-01" // today + 3 months, a Monday
	if _, err := newTestEngine(&memStore{}).CreateBooking(context.Background(), req); err != nil {
		t.Fatalf("last day of the horizon should be bookable: %v", err)
	}
}

func TestCreateBookingAuthenticatedAndGuest(t *testing.T) {
	store := &memStore{}
	e := newTestEngine(store)

	auth := janeRoe()
	auth.Identity = Identity{Kind: model.SourceAuthenticated, ClientID: "client-1"}
	auth.Phone = ""
	a, err := e.CreateBooking(context.Background(), auth)
	if err != nil {
		t.Fatalf("authenticated booking: %v", err)
	}
	if a.ClientID != "client-1" || a.Source != model.SourceAuthenticated {
		t.Fatalf("unexpected authenticated appointment %+v", a)
	}

	guest := janeRoe()
	guest.Identity = Identity{Kind: model.SourceGuest, ClientID: "spoofed"}
	guest.Time = "11:00"
	g, err := e.CreateBooking(context.Background(), guest)
	if err != nil {
		t.Fatalf("guest booking: %v", err)
	}
	if g.ClientID != "" || g.Source != model.SourceGuest {
		t.Fatalf("guest bookings must not carry a client id: %+v", g)
	}
}

func TestCreateBookingConflict(t *testing.T) {
	e := newTestEngine(&memStore{})
	if _, err := e.CreateBooking(context.Background(), janeRoe()); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	second := janeRoe()
	second.Name = "John Doe"
	second.Email = "john@example.com"
	if _, err := e.CreateBooking(context.Background(), second); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateBookingRaceExactlyOneWins(t *testing.T) {
	store := &memStore{}
	e := newTestEngine(store)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	start := make(chan struct{})
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			req := janeRoe()
			req.Email = fmt.Sprintf("caller%d@example.com", i)
			_, errs[i] = e.CreateBooking(context.Background(), req)
		}()
	}
	close(start)
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != callers-1 {
		t.Fatalf("expected exactly one winner, got wins=%d conflicts=%d", wins, conflicts)
	}
	if len(store.appts) != 1 {
		t.Fatalf("expected one stored appointment, got %d", len(store.appts))
	}
}

func TestCancelBooking(t *testing.T) {
	store := &memStore{}
	e := newTestEngine(store)
	appt, err := e.CreateBooking(context.Background(), janeRoe())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled, err := e.CancelBooking(context.Background(), appt.ID, "client request", staffCanceller)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected cancelled appointment %+v", cancelled)
	}

	again, err := e.CancelBooking(context.Background(), appt.ID, "again", staffCanceller)
	if err != nil {
		t.Fatalf("second cancel should be a no-op, got %v", err)
	}
	if again.CancelReason != "client request" {
		t.Fatalf("second cancel must not rewrite the record: %+v", again)
	}
	if len(store.events) != 2 || store.events[1].EventType != outbox.EventAppointmentCancelled {
		t.Fatalf("expected booked+cancelled events only, got %d", len(store.events))
	}

	// The slot is free again.
	if got := clocks(e.ListAvailableSlots(context.Background(), mustDate(t, "2025-07-01"))); !contains(got, "10:00") {
		t.Fatalf("cancelled slot should be offered again: %v", got)
	}
	if _, err := e.CreateBooking(context.Background(), janeRoe()); err != nil {
		t.Fatalf("rebooking a cancelled slot: %v", err)
	}
}

var staffCanceller = Canceller{ClientID: "staff-1", Staff: true}

func TestCancelBookingOnlyByOwnerOrStaff(t *testing.T) {
	store := &memStore{}
	e := newTestEngine(store)
	req := janeRoe()
	req.Identity = Identity{Kind: model.SourceAuthenticated, ClientID: "client-a"}
	appt, err := e.CreateBooking(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for name, by := range map[string]Canceller{
		"other client": {ClientID: "client-b"},
		"no identity":  {},
	} {
		if _, err := e.CancelBooking(context.Background(), appt.ID, "", by); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
	if store.appts[0].Status != model.StatusConfirmed || len(store.events) != 1 {
		t.Fatalf("foreign cancel must not change the appointment: %+v", store.appts[0])
	}

	cancelled, err := e.CancelBooking(context.Background(), appt.ID, "", Canceller{ClientID: "client-a"})
	if err != nil || cancelled.Status != model.StatusCancelled {
		t.Fatalf("owner cancel: appt=%+v err=%v", cancelled, err)
	}
}

func TestCancelBookingUnknownAndEmpty(t *testing.T) {
	e := newTestEngine(&memStore{})
	if _, err := e.CancelBooking(context.Background(), "nope", "", staffCanceller); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := e.CancelBooking(context.Background(), "", "", staffCanceller); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListAppointmentsScopesByClient(t *testing.T) {
	store := &memStore{appts: []model.Appointment{
		{ID: "1", ClientID: "client-1"},
		{ID: "2", ClientID: "client-2"},
		{ID: "3"},
	}}
	e := newTestEngine(store)

	mine, err := e.ListAppointments(context.Background(), "client-1", 10)
	if err != nil || len(mine) != 1 || mine[0].ID != "1" {
		t.Fatalf("unexpected client listing %v %v", mine, err)
	}
	all, err := e.ListAppointments(context.Background(), "", 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("unexpected staff listing %v %v", all, err)
	}
}
