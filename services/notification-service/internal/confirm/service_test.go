package confirm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/civiltime"
	"github.com/md-rashed-zaman/counselbook/libs/notify"
	"github.com/md-rashed-zaman/counselbook/libs/notify/email"
	"github.com/md-rashed-zaman/counselbook/services/notification-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeEmail struct {
	msgs []email.Message
	err  error
}

func (f *fakeEmail) ProviderID() string { return "fake-email" }

func (f *fakeEmail) Send(_ context.Context, msg email.Message) error {
	f.msgs = append(f.msgs, msg)
	return f.err
}

type fakeSMS struct {
	to  []string
	err error
}

func (f *fakeSMS) ProviderID() string { return "fake-sms" }

func (f *fakeSMS) Send(_ context.Context, to string, _ string) error {
	f.to = append(f.to, to)
	return f.err
}

type memLog struct {
	mu   sync.Mutex
	rows []storage.Notification
	err  error
}

func (m *memLog) Insert(_ context.Context, n storage.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, n)
	return m.err
}

var pacific = civiltime.MustLoad("America/Los_Angeles")

func newService(em *fakeEmail, sm *fakeSMS, log *memLog, intake string, reg prometheus.Registerer) *Service {
	return NewService(em, sm, log, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		Templates:     notify.Templates{Zone: pacific, FirmName: "Roe & Partners"},
		IntakeAddress: intake,
		Registerer:    reg,
	})
}

func details() Details {
	return Details{
		AppointmentID: "3f1c2a9e-0000-4000-8000-000000000001",
		ClientName:    "Jane Roe",
		ClientEmail:   "jane@example.com",
		ScheduledAt:   time.Date(2025, 6, 4, 16, 0, 0, 0, time.UTC),
		Type:          "virtual",
	}
}

func TestConfirmationSendsEmailAndRecords(t *testing.T) {
	em, sm, log := &fakeEmail{}, &fakeSMS{}, &memLog{}
	reg := prometheus.NewRegistry()
	s := newService(em, sm, log, "", reg)

	res, err := s.SendClientAppointmentConfirmation(context.Background(), details())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !res.Success || !strings.Contains(res.Message, "jane@example.com") {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(em.msgs) != 1 || em.msgs[0].To != "jane@example.com" {
		t.Fatalf("unexpected emails %+v", em.msgs)
	}
	if !strings.Contains(em.msgs[0].Body, "9:00 AM PDT") {
		t.Fatalf("expected Pacific time in body, got %q", em.msgs[0].Body)
	}
	if len(sm.to) != 0 {
		t.Fatalf("sms should not be sent without a phone")
	}
	if len(log.rows) != 1 || log.rows[0].Status != storage.StatusSent || log.rows[0].Kind != "confirmation" {
		t.Fatalf("unexpected log %+v", log.rows)
	}
	if got := testutil.ToFloat64(s.sends.WithLabelValues("confirmation", "email", "sent")); got != 1 {
		t.Fatalf("expected 1 sent metric, got %v", got)
	}
}

func TestConfirmationWithPhoneSendsSMS(t *testing.T) {
	em, sm, log := &fakeEmail{}, &fakeSMS{err: errors.New("rejected")}, &memLog{}
	s := newService(em, sm, log, "", nil)
	d := details()
	d.ClientPhone = "+15551234567"

	res, err := s.SendClientAppointmentConfirmation(context.Background(), d)
	if err != nil || !res.Success {
		t.Fatalf("sms failure must not fail the confirmation: %+v %v", res, err)
	}
	if len(sm.to) != 1 || sm.to[0] != "+15551234567" {
		t.Fatalf("unexpected sms %v", sm.to)
	}
	if len(log.rows) != 2 || log.rows[1].Channel != "sms" || log.rows[1].Status != storage.StatusFailed {
		t.Fatalf("expected failed sms row, got %+v", log.rows)
	}
}

func TestConfirmationValidation(t *testing.T) {
	cases := map[string]func(*Details){
		"missing id":      func(d *Details) { d.AppointmentID = "" },
		"missing name":    func(d *Details) { d.ClientName = " " },
		"missing email":   func(d *Details) { d.ClientEmail = "" },
		"malformed email": func(d *Details) { d.ClientEmail = "jane-at-example" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			em := &fakeEmail{}
			s := newService(em, &fakeSMS{}, &memLog{}, "", nil)
			d := details()
			mutate(&d)

			res, err := s.SendClientAppointmentConfirmation(context.Background(), d)
			var e *Error
			if !errors.As(err, &e) || e.Code != CodeInvalidArgument {
				t.Fatalf("expected invalid-argument, got %v", err)
			}
			if res.Success {
				t.Fatalf("result should not be successful")
			}
			if len(em.msgs) != 0 {
				t.Fatalf("nothing should be sent")
			}
		})
	}
}

func TestConfirmationEmailFailureIsInternal(t *testing.T) {
	log := &memLog{}
	s := newService(&fakeEmail{err: errors.New("smtp down")}, &fakeSMS{}, log, "", nil)
	res, err := s.SendClientAppointmentConfirmation(context.Background(), details())
	var e *Error
	if !errors.As(err, &e) || e.Code != CodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if res.Success {
		t.Fatalf("result should not be successful")
	}
	if len(log.rows) != 1 || log.rows[0].Status != storage.StatusFailed || log.rows[0].Error == "" {
		t.Fatalf("expected failed row, got %+v", log.rows)
	}
}

func TestLogFailureDoesNotFailSend(t *testing.T) {
	s := newService(&fakeEmail{}, &fakeSMS{}, &memLog{err: errors.New("db down")}, "", nil)
	if _, err := s.SendClientAppointmentConfirmation(context.Background(), details()); err != nil {
		t.Fatalf("log failure should be swallowed, got %v", err)
	}
}

func TestIntakeNotice(t *testing.T) {
	em := &fakeEmail{}
	s := newService(em, &fakeSMS{}, &memLog{}, "intake@roe.law", nil)
	d := details()
	d.Notes = "Landlord dispute"
	if err := s.SendIntakeNotice(context.Background(), d); err != nil {
		t.Fatalf("intake: %v", err)
	}
	if len(em.msgs) != 1 || em.msgs[0].To != "intake@roe.law" || !strings.Contains(em.msgs[0].Body, "Landlord dispute") {
		t.Fatalf("unexpected intake email %+v", em.msgs)
	}

	em = &fakeEmail{}
	s = newService(em, &fakeSMS{}, &memLog{}, "", nil)
	if err := s.SendIntakeNotice(context.Background(), d); err != nil || len(em.msgs) != 0 {
		t.Fatalf("intake should be skipped without an address: %v %+v", err, em.msgs)
	}
}

func TestCancellationNotice(t *testing.T) {
	em := &fakeEmail{}
	s := newService(em, &fakeSMS{}, &memLog{}, "", nil)
	d := details()
	d.CancelReason = "client request"
	if err := s.SendCancellationNotice(context.Background(), d); err != nil {
		t.Fatalf("cancel notice: %v", err)
	}
	if len(em.msgs) != 1 || !strings.Contains(em.msgs[0].Body, "client request") {
		t.Fatalf("unexpected cancellation email %+v", em.msgs)
	}
}
