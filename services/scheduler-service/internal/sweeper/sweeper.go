// Package sweeper sends 24-hour and 1-hour consultation reminders. The
// per-kind flag on each appointment is the only guard against duplicates.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/civiltime"
	"golang.org/x/sync/errgroup"
)

// StatusConfirmed is the only appointment status that receives reminders.
const StatusConfirmed = "confirmed"

// commitTimeout bounds the flag update once sends have been attempted.
const commitTimeout = 10 * time.Second

// Appointment is the reminder-relevant view of a booking.
type Appointment struct {
	ID              string
	ClientName      string
	ClientEmail     string
	ClientPhone     string
	ScheduledAt     time.Time
	Type            string
	Status          string
	Reminder24hSent bool
	Reminder1hSent  bool
}

func (a Appointment) flag(kind Kind) bool {
	if kind == Kind24h {
		return a.Reminder24hSent
	}
	return a.Reminder1hSent
}

// Store reads appointments in a window and flips reminder flags in one batch.
type Store interface {
	ListScheduledBetween(ctx context.Context, start, end time.Time) ([]Appointment, error)
	MarkReminded(ctx context.Context, kind Kind, ids []string) (int64, error)
}

// Notifier delivers one reminder. An error counts the appointment as failed.
type Notifier interface {
	Remind(ctx context.Context, kind Kind, appt Appointment) error
}

type Summary struct {
	Kind    Kind   `json:"kind"`
	Window  Window `json:"window"`
	Matched int    `json:"matched"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Skipped int    `json:"skipped"`
}

type Sweeper struct {
	store       Store
	notifier    Notifier
	zone        civiltime.Zone
	logger      *slog.Logger
	metrics     *Metrics
	now         func() time.Time
	concurrency int
}

type Config struct {
	Zone civiltime.Zone
	// Concurrency caps in-flight sends per run; zero means 16.
	Concurrency int
	Now         func() time.Time
	Metrics     *Metrics
}

func New(store Store, notifier Notifier, logger *slog.Logger, cfg Config) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sweeper{
		store:       store,
		notifier:    notifier,
		zone:        cfg.Zone,
		logger:      logger,
		metrics:     cfg.Metrics,
		now:         cfg.Now,
		concurrency: cfg.Concurrency,
	}
}

// Run performs one sweep of kind. Sends are concurrent and all joined before
// the flags of every qualifying appointment are committed, including those whose
// send failed; there is no retry.
func (s *Sweeper) Run(ctx context.Context, kind Kind) (Summary, error) {
	started := time.Now()
	window, err := WindowFor(kind, s.zone, s.now())
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Kind: kind, Window: window}

	appts, err := s.store.ListScheduledBetween(ctx, window.Start, window.End)
	if err != nil {
		s.metrics.observeRun(kind, "store_error", summary, started)
		return summary, fmt.Errorf("list appointments for %s sweep: %w", kind, err)
	}
	summary.Matched = len(appts)

	var due []Appointment
	for _, a := range appts {
		if a.Status != StatusConfirmed || a.flag(kind) {
			summary.Skipped++
			continue
		}
		due = append(due, a)
	}

	var sent, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, a := range due {
		g.Go(func() error {
			if err := s.notifier.Remind(ctx, kind, a); err != nil {
				failed.Add(1)
				s.logger.Warn("reminder send failed", "kind", kind, "appointment_id", a.ID, "err", err)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	summary.Sent = int(sent.Load())
	summary.Failed = int(failed.Load())

	if len(due) > 0 {
		ids := make([]string, len(due))
		for i, a := range due {
			ids[i] = a.ID
		}
		// Attempted sends must be flagged even if the caller has gone away.
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
		_, err := s.store.MarkReminded(commitCtx, kind, ids)
		cancel()
		if err != nil {
			s.metrics.observeRun(kind, "commit_error", summary, started)
			return summary, fmt.Errorf("mark %s reminders sent: %w", kind, err)
		}
	}

	s.metrics.observeRun(kind, "ok", summary, started)
	s.logger.Info("reminder sweep finished",
		"kind", kind,
		"window_start", window.Start.UTC().Format(time.RFC3339),
		"window_end", window.End.UTC().Format(time.RFC3339),
		"matched", summary.Matched,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)
	return summary, nil
}
