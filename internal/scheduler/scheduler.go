package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"medtrack/internal/apperr"
	"medtrack/internal/metrics"
	"medtrack/internal/reminder"
)

const DefaultInterval = 30 * time.Second

// Firer announces a due reminder.
type Firer interface {
	Fire(ctx context.Context, r *reminder.Reminder) error
}

// Scheduler polls the wall clock and fires each due reminder at most once
// per calendar day.
type Scheduler struct {
	store    *reminder.Store
	alerts   Firer
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Scheduler. A non-positive interval falls back to DefaultInterval.
func New(store *reminder.Store, alerts Firer, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		store:    store,
		alerts:   alerts,
		interval: interval,
		now:      time.Now,
		logger:   logger.With("component", "scheduler"),
	}
}

// WithClock replaces the wall clock. Used by tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Start launches the polling loop. Calling Start on a running scheduler
// does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go func() {
		s.Run(loopCtx)

		// Clear the handle if the owning context ended first, so a later
		// Start can launch a new loop.
		s.mu.Lock()
		if s.done == done {
			s.cancel, s.done = nil, nil
		}
		s.mu.Unlock()
		cancel()
		close(done)
	}()
}

// Stop ends the loop and waits for it to exit. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run ticks immediately and then on every interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.Tick(ctx, s.now())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Tick evaluates every reminder against now and returns how many fired.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	metrics.SchedulerTicks.Inc()
	today := reminder.DayOf(now)
	fired := 0

	for _, r := range s.store.List() {
		clock, err := reminder.ParseClock(r.Time)
		if err != nil {
			metrics.MalformedReminders.Inc()
			appErr := apperr.NewMalformedTimeError(err, r.ID, r.Time)
			s.logger.Warn("skipping malformed reminder", appErr.LogFields()...)
			continue
		}
		if !clock.Matches(now) || r.TriggeredOn(today) {
			continue
		}
		if s.fire(ctx, r.ID, now, today) {
			fired++
		}
	}

	if fired > 0 {
		s.logger.Debug("tick complete", "fired", fired)
	}
	return fired
}

// fire re-checks the reminder under the store lock and stamps the dedupe
// marker there. The alert channels run after the lock is released.
func (s *Scheduler) fire(ctx context.Context, id string, now time.Time, today string) bool {
	stamped := false
	due, err := s.store.Update(ctx, id, func(r *reminder.Reminder) (*reminder.Reminder, error) {
		clock, err := reminder.ParseClock(r.Time)
		if err != nil || !clock.Matches(now) || r.TriggeredOn(today) {
			return nil, nil
		}
		r.MarkTriggered(now)
		stamped = true
		return r, nil
	})

	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrReminderNotFound):
		s.logger.Debug("reminder removed before it fired", "reminder_id", id)
		return false
	case errors.Is(err, apperr.ErrPersistence) && stamped:
		// The marker holds in memory; the next write re-mirrors it.
		s.logger.Error("failed to persist trigger", "reminder_id", id, "error", err)
	default:
		s.logger.Error("failed to record trigger", "reminder_id", id, "error", err)
		return false
	}
	if !stamped {
		return false
	}

	s.logger.Info("reminder due", "reminder_id", due.ID, "medicine", due.MedicineName, "time", due.Time)
	if err := s.alerts.Fire(ctx, due); err != nil {
		s.logger.Warn("reminder fired with channel failures", "reminder_id", due.ID, "error", err)
	}
	return true
}
