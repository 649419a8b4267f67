// Package tracker implements the caregiver actions: adding and deleting
// reminders, marking doses taken and maintaining stock and alternatives.
// Each action runs as one serialized store step; timer service calls happen
// inside that step and abort it on failure.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"medtrack/internal/alert"
	"medtrack/internal/apperr"
	"medtrack/internal/ledger"
	"medtrack/internal/metrics"
	"medtrack/internal/reminder"
	"medtrack/internal/timer"
)

// Announcer is the part of the alert dispatcher the tracker speaks through.
type Announcer interface {
	Say(ctx context.Context, text string) error
	Notify(ctx context.Context, title, body string) error
}

type Service struct {
	store  *reminder.Store
	timer  timer.Service
	alerts Announcer
	now    func() time.Time
	logger *slog.Logger
}

func New(store *reminder.Store, timerService timer.Service, alerts Announcer, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		timer:  timerService,
		alerts: alerts,
		now:    time.Now,
		logger: logger.With("component", "tracker"),
	}
}

// WithClock replaces the wall clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// NewReminder carries the fields a caregiver fills in.
type NewReminder struct {
	MedicineName         string
	Time                 string
	Timings              []reminder.Timing
	Stock                int
	PillsPerDose         int
	AlternativeMedicines []reminder.Alternative
	GuardianPhone        string
	MedicineImage        string
}

func (n NewReminder) validate() error {
	if strings.TrimSpace(n.MedicineName) == "" {
		return apperr.NewValidationError("medicine name is required")
	}
	if _, err := reminder.ParseClock(n.Time); err != nil {
		return apperr.NewValidationError("time must be HH:MM").WithContext("time", n.Time)
	}
	if len(n.Timings) == 0 {
		return apperr.NewValidationError("at least one timing is required")
	}
	for _, t := range n.Timings {
		if !t.Valid() {
			return apperr.NewValidationError("unknown timing").WithContext("timing", string(t))
		}
	}
	if n.Stock < 0 {
		return apperr.NewValidationError("stock must not be negative")
	}
	if n.PillsPerDose < 1 {
		return apperr.NewValidationError("pills per dose must be at least 1")
	}
	for _, alt := range n.AlternativeMedicines {
		if strings.TrimSpace(alt.Name) == "" || alt.Stock < 0 || alt.PillsPerDose < 0 {
			return apperr.NewValidationError("invalid alternative medicine").WithContext("alternative", alt.Name)
		}
	}
	return nil
}

// AddReminder registers the reminder with the timer service and stores it.
// A registration failure aborts the add. A persistence failure returns the
// live reminder together with the error.
func (s *Service) AddReminder(ctx context.Context, req NewReminder) (*reminder.Reminder, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	r := reminder.NewReminder(req.MedicineName, req.Time, req.Timings, req.Stock, req.PillsPerDose,
		req.AlternativeMedicines, req.GuardianPhone, req.MedicineImage)

	err := s.store.Mutate(ctx, func(current []*reminder.Reminder) ([]*reminder.Reminder, error) {
		reg := timer.Registration{
			ReminderID:    r.ID,
			MedicineName:  r.MedicineName,
			GuardianPhone: r.GuardianPhone,
			Time:          r.Time,
		}
		if err := s.timer.Register(ctx, reg); err != nil {
			return nil, err
		}
		return append(current, r), nil
	})
	// A persistence failure still leaves the reminder in memory.
	if err != nil && !errors.Is(err, apperr.ErrPersistence) {
		return nil, err
	}

	s.logger.Info("reminder added", "reminder_id", r.ID, "medicine", r.MedicineName, "time", r.Time)
	s.alerts.Say(ctx, alert.ComposeReminderSet(r))
	return r.Clone(), err
}

func (s *Service) List() []*reminder.Reminder {
	return s.store.List()
}

func (s *Service) Get(id string) (*reminder.Reminder, error) {
	return s.store.Get(id)
}

func (s *Service) DeleteReminder(ctx context.Context, id string) error {
	removed, err := s.store.Remove(ctx, id)
	if removed == nil {
		return err
	}
	s.logger.Info("reminder deleted", "reminder_id", id, "medicine", removed.MedicineName)
	s.alerts.Say(ctx, alert.ComposeReminderDeleted())
	return err
}

// MarkTaken deducts one dose. The timer service is told first; if it
// fails the stock is left as it was.
func (s *Service) MarkTaken(ctx context.Context, id string) (*reminder.Reminder, ledger.Outcome, error) {
	var outcome ledger.Outcome
	updated, err := s.store.Update(ctx, id, func(r *reminder.Reminder) (*reminder.Reminder, error) {
		next, o, err := ledger.MarkTaken(r, s.now())
		if err != nil {
			return nil, err
		}
		report := timer.TakenReport{NewStock: next.Stock, PillsTaken: r.PillsPerDose}
		if err := s.timer.Taken(ctx, r.ID, report); err != nil {
			return nil, err
		}
		outcome = o
		return next, nil
	})
	if updated == nil {
		return nil, "", err
	}

	metrics.DosesTaken.WithLabelValues(string(outcome)).Inc()
	s.logger.Info("dose taken", "reminder_id", id, "stock", updated.Stock, "outcome", outcome)
	s.announceTaken(ctx, updated, outcome)
	return updated, outcome, err
}

func (s *Service) announceTaken(ctx context.Context, r *reminder.Reminder, outcome ledger.Outcome) {
	switch outcome {
	case ledger.OutOfStock:
		var next *reminder.Alternative
		if alt, ok := ledger.FirstAvailableAlternative(r); ok {
			next = &alt
		}
		s.alerts.Say(ctx, alert.ComposeOutOfStock(r.MedicineName, next))
		title, body := alert.ComposeOutOfStockNotification(r.MedicineName)
		s.alerts.Notify(ctx, title, body)
	case ledger.LowStock:
		s.alerts.Say(ctx, alert.ComposeTaken(r.MedicineName, r.Stock))
		title, body := alert.ComposeLowStockNotification(r.MedicineName, r.Stock)
		s.alerts.Notify(ctx, title, body)
	default:
		s.alerts.Say(ctx, alert.ComposeTaken(r.MedicineName, r.Stock))
	}
}

// UpdateStock corrects the primary stock. The timer service has no
// matching operation so this is local only.
func (s *Service) UpdateStock(ctx context.Context, id string, stock int) (*reminder.Reminder, error) {
	updated, err := s.store.Update(ctx, id, func(r *reminder.Reminder) (*reminder.Reminder, error) {
		return ledger.UpdateStock(r, stock)
	})
	if updated == nil {
		return nil, err
	}
	s.alerts.Say(ctx, alert.ComposeStockUpdated(updated.MedicineName, updated.Stock))
	return updated, err
}

func (s *Service) SwitchToAlternative(ctx context.Context, id string, index int) (*reminder.Reminder, error) {
	updated, err := s.store.Update(ctx, id, func(r *reminder.Reminder) (*reminder.Reminder, error) {
		return ledger.SwitchToAlternative(r, index)
	})
	if updated == nil {
		return nil, err
	}
	s.logger.Info("switched to alternative", "reminder_id", id, "medicine", updated.MedicineName)
	s.alerts.Say(ctx, alert.ComposeSwitched(updated.MedicineName, updated.Stock))
	return updated, err
}

func (s *Service) AddAlternative(ctx context.Context, id string, alt reminder.Alternative) (*reminder.Reminder, error) {
	return s.store.Update(ctx, id, func(r *reminder.Reminder) (*reminder.Reminder, error) {
		return ledger.AddAlternative(r, alt)
	})
}

func (s *Service) UpdateAlternative(ctx context.Context, id string, index int, alt reminder.Alternative) (*reminder.Reminder, error) {
	return s.store.Update(ctx, id, func(r *reminder.Reminder) (*reminder.Reminder, error) {
		return ledger.UpdateAlternative(r, index, alt)
	})
}

func (s *Service) RemoveAlternative(ctx context.Context, id string, index int) (*reminder.Reminder, error) {
	return s.store.Update(ctx, id, func(r *reminder.Reminder) (*reminder.Reminder, error) {
		return ledger.RemoveAlternative(r, index)
	})
}

// TestVoice speaks a sample announcement for the reminder.
func (s *Service) TestVoice(ctx context.Context, id string) error {
	r, err := s.store.Get(id)
	if err != nil {
		return err
	}
	return s.alerts.Say(ctx, alert.ComposeTestVoice(r.MedicineName))
}
