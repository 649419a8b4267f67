package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"medtrack/internal/apperr"
	"medtrack/internal/metrics"
	"medtrack/internal/storage"
)

// DefaultSnapshotKey is the key the collection is stored under.
const DefaultSnapshotKey = "medicineReminders"

// Store owns the canonical reminder sequence and mirrors it to a snapshot
// backend after every mutation. All mutations share one writer lock.
//
// The in-memory sequence is authoritative: when a snapshot write fails the
// mutation stays applied, the error is returned, and the next successful
// write mirrors the whole collection again.
type Store struct {
	mu        sync.Mutex
	reminders []*Reminder
	backend   storage.Snapshots
	key       string
	logger    *slog.Logger
}

func NewStore(backend storage.Snapshots, key string, logger *slog.Logger) *Store {
	if key == "" {
		key = DefaultSnapshotKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		reminders: []*Reminder{},
		backend:   backend,
		key:       key,
		logger:    logger.With("component", "store"),
	}
}

// Load restores the last snapshot. A missing or unreadable snapshot yields
// an empty collection.
func (s *Store) Load(ctx context.Context) []*Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reminders = s.readSnapshot(ctx)
	return cloneAll(s.reminders)
}

func (s *Store) readSnapshot(ctx context.Context) []*Reminder {
	data, err := s.backend.Read(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Info("no snapshot found, starting empty", "key", s.key)
		return []*Reminder{}
	}
	if err != nil {
		s.logger.Warn("failed to read snapshot, starting empty", "key", s.key, "error", err)
		return []*Reminder{}
	}

	var decoded []*Reminder
	if err := json.Unmarshal(data, &decoded); err != nil {
		s.logger.Warn("corrupt snapshot, starting empty", "key", s.key, "error", err)
		return []*Reminder{}
	}

	reminders := make([]*Reminder, 0, len(decoded))
	for _, r := range decoded {
		if r == nil {
			continue
		}
		if r.AlternativeMedicines == nil {
			r.AlternativeMedicines = []Alternative{}
		}
		reminders = append(reminders, r)
	}
	s.logger.Info("snapshot loaded", "key", s.key, "count", len(reminders))
	return reminders
}

// List returns deep copies in stored order.
func (s *Store) List() []*Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.reminders)
}

// Get returns a copy of the reminder with id.
func (s *Store) Get(id string) (*Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(id); i >= 0 {
		return s.reminders[i].Clone(), nil
	}
	return nil, apperr.NewNotFoundError(id)
}

// Replace swaps the whole collection and persists it.
func (s *Store) Replace(ctx context.Context, reminders []*Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, cloneAll(reminders))
}

func (s *Store) Append(ctx context.Context, r *Reminder) error {
	return s.Mutate(ctx, func(current []*Reminder) ([]*Reminder, error) {
		return append(current, r.Clone()), nil
	})
}

func (s *Store) RemoveAt(ctx context.Context, index int) error {
	return s.Mutate(ctx, func(current []*Reminder) ([]*Reminder, error) {
		if index < 0 || index >= len(current) {
			return nil, apperr.NewValidationError("reminder index out of range").
				WithContext("index", index)
		}
		return append(current[:index], current[index+1:]...), nil
	})
}

// Remove deletes the reminder with id and returns it.
func (s *Store) Remove(ctx context.Context, id string) (*Reminder, error) {
	var removed *Reminder
	err := s.Mutate(ctx, func(current []*Reminder) ([]*Reminder, error) {
		for i, r := range current {
			if r.ID == id {
				removed = r
				return append(current[:i], current[i+1:]...), nil
			}
		}
		return nil, apperr.NewNotFoundError(id)
	})
	return removed, err
}

// Update runs fn on a copy of the reminder with id while holding the writer
// lock. fn returning an error leaves the collection untouched; returning a
// nil reminder means no change and nothing is written. The committed copy
// is returned.
func (s *Store) Update(ctx context.Context, id string, fn func(*Reminder) (*Reminder, error)) (*Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, apperr.NewNotFoundError(id)
	}

	updated, err := fn(s.reminders[i].Clone())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return s.reminders[i].Clone(), nil
	}

	next := make([]*Reminder, len(s.reminders))
	copy(next, s.reminders)
	next[i] = updated.Clone()
	return updated, s.commit(ctx, next)
}

// Mutate runs fn on a copy of the whole collection while holding the writer
// lock, so collaborator calls made inside fn complete before any other
// mutation starts.
func (s *Store) Mutate(ctx context.Context, fn func([]*Reminder) ([]*Reminder, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(cloneAll(s.reminders))
	if err != nil {
		return err
	}
	return s.commit(ctx, next)
}

// commit must be called with mu held.
func (s *Store) commit(ctx context.Context, next []*Reminder) error {
	if next == nil {
		next = []*Reminder{}
	}
	s.reminders = next

	data, err := json.Marshal(s.reminders)
	if err != nil {
		metrics.SnapshotWrites.WithLabelValues("failure").Inc()
		return apperr.NewPersistenceError(err)
	}
	if err := s.backend.Write(ctx, s.key, data); err != nil {
		metrics.SnapshotWrites.WithLabelValues("failure").Inc()
		appErr := apperr.NewPersistenceError(err)
		s.logger.Error("snapshot write failed", appErr.LogFields()...)
		return appErr
	}
	metrics.SnapshotWrites.WithLabelValues("success").Inc()
	return nil
}

func (s *Store) indexOf(id string) int {
	for i, r := range s.reminders {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(reminders []*Reminder) []*Reminder {
	out := make([]*Reminder, len(reminders))
	for i, r := range reminders {
		out[i] = r.Clone()
	}
	return out
}
