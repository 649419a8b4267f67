// Package ledger holds the pill-count arithmetic and substitution rules.
// Every function works on a copy and leaves its input untouched.
package ledger

import (
	"strings"
	"time"

	"medtrack/internal/apperr"
	"medtrack/internal/reminder"
)

// LowStockDoses is the number of doses at or below which stock counts as low.
const LowStockDoses = 5

type Outcome string

const (
	Normal     Outcome = "normal"
	LowStock   Outcome = "low_stock"
	OutOfStock Outcome = "out_of_stock"
)

// Classify applies the stock boundaries: ≤0 out of stock, ≤5 doses low.
func Classify(stock, pillsPerDose int) Outcome {
	switch {
	case stock <= 0:
		return OutOfStock
	case stock <= pillsPerDose*LowStockDoses:
		return LowStock
	default:
		return Normal
	}
}

// MarkTaken deducts one dose and records now as the last taken time.
func MarkTaken(r *reminder.Reminder, now time.Time) (*reminder.Reminder, Outcome, error) {
	newStock := r.Stock - r.PillsPerDose
	if newStock < 0 {
		return nil, "", apperr.NewInsufficientStockError(r.Stock, r.PillsPerDose).
			WithContext("reminder_id", r.ID)
	}

	updated := r.Clone()
	updated.Stock = newStock
	taken := now
	updated.LastTaken = &taken
	return updated, Classify(newStock, r.PillsPerDose), nil
}

// UpdateStock overwrites the primary stock.
func UpdateStock(r *reminder.Reminder, stock int) (*reminder.Reminder, error) {
	if stock < 0 {
		return nil, apperr.NewValidationError("stock must not be negative").
			WithContext("stock", stock)
	}
	updated := r.Clone()
	updated.Stock = stock
	return updated, nil
}

// SwitchToAlternative promotes alternative i to primary. The old primary is
// appended to the alternatives so the medicine count is preserved.
func SwitchToAlternative(r *reminder.Reminder, i int) (*reminder.Reminder, error) {
	if i < 0 || i >= len(r.AlternativeMedicines) {
		return nil, apperr.NewValidationError("alternative index out of range").
			WithContext("index", i)
	}
	chosen := r.AlternativeMedicines[i]
	if chosen.Stock <= 0 {
		return nil, apperr.NewValidationError("alternative medicine is out of stock").
			WithContext("alternative", chosen.Name)
	}

	updated := r.Clone()
	previous := reminder.Alternative{
		Name:         r.MedicineName,
		Stock:        r.Stock,
		PillsPerDose: r.PillsPerDose,
	}

	updated.MedicineName = chosen.Name
	updated.Stock = chosen.Stock
	if chosen.PillsPerDose > 0 {
		updated.PillsPerDose = chosen.PillsPerDose
	}

	alternatives := make([]reminder.Alternative, 0, len(r.AlternativeMedicines))
	alternatives = append(alternatives, r.AlternativeMedicines[:i]...)
	alternatives = append(alternatives, r.AlternativeMedicines[i+1:]...)
	updated.AlternativeMedicines = append(alternatives, previous)
	return updated, nil
}

// FirstAvailableAlternative returns the first alternative, in list order,
// that still has stock.
func FirstAvailableAlternative(r *reminder.Reminder) (reminder.Alternative, bool) {
	for _, alt := range r.AlternativeMedicines {
		if alt.Stock > 0 {
			return alt, true
		}
	}
	return reminder.Alternative{}, false
}

func AddAlternative(r *reminder.Reminder, alt reminder.Alternative) (*reminder.Reminder, error) {
	if err := validateAlternative(alt); err != nil {
		return nil, err
	}
	updated := r.Clone()
	updated.AlternativeMedicines = append(updated.AlternativeMedicines, alt)
	return updated, nil
}

func UpdateAlternative(r *reminder.Reminder, i int, alt reminder.Alternative) (*reminder.Reminder, error) {
	if i < 0 || i >= len(r.AlternativeMedicines) {
		return nil, apperr.NewValidationError("alternative index out of range").
			WithContext("index", i)
	}
	if err := validateAlternative(alt); err != nil {
		return nil, err
	}
	updated := r.Clone()
	updated.AlternativeMedicines[i] = alt
	return updated, nil
}

func RemoveAlternative(r *reminder.Reminder, i int) (*reminder.Reminder, error) {
	if i < 0 || i >= len(r.AlternativeMedicines) {
		return nil, apperr.NewValidationError("alternative index out of range").
			WithContext("index", i)
	}
	updated := r.Clone()
	updated.AlternativeMedicines = append(updated.AlternativeMedicines[:i], updated.AlternativeMedicines[i+1:]...)
	return updated, nil
}

func validateAlternative(alt reminder.Alternative) error {
	switch {
	case strings.TrimSpace(alt.Name) == "":
		return apperr.NewValidationError("alternative name is required")
	case alt.Stock < 0:
		return apperr.NewValidationError("alternative stock must not be negative")
	case alt.PillsPerDose < 0:
		return apperr.NewValidationError("alternative pills per dose must not be negative")
	}
	return nil
}
