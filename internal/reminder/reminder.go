package reminder

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Timing tags a dose relative to a meal.
type Timing string

const (
	BeforeBreakfast Timing = "Before Breakfast"
	AfterBreakfast  Timing = "After Breakfast"
	BeforeLunch     Timing = "Before Lunch"
	AfterLunch      Timing = "After Lunch"
	BeforeDinner    Timing = "Before Dinner"
	AfterDinner     Timing = "After Dinner"
)

// Timings lists every accepted tag in display order.
var Timings = []Timing{BeforeBreakfast, AfterBreakfast, BeforeLunch, AfterLunch, BeforeDinner, AfterDinner}

func (t Timing) Valid() bool {
	for _, v := range Timings {
		if t == v {
			return true
		}
	}
	return false
}

// Alternative is a substitute medicine usable once the primary runs out.
// PillsPerDose of zero means "same as the primary".
type Alternative struct {
	Name         string `json:"name"`
	Stock        int    `json:"stock"`
	PillsPerDose int    `json:"pillsPerDose,omitempty"`
}

type Reminder struct {
	ID                   string        `json:"id"`
	MedicineName         string        `json:"medicineName"`
	Time                 string        `json:"time"`
	Timings              []Timing      `json:"timings"`
	Stock                int           `json:"stock"`
	PillsPerDose         int           `json:"pillsPerDose"`
	LastTriggered        *string       `json:"lastTriggered"`
	LastTaken            *time.Time    `json:"lastTaken"`
	AlternativeMedicines []Alternative `json:"alternativeMedicines"`
	GuardianPhone        string        `json:"guardianPhone,omitempty"`
	MedicineImage        string        `json:"medicineImage,omitempty"`
}

// NewReminder assigns a fresh ID and normalises the guardian phone.
func NewReminder(medicineName, at string, timings []Timing, stock, pillsPerDose int, alternatives []Alternative, guardianPhone, medicineImage string) *Reminder {
	if alternatives == nil {
		alternatives = []Alternative{}
	}
	return &Reminder{
		ID:                   uuid.NewString(),
		MedicineName:         medicineName,
		Time:                 at,
		Timings:              append([]Timing(nil), timings...),
		Stock:                stock,
		PillsPerDose:         pillsPerDose,
		AlternativeMedicines: append([]Alternative{}, alternatives...),
		GuardianPhone:        NormalizePhone(guardianPhone),
		MedicineImage:        medicineImage,
	}
}

// Clone returns a deep copy.
func (r *Reminder) Clone() *Reminder {
	if r == nil {
		return nil
	}
	c := *r
	c.Timings = append([]Timing(nil), r.Timings...)
	c.AlternativeMedicines = append([]Alternative{}, r.AlternativeMedicines...)
	if r.LastTriggered != nil {
		day := *r.LastTriggered
		c.LastTriggered = &day
	}
	if r.LastTaken != nil {
		at := *r.LastTaken
		c.LastTaken = &at
	}
	return &c
}

// TriggeredOn reports whether the dedupe marker equals day.
func (r *Reminder) TriggeredOn(day string) bool {
	return r.LastTriggered != nil && *r.LastTriggered == day
}

// MarkTriggered stamps the dedupe marker with the calendar day of now.
func (r *Reminder) MarkTriggered(now time.Time) {
	day := DayOf(now)
	r.LastTriggered = &day
}

// TimingsText joins the timing tags for display, e.g. "Before Lunch, After Dinner".
func (r *Reminder) TimingsText() string {
	parts := make([]string, len(r.Timings))
	for i, t := range r.Timings {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

// LowStock reports whether stock is at or below five doses.
func (r *Reminder) LowStock() bool {
	return r.Stock <= r.PillsPerDose*5
}

// NormalizePhone prefixes a country-code marker when one is missing.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	return "+" + phone
}
