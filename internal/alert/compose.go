package alert

import (
	"fmt"

	"medtrack/internal/reminder"
)

func pills(n int) string {
	if n == 1 {
		return "pill"
	}
	return "pills"
}

// ComposeTrigger is the spoken text for a due reminder. When the remaining
// stock cannot cover a dose the text points at an alternative.
func ComposeTrigger(r *reminder.Reminder) string {
	msg := fmt.Sprintf("Time to take your %s. %d %s %s. You have %d pills remaining.",
		r.MedicineName, r.PillsPerDose, pills(r.PillsPerDose), r.TimingsText(), r.Stock)
	if r.Stock >= r.PillsPerDose {
		return msg
	}
	for _, alt := range r.AlternativeMedicines {
		if alt.Stock > 0 {
			return msg + fmt.Sprintf(" You can take %s as an alternative.", alt.Name)
		}
	}
	return msg + " Please refill soon."
}

func ComposeTriggerNotification(r *reminder.Reminder) string {
	return fmt.Sprintf("Time to take your %s. %d pill(s) %s", r.MedicineName, r.PillsPerDose, r.TimingsText())
}

func ComposeTaken(name string, remaining int) string {
	return fmt.Sprintf("Marked %s as taken. %d pills remaining.", name, remaining)
}

// ComposeOutOfStock names the first alternative with stock, if there is one.
func ComposeOutOfStock(name string, alt *reminder.Alternative) string {
	if alt == nil {
		return fmt.Sprintf("%s is out of stock. No alternatives available. Please refill soon.", name)
	}
	return fmt.Sprintf("%s is out of stock. You can take %s as an alternative. %d pills remaining.", name, alt.Name, alt.Stock)
}

func ComposeOutOfStockNotification(name string) (title, body string) {
	return "Medicine Out of Stock", fmt.Sprintf("%s is out of stock. Please refill soon.", name)
}

func ComposeLowStockNotification(name string, remaining int) (title, body string) {
	return "Low Medicine Stock", fmt.Sprintf("Only %d pills remaining for %s. Please refill soon.", remaining, name)
}

func ComposeStockUpdated(name string, stock int) string {
	return fmt.Sprintf("Updated %s stock to %d pills", name, stock)
}

func ComposeReminderSet(r *reminder.Reminder) string {
	at := r.Time
	if c, err := reminder.ParseClock(r.Time); err == nil {
		at = c.Format12h()
	}
	return fmt.Sprintf("Reminder set for %s at %s. Take %s. Initial stock is %d pills",
		r.MedicineName, at, r.TimingsText(), r.Stock)
}

func ComposeReminderDeleted() string {
	return "Reminder deleted"
}

func ComposeSwitched(name string, stock int) string {
	return fmt.Sprintf("Switched to %s. %d pills remaining.", name, stock)
}

func ComposeTestVoice(name string) string {
	return fmt.Sprintf("Time to take your %s", name)
}
